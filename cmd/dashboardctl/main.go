package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	apiFlag     string
	secretFlag  string
	timeoutFlag time.Duration
	rootCmd     = &cobra.Command{
		Use:   "dashboardctl",
		Short: "CLI client for the dashboard service",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:8080", "Dashboard service base URL")
	rootCmd.PersistentFlags().StringVarP(&secretFlag, "secret", "s", os.Getenv("DASHBOARD_CRON_SECRET"), "Shared secret for operator endpoints")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 5*time.Minute, "Request timeout")

	// dashboard subcommand
	dashboardCmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Fetch the unified dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			refresh, _ := cmd.Flags().GetBool("refresh")
			return runDashboard(newClient(apiFlag, secretFlag, timeoutFlag), refresh, cmd.OutOrStdout())
		},
	}
	dashboardCmd.Flags().BoolP("refresh", "r", false, "Force a full pipeline run")
	rootCmd.AddCommand(dashboardCmd)

	// refresh subcommand
	refreshCmd := &cobra.Command{
		Use:       "refresh newsletter|cache",
		Short:     "Trigger a refresh job",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"newsletter", "cache"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(newClient(apiFlag, secretFlag, timeoutFlag), args[0], cmd.OutOrStdout())
		},
	}
	rootCmd.AddCommand(refreshCmd)

	// myweek subcommand
	myweekCmd := &cobra.Command{
		Use:   "myweek",
		Short: "Synthesize the current week from a {cohortEvents, newsletterData} JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			return runMyWeek(newClient(apiFlag, secretFlag, timeoutFlag), file, cmd.OutOrStdout())
		},
	}
	myweekCmd.Flags().StringP("file", "f", "", "Request body file (required)")
	_ = myweekCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(myweekCmd)

	// events subcommand
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Fetch the bucketed cohort events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(newClient(apiFlag, secretFlag, timeoutFlag), cmd.OutOrStdout())
		},
	}
	rootCmd.AddCommand(eventsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
