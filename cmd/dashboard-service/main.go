package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/vibeshift/dashboard/dashboardservice"
)

func main() {
	if err := dashboardservice.Run(); err != nil {
		log.Error().Err(err).Msg("dashboard-service exited with error")
		os.Exit(1)
	}
}
