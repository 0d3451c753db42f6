// Package api exposes the dashboard over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vibeshift/dashboard/internal/api/recovery"
	"github.com/vibeshift/dashboard/internal/auth"
	"github.com/vibeshift/dashboard/internal/dashboard"
	"github.com/vibeshift/dashboard/internal/jobs"
)

// Deps are the collaborators the router wires to handlers.
type Deps struct {
	Dashboard  DashboardService
	Week       dashboard.WeekSynthesizer
	Jobs       JobTrigger
	Cache      CacheInvalidator
	Health     ServiceHealth
	CronSecret string
	Location   *time.Location
	Log        zerolog.Logger
}

// NewRouter creates the HTTP router with every route registered.
func NewRouter(d Deps) *mux.Router {
	if d.Location == nil {
		d.Location = time.UTC
	}
	root := mux.NewRouter()

	// Global middlewares
	root.Use(recovery.Middleware)
	root.Use(AccessLog(d.Log))

	// Aggregate
	dash := NewDashboardHandler(d.Dashboard)
	root.HandleFunc("/api/unified-dashboard", dash.GetUnifiedDashboard).Methods(http.MethodGet)
	root.HandleFunc("/api/cohort-events", dash.GetCohortEvents).Methods(http.MethodGet)

	// Weekly synthesis
	week := NewMyWeekHandler(d.Week)
	root.HandleFunc("/api/my-week", week.Synthesize).Methods(http.MethodPost)
	root.HandleFunc("/api/my-week", week.Usage).Methods(http.MethodGet)

	// Calendar export
	cal := NewCalendarHandler(d.Dashboard, d.Location)
	root.HandleFunc("/api/calendar/{cohort:[A-Za-z]+}.ics", cal.Export).Methods(http.MethodGet)

	// Operator endpoints, bearer-protected
	ops := NewOpsHandler(d.Jobs, d.Cache)
	protected := auth.RequireSecret(d.CronSecret)
	root.Handle("/api/cron/{job:"+jobs.NameNewsletterRefresh+"|"+jobs.NameCacheRefresh+"}", protected(http.HandlerFunc(ops.RunJob))).Methods(http.MethodGet)
	root.Handle("/api/cache/{key}", protected(http.HandlerFunc(ops.DeleteCacheKey))).Methods(http.MethodDelete)

	// Health and metrics
	healthHandler := NewHealthHandler(d.Health)
	root.HandleFunc("/api/health", healthHandler.CheckHealth).Methods(http.MethodGet)
	root.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return root
}
