package api

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vibeshift/dashboard/internal/api/respond"
	"github.com/vibeshift/dashboard/internal/cache"
	"github.com/vibeshift/dashboard/internal/model"
)

// DashboardService serves the aggregate and its cohort-event part. *dashboard.Orchestrator satisfies it.
type DashboardService interface {
	GetDashboard(ctx context.Context, forceRefresh bool) (model.UnifiedDashboardData, cache.Source, error)
	CohortEvents(ctx context.Context) (model.CohortEvents, cache.Source, error)
}

// DashboardHandler handles the aggregate endpoints.
type DashboardHandler struct {
	svc DashboardService
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(svc DashboardService) *DashboardHandler {
	return &DashboardHandler{svc: svc}
}

type dashboardError struct {
	Error          string               `json:"error"`
	Details        string               `json:"details"`
	ProcessingInfo model.ProcessingInfo `json:"processingInfo"`
}

// GetUnifiedDashboard handles GET /api/unified-dashboard[?refresh=true]
func (h *DashboardHandler) GetUnifiedDashboard(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("refresh") == "true"

	data, src, err := h.svc.GetDashboard(r.Context(), force)
	if err != nil {
		log.Error().Stack().Err(err).Bool("refresh", force).Msg("unified dashboard unavailable")
		respond.WriteJSON(w, http.StatusInternalServerError, dashboardError{
			Error:          "Failed to load dashboard data",
			Details:        err.Error(),
			ProcessingInfo: model.ProcessingInfo{Timestamp: time.Now().UTC().Format(time.RFC3339Nano)},
		})
		return
	}

	w.Header().Set(respond.CacheSourceHeader, string(src))
	w.Header().Set("Cache-Control", "no-store")
	respond.WriteJSON(w, http.StatusOK, data)
}

// GetCohortEvents handles GET /api/cohort-events
func (h *DashboardHandler) GetCohortEvents(w http.ResponseWriter, r *http.Request) {
	events, src, err := h.svc.CohortEvents(r.Context())
	if err != nil {
		// Empty buckets still render; the failure is only visible in logs.
		log.Warn().Err(err).Msg("cohort events unavailable")
		src = cache.SourceFresh
	}
	w.Header().Set(respond.CacheSourceHeader, string(src))
	respond.WriteJSON(w, http.StatusOK, events.Normalize())
}
