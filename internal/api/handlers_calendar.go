package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/vibeshift/dashboard/internal/api/respond"
	"github.com/vibeshift/dashboard/internal/calendar"
	"github.com/vibeshift/dashboard/internal/model"
)

// CalendarHandler exports cohort buckets as ICS.
type CalendarHandler struct {
	svc DashboardService
	loc *time.Location
}

// NewCalendarHandler creates a new calendar export handler
func NewCalendarHandler(svc DashboardService, loc *time.Location) *CalendarHandler {
	return &CalendarHandler{svc: svc, loc: loc}
}

// Export handles GET /api/calendar/{cohort}.ics
func (h *CalendarHandler) Export(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["cohort"]
	if _, ok := model.EmptyCohortEvents().Bucket(name); !ok {
		respond.WriteNotFound(w, "unknown calendar "+name)
		return
	}

	events, _, err := h.svc.CohortEvents(r.Context())
	if err != nil {
		log.Warn().Err(err).Str("bucket", name).Msg("calendar export served without events")
	}
	bucket, _ := events.Normalize().Bucket(name)

	body := calendar.Export(name, bucket, time.Now(), h.loc)
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
