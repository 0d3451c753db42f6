package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/vibeshift/dashboard/internal/api/respond"
	"github.com/vibeshift/dashboard/internal/dashboard"
	"github.com/vibeshift/dashboard/internal/model"
	"github.com/vibeshift/dashboard/internal/myweek"
)

const myWeekUsage = `POST a JSON body {"cohortEvents": {...}, "newsletterData": {...}} to synthesize the current week`

// maxMyWeekBody caps the request body; a full cohort-events payload is a few hundred KB.
const maxMyWeekBody = 8 << 20

type myWeekRequest struct {
	CohortEvents   model.CohortEvents      `json:"cohortEvents"`
	NewsletterData model.NewsletterPayload `json:"newsletterData"`
}

// myWeekError is the degraded body: a well-formed week with no events plus the error.
type myWeekError struct {
	model.CohortMyWeekAnalysis
	Error string `json:"error"`
}

// MyWeekHandler exposes Stage C on its own.
type MyWeekHandler struct {
	week dashboard.WeekSynthesizer
}

// NewMyWeekHandler creates a new my-week handler
func NewMyWeekHandler(week dashboard.WeekSynthesizer) *MyWeekHandler {
	return &MyWeekHandler{week: week}
}

// Synthesize handles POST /api/my-week
func (h *MyWeekHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req myWeekRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMyWeekBody))
	if err := dec.Decode(&req); err != nil {
		log.Warn().Err(err).Msg("my-week request body rejected")
		win := h.week.Window()
		respond.WriteJSON(w, http.StatusOK, myWeekError{
			CohortMyWeekAnalysis: model.CohortMyWeekAnalysis{
				WeekStart:   win.StartDate(),
				WeekEnd:     win.EndDate(),
				BlueEvents:  []model.WeekEvent{},
				GoldEvents:  []model.WeekEvent{},
				BlueSummary: myweek.NoEventsSummary(model.CohortBlue),
				GoldSummary: myweek.NoEventsSummary(model.CohortGold),
			},
			Error: "invalid request body: " + err.Error(),
		})
		return
	}

	res := h.week.Run(r.Context(), req.CohortEvents.Normalize(), req.NewsletterData)
	if len(res.Degraded) > 0 {
		log.Warn().Interface("cohorts", res.Degraded).Msg("my-week synthesis degraded")
	}
	respond.WriteJSON(w, http.StatusOK, res.Analysis)
}

// Usage handles GET /api/my-week
func (h *MyWeekHandler) Usage(w http.ResponseWriter, r *http.Request) {
	respond.WriteMethodNotAllowed(w, http.MethodPost, myWeekUsage)
}
