package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/vibeshift/dashboard/internal/model"
)

// CallSiteWeekSummary labels the weekly synthesis step.
const CallSiteWeekSummary = "week-summary"

const weekSystemPrompt = `You are an assistant for a graduate program. Build the "this week" view for one cohort.
You receive the week window, the cohort's calendar events inside that window and time-sensitive
newsletter items. Produce a deduplicated list of what matters this week and a short summary.
Each event: {"date":"YYYY-MM-DD","time":"h:mm AM/PM (optional)","title":"...",
 "type":"assignment|class|exam|administrative|social|newsletter|other",
 "priority":"high|medium|low (optional)","description":"(optional)","location":"(optional)","url":"(optional)"}.
Only include dates inside the window. Keep newsletter-sourced entries typed "newsletter".
Respond with a single JSON object: {"events":[...],"summary":"two or three sentences"}`

// WeekInput is what one cohort's synthesis sees.
type WeekInput struct {
	Cohort          model.Cohort
	WeekStart       string
	WeekEnd         string
	Events          []model.CalendarEvent
	NewsletterItems []model.WeekEvent
}

// WeekSummary is the model's answer for one cohort.
type WeekSummary struct {
	Events      []model.WeekEvent
	Summary     string
	Model       string
	ModelsTried []string
}

type weekResponse struct {
	Events  []model.WeekEvent `json:"events"`
	Summary string            `json:"summary"`
}

// WeekSummarizer runs the weekly synthesis call site.
type WeekSummarizer struct {
	chain *Chain
}

// NewWeekSummarizer wraps a chain for the week-summary call site.
func NewWeekSummarizer(chain *Chain) *WeekSummarizer {
	return &WeekSummarizer{chain: chain}
}

// SummarizeWeek asks the model for one cohort's week. Filtering to the window is the caller's job.
func (w *WeekSummarizer) SummarizeWeek(ctx context.Context, in WeekInput) (WeekSummary, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Cohort: %s\nWeek: %s to %s (inclusive)\n\n", in.Cohort, in.WeekStart, in.WeekEnd)
	fmt.Fprintf(&b, "Calendar events (%d):\n%s\n\n", len(in.Events), encodeForPrompt(in.Events))
	fmt.Fprintf(&b, "Newsletter items (%d):\n%s\n", len(in.NewsletterItems), encodeForPrompt(in.NewsletterItems))

	messages := []Message{
		{Role: "system", Content: weekSystemPrompt},
		{Role: "user", Content: b.String()},
	}

	var parsed weekResponse
	outcome, err := w.chain.Run(ctx, messages, func(content string) error {
		var resp weekResponse
		if err := decodeJSON(content, &resp); err != nil {
			return err
		}
		if strings.TrimSpace(resp.Summary) == "" {
			return errors.New("completion has no summary")
		}
		parsed = resp
		return nil
	})
	if err != nil {
		return WeekSummary{}, err
	}

	events := make([]model.WeekEvent, 0, len(parsed.Events))
	for _, e := range parsed.Events {
		e.Date = strings.TrimSpace(e.Date)
		e.Title = strings.TrimSpace(e.Title)
		if e.Date == "" || e.Title == "" {
			continue
		}
		if !validWeekTypes[e.Type] {
			e.Type = model.WeekEventOther
		}
		if e.Priority != "" && !validPriorities[e.Priority] {
			e.Priority = ""
		}
		events = append(events, e)
	}
	return WeekSummary{
		Events:      events,
		Summary:     strings.TrimSpace(parsed.Summary),
		Model:       outcome.Model,
		ModelsTried: outcome.ModelsTried(),
	}, nil
}

var validWeekTypes = map[string]bool{
	model.WeekEventAssignment: true, model.WeekEventClass: true, model.WeekEventExam: true,
	model.WeekEventAdministrative: true, model.WeekEventSocial: true,
	model.WeekEventNewsletter: true, model.WeekEventOther: true,
}
