package myweek

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vibeshift/dashboard/internal/ai"
	"github.com/vibeshift/dashboard/internal/calendar"
	"github.com/vibeshift/dashboard/internal/metrics"
	"github.com/vibeshift/dashboard/internal/model"
	"github.com/vibeshift/dashboard/internal/newsletter"
)

// Summarizer is the model-backed step. *ai.WeekSummarizer satisfies it.
type Summarizer interface {
	SummarizeWeek(ctx context.Context, in ai.WeekInput) (ai.WeekSummary, error)
}

// NoEventsSummary is the narrative used when a cohort has nothing this week or its
// summary could not be produced.
func NoEventsSummary(c model.Cohort) string {
	name := string(c)
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	return fmt.Sprintf("No events found for the %s cohort this week.", name)
}

// maxDescription bounds newsletter excerpts passed to the model.
const maxDescription = 280

// Synthesizer runs Stage C.
type Synthesizer struct {
	ai  Summarizer
	loc *time.Location
	now func() time.Time
	log zerolog.Logger
}

// NewSynthesizer returns a Synthesizer anchored to loc.
func NewSynthesizer(s Summarizer, loc *time.Location, log zerolog.Logger) *Synthesizer {
	return &Synthesizer{ai: s, loc: loc, now: time.Now, log: log.With().Str("component", "myweek").Logger()}
}

// WithClock overrides the clock.
func (s *Synthesizer) WithClock(now func() time.Time) *Synthesizer {
	s.now = now
	return s
}

// Window returns the current week window.
func (s *Synthesizer) Window() Window { return NewWindow(s.now(), s.loc) }

type cohortResult struct {
	events   []model.WeekEvent
	summary  string
	degraded bool
}

// Result is a synthesis plus the cohorts that fell back.
type Result struct {
	Analysis model.CohortMyWeekAnalysis
	Degraded []model.Cohort
}

// Synthesize never fails: each cohort is summarized independently and a failing cohort
// degrades to no events and NoEventsSummary without affecting the other.
func (s *Synthesizer) Synthesize(ctx context.Context, events model.CohortEvents, nl model.NewsletterPayload) model.CohortMyWeekAnalysis {
	return s.Run(ctx, events, nl).Analysis
}

// Run is Synthesize with degradation reporting.
func (s *Synthesizer) Run(ctx context.Context, events model.CohortEvents, nl model.NewsletterPayload) Result {
	start := time.Now()
	w := s.Window()
	nlEvents := NewsletterEvents(nl, w)

	results := make([]cohortResult, len(model.Cohorts))
	var wg sync.WaitGroup
	for i, c := range model.Cohorts {
		wg.Add(1)
		go func(i int, c model.Cohort) {
			defer wg.Done()
			results[i] = s.cohort(ctx, c, w, events.ForCohort(c), nlEvents)
		}(i, c)
	}
	wg.Wait()

	var degraded []model.Cohort
	for i, r := range results {
		if r.degraded {
			degraded = append(degraded, model.Cohorts[i])
		}
	}
	return Result{
		Analysis: model.CohortMyWeekAnalysis{
			WeekStart:      w.StartDate(),
			WeekEnd:        w.EndDate(),
			BlueEvents:     results[0].events,
			GoldEvents:     results[1].events,
			BlueSummary:    results[0].summary,
			GoldSummary:    results[1].summary,
			ProcessingTime: time.Since(start).Milliseconds(),
		},
		Degraded: degraded,
	}
}

func (s *Synthesizer) cohort(ctx context.Context, c model.Cohort, w Window, calEvents []model.CalendarEvent, nlEvents []model.WeekEvent) cohortResult {
	inWindow := FilterCalendar(calEvents, w, s.loc)
	if len(inWindow) == 0 && len(nlEvents) == 0 {
		return cohortResult{events: []model.WeekEvent{}, summary: NoEventsSummary(c)}
	}

	start := time.Now()
	out, err := s.ai.SummarizeWeek(ctx, ai.WeekInput{
		Cohort:          c,
		WeekStart:       w.StartDate(),
		WeekEnd:         w.EndDate(),
		Events:          inWindow,
		NewsletterItems: nlEvents,
	})
	if err != nil {
		metrics.StageDuration.WithLabelValues("myweek-"+string(c), metrics.OutcomeDegraded).Observe(time.Since(start).Seconds())
		s.log.Warn().Err(err).Str("cohort", string(c)).Msg("weekly synthesis failed; using no-events fallback")
		return cohortResult{events: []model.WeekEvent{}, summary: NoEventsSummary(c), degraded: true}
	}
	metrics.StageDuration.WithLabelValues("myweek-"+string(c), metrics.OutcomeOK).Observe(time.Since(start).Seconds())

	return cohortResult{events: Merge(out.Events, nlEvents, w), summary: out.Summary}
}

// FilterCalendar keeps events whose start date (in loc) falls in w.
func FilterCalendar(events []model.CalendarEvent, w Window, loc *time.Location) []model.CalendarEvent {
	out := []model.CalendarEvent{}
	for _, e := range events {
		if d, ok := calendar.EventDate(e, loc); ok && w.ContainsDate(d) {
			out = append(out, e)
		}
	}
	return out
}

// NewsletterEvents turns time-sensitive newsletter items into week events, one per in-window date.
func NewsletterEvents(nl model.NewsletterPayload, w Window) []model.WeekEvent {
	out := []model.WeekEvent{}
	for _, sec := range nl.Sections {
		for _, it := range sec.Items {
			if it.TimeSensitive == nil {
				continue
			}
			seen := map[string]bool{}
			for _, d := range it.TimeSensitive.Dates {
				if seen[d] || !w.ContainsDate(d) {
					continue
				}
				seen[d] = true
				out = append(out, model.WeekEvent{
					Date:        d,
					Title:       it.Title,
					Type:        model.WeekEventNewsletter,
					Priority:    it.TimeSensitive.Priority,
					Description: truncate(newsletter.PlainText(it.HTML), maxDescription),
					URL:         nl.SourceURL,
				})
			}
		}
	}
	sortEvents(out)
	return out
}

// Merge keeps model events inside w, adds newsletter events the model left out, removes
// duplicates by (date, title) and sorts by date, time and title.
func Merge(modelEvents, nlEvents []model.WeekEvent, w Window) []model.WeekEvent {
	out := []model.WeekEvent{}
	seen := map[string]bool{}
	add := func(e model.WeekEvent) {
		if !w.ContainsDate(e.Date) {
			return
		}
		k := e.Date + "|" + strings.ToLower(strings.TrimSpace(e.Title))
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, e)
	}
	for _, e := range modelEvents {
		add(e)
	}
	for _, e := range nlEvents {
		add(e)
	}
	sortEvents(out)
	return out
}

func sortEvents(events []model.WeekEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if ta, tb := clockMinutes(a.Time), clockMinutes(b.Time); ta != tb {
			return ta < tb
		}
		return a.Title < b.Title
	})
}

// clockMinutes orders "9:00 AM", "13:30" and untimed entries (first).
func clockMinutes(s string) int {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return -1
	}
	for _, layout := range []string{"3:04 PM", "3:04PM", "15:04", "3 PM", "3PM"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute()
		}
	}
	return 24 * 60
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
