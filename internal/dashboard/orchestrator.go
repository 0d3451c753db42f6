// Package dashboard assembles the unified dashboard: it serves cached aggregates when present
// and otherwise runs the newsletter and calendar stages concurrently, waits for both to settle,
// runs the weekly synthesis and caches what it produced.
package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/vibeshift/dashboard/internal/ai"
	"github.com/vibeshift/dashboard/internal/cache"
	"github.com/vibeshift/dashboard/internal/calendar"
	"github.com/vibeshift/dashboard/internal/metrics"
	"github.com/vibeshift/dashboard/internal/model"
	"github.com/vibeshift/dashboard/internal/myweek"
	"github.com/vibeshift/dashboard/internal/newsletter"
)

// ErrUnrecoverable means the newsletter could neither be scraped nor read from cache.
var ErrUnrecoverable = errors.New("dashboard: newsletter unavailable and not cached")

// NewsletterSource scrapes the latest issue. *newsletter.Scraper satisfies it.
type NewsletterSource interface {
	Latest(ctx context.Context) (newsletter.Issue, error)
}

// Reorganizer organizes raw sections. *ai.Reorganizer satisfies it.
type Reorganizer interface {
	Reorganize(ctx context.Context, raw []model.RawSection, sourceURL, title string) (model.NewsletterPayload, error)
}

// CalendarSource fetches bucketed events starting at from. *calendar.Fetcher satisfies it.
type CalendarSource interface {
	Fetch(ctx context.Context, from time.Time) (model.CohortEvents, error)
}

// WeekSynthesizer runs Stage C. *myweek.Synthesizer satisfies it.
type WeekSynthesizer interface {
	Run(ctx context.Context, events model.CohortEvents, nl model.NewsletterPayload) myweek.Result
	Window() myweek.Window
}

// Deps are the Orchestrator's collaborators.
type Deps struct {
	Cache       *cache.Hybrid
	Newsletter  NewsletterSource
	Reorganizer Reorganizer
	Calendar    CalendarSource
	Week        WeekSynthesizer
}

// Orchestrator is safe for concurrent use; it keeps no per-request state.
type Orchestrator struct {
	deps    Deps
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

// New returns an Orchestrator whose pipeline runs are bounded by timeout.
func New(deps Deps, timeout time.Duration, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		deps:    deps,
		timeout: timeout,
		log:     log.With().Str("component", "orchestrator").Logger(),
		now:     time.Now,
	}
}

// RunOptions select a pipeline variant.
type RunOptions struct {
	// WriteStatic also persists results to the static tier. Only scheduled jobs set it.
	WriteStatic bool
	// SkipNewsletter skips Stage A and synthesizes from an empty newsletter.
	SkipNewsletter bool
}

// RunResult describes one pipeline execution.
type RunResult struct {
	Data     model.UnifiedDashboardData
	Writes   map[cache.Key]cache.WriteResult
	Degraded []string
	// NewsletterSource is "fresh", "cache" or "skipped".
	NewsletterSource string
}

// GetDashboard returns the aggregate and the tier that served it. Partial upstream failures
// degrade the result; only ErrUnrecoverable (or a cancelled ctx) is returned as an error.
func (o *Orchestrator) GetDashboard(ctx context.Context, forceRefresh bool) (model.UnifiedDashboardData, cache.Source, error) {
	if !forceRefresh {
		if e, ok := cache.Get[model.UnifiedDashboardData](ctx, o.deps.Cache, cache.KeyDashboard); ok {
			o.log.Debug().Str("source", string(e.Source)).Msg("dashboard served from cache")
			return e.Value, e.Source, nil
		}
		if data, src, ok := o.compose(ctx); ok {
			o.log.Debug().Str("source", string(src)).Msg("dashboard composed from cached parts")
			return data, src, nil
		}
	}

	res, err := o.Run(ctx, RunOptions{})
	if err != nil {
		return model.UnifiedDashboardData{}, "", err
	}
	return res.Data, cache.SourceFresh, nil
}

// compose assembles the aggregate from the per-artifact entries the jobs pre-warm. The weekly
// entry must belong to the current week. Provenance is the weakest tier used.
func (o *Orchestrator) compose(ctx context.Context) (model.UnifiedDashboardData, cache.Source, bool) {
	nl, ok := cache.Get[model.NewsletterPayload](ctx, o.deps.Cache, cache.KeyNewsletter)
	if !ok {
		return model.UnifiedDashboardData{}, "", false
	}
	week, ok := cache.Get[model.CohortMyWeekAnalysis](ctx, o.deps.Cache, cache.KeyMyWeek)
	if !ok || week.Value.WeekStart != o.deps.Week.Window().StartDate() {
		return model.UnifiedDashboardData{}, "", false
	}
	events, ok := cache.Get[model.CohortEvents](ctx, o.deps.Cache, cache.KeyCohortEvents)
	if !ok {
		return model.UnifiedDashboardData{}, "", false
	}

	src := cache.SourcePrimary
	newest := nl.WrittenAt
	for _, e := range []struct {
		src cache.Source
		at  time.Time
	}{{nl.Source, nl.WrittenAt}, {week.Source, week.WrittenAt}, {events.Source, events.WrittenAt}} {
		if e.src == cache.SourceFallback {
			src = cache.SourceFallback
		}
		if e.at.After(newest) {
			newest = e.at
		}
	}
	return model.UnifiedDashboardData{
		NewsletterData: nl.Value,
		MyWeekData:     week.Value,
		CohortEvents:   events.Value.Normalize(),
		ProcessingInfo: model.ProcessingInfo{Timestamp: newest.UTC().Format(time.RFC3339Nano)},
	}, src, true
}

type stageA struct {
	payload model.NewsletterPayload
	err     error
	elapsed time.Duration
}

type stageB struct {
	events  model.CohortEvents
	err     error
	// partial names the feeds that failed while others succeeded; events holds the survivors.
	partial []string
	elapsed time.Duration
}

// complete reports whether every feed was fetched.
func (b stageB) complete() bool { return b.err == nil && len(b.partial) == 0 }

// Run executes the pipeline. Stages A and B each convert their own failure into a typed value
// before the join, so the join always waits for both.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	runID := uuid.NewString()
	log := o.log.With().Str("run_id", runID).Logger()
	start := o.now()

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	window := o.deps.Week.Window()
	log.Info().Bool("write_static", opts.WriteStatic).Bool("skip_newsletter", opts.SkipNewsletter).
		Str("week_start", window.StartDate()).Msg("pipeline started")

	var (
		a  stageA
		b  stageB
		wg sync.WaitGroup
	)
	if !opts.SkipNewsletter {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a = o.newsletterStage(ctx, log)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		b = o.calendarStage(ctx, window.Start, log)
	}()
	wg.Wait()

	res := RunResult{Writes: map[cache.Key]cache.WriteResult{}}

	// Newsletter used for synthesis and for the aggregate.
	var nl model.NewsletterPayload
	switch {
	case opts.SkipNewsletter:
		res.NewsletterSource = "skipped"
		nl = model.NewsletterPayload{Sections: []model.Section{}}
	case a.err != nil:
		cached, ok := cache.Get[model.NewsletterPayload](ctx, o.deps.Cache, cache.KeyNewsletter)
		if !ok {
			log.Error().Stack().Err(a.err).Msg("newsletter stage failed and no cached newsletter exists")
			return res, errors.Wrap(ErrUnrecoverable, a.err.Error())
		}
		log.Warn().Err(a.err).Str("source", string(cached.Source)).Msg("newsletter stage failed; using cached newsletter")
		res.NewsletterSource = "cache"
		res.Degraded = append(res.Degraded, "newsletter")
		nl = cached.Value
	default:
		res.NewsletterSource = "fresh"
		nl = a.payload
		if nl.Debug != nil && nl.Debug.Fallback {
			res.Degraded = append(res.Degraded, "reorganize")
		}
	}

	events := b.events
	switch {
	case b.err != nil:
		res.Degraded = append(res.Degraded, "calendar")
	case len(b.partial) > 0:
		res.Degraded = append(res.Degraded, "calendar-partial")
	}

	cStart := time.Now()
	week := o.deps.Week.Run(ctx, events, nl)
	cElapsed := time.Since(cStart)
	for _, c := range week.Degraded {
		res.Degraded = append(res.Degraded, "myweek-"+string(c))
	}
	observe("myweek", cElapsed, len(week.Degraded) > 0)

	// The midnight variant still serves the last scraped newsletter in the aggregate.
	haveNewsletter := !opts.SkipNewsletter
	if opts.SkipNewsletter {
		if cached, ok := cache.Get[model.NewsletterPayload](ctx, o.deps.Cache, cache.KeyNewsletter); ok {
			nl = cached.Value
			haveNewsletter = true
		}
	}

	end := o.now()
	res.Data = model.UnifiedDashboardData{
		NewsletterData: nl,
		MyWeekData:     week.Analysis,
		CohortEvents:   events.Normalize(),
		ProcessingInfo: model.ProcessingInfo{
			TotalTime:      end.Sub(start).Milliseconds(),
			NewsletterTime: a.elapsed.Milliseconds(),
			CalendarTime:   b.elapsed.Milliseconds(),
			MyWeekTime:     cElapsed.Milliseconds(),
			Timestamp:      end.UTC().Format(time.RFC3339Nano),
			RunID:          runID,
		},
	}

	o.write(ctx, &res, opts, a, b, len(week.Degraded) == 0, haveNewsletter)

	log.Info().
		Int64("total_ms", res.Data.ProcessingInfo.TotalTime).
		Int64("newsletter_ms", res.Data.ProcessingInfo.NewsletterTime).
		Int64("calendar_ms", res.Data.ProcessingInfo.CalendarTime).
		Int64("myweek_ms", res.Data.ProcessingInfo.MyWeekTime).
		Strs("degraded", res.Degraded).
		Msg("pipeline finished")
	return res, nil
}

// write caches only artifacts their stage produced without degradation, so an upstream blip is
// not pinned for a full TTL. The aggregate is written only when nothing degraded.
func (o *Orchestrator) write(ctx context.Context, res *RunResult, opts RunOptions, a stageA, b stageB, weekOK, haveNewsletter bool) {
	set := cache.SetOptions{WriteStatic: opts.WriteStatic}
	freshNewsletter := !opts.SkipNewsletter && a.err == nil && (a.payload.Debug == nil || !a.payload.Debug.Fallback)

	if freshNewsletter {
		res.Writes[cache.KeyNewsletter] = o.deps.Cache.Set(ctx, cache.KeyNewsletter, res.Data.NewsletterData, set)
	}
	if b.complete() {
		res.Writes[cache.KeyCohortEvents] = o.deps.Cache.Set(ctx, cache.KeyCohortEvents, res.Data.CohortEvents, set)
	}
	if b.complete() && weekOK {
		res.Writes[cache.KeyMyWeek] = o.deps.Cache.Set(ctx, cache.KeyMyWeek, res.Data.MyWeekData, set)
	}
	if len(res.Degraded) == 0 && haveNewsletter {
		res.Writes[cache.KeyDashboard] = o.deps.Cache.Set(ctx, cache.KeyDashboard, res.Data, set)
	}
}

// newsletterStage is a1+a2 (scrape) then a3 (reorganize). A reorganizer failure degrades to the
// unorganized catch-all section; a scrape failure fails the stage.
func (o *Orchestrator) newsletterStage(ctx context.Context, log zerolog.Logger) stageA {
	start := time.Now()
	issue, err := o.deps.Newsletter.Latest(ctx)
	if err != nil {
		observe("newsletter", time.Since(start), true)
		return stageA{err: err, elapsed: time.Since(start)}
	}

	payload, err := o.deps.Reorganizer.Reorganize(ctx, issue.Sections, issue.URL, issue.Title)
	if err != nil {
		log.Warn().Err(err).Str("url", issue.URL).Msg("reorganization failed; serving unorganized newsletter")
		payload = ai.Unorganized(issue.Sections, issue.URL, issue.Title, err)
	}
	if payload.Debug != nil && payload.Debug.ProcessingTime == 0 {
		payload.Debug.ProcessingTime = time.Since(start).Milliseconds()
	}
	observe("newsletter", time.Since(start), err != nil)
	return stageA{payload: payload, elapsed: time.Since(start)}
}

// calendarStage substitutes empty buckets on failure and keeps the surviving buckets when only
// some feeds failed.
func (o *Orchestrator) calendarStage(ctx context.Context, from time.Time, log zerolog.Logger) stageB {
	start := time.Now()
	events, err := o.deps.Calendar.Fetch(ctx, from)
	var partial *calendar.PartialError
	if errors.As(err, &partial) {
		log.Warn().Err(err).Strs("failed", partial.Failed).Msg("calendar stage partially failed")
		observe("calendar", time.Since(start), true)
		return stageB{events: events.Normalize(), partial: partial.Failed, elapsed: time.Since(start)}
	}
	if err != nil {
		log.Warn().Err(err).Msg("calendar stage failed; using empty buckets")
		observe("calendar", time.Since(start), true)
		return stageB{events: model.EmptyCohortEvents(), err: err, elapsed: time.Since(start)}
	}
	observe("calendar", time.Since(start), false)
	return stageB{events: events.Normalize(), elapsed: time.Since(start)}
}

func observe(stage string, d time.Duration, degraded bool) {
	outcome := metrics.OutcomeOK
	if degraded {
		outcome = metrics.OutcomeDegraded
	}
	metrics.StageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

// CohortEvents returns the bucketed events, fetching and caching them on a miss.
func (o *Orchestrator) CohortEvents(ctx context.Context) (model.CohortEvents, cache.Source, error) {
	if e, ok := cache.Get[model.CohortEvents](ctx, o.deps.Cache, cache.KeyCohortEvents); ok {
		return e.Value.Normalize(), e.Source, nil
	}
	events, err := o.deps.Calendar.Fetch(ctx, o.deps.Week.Window().Start)
	var partial *calendar.PartialError
	switch {
	case errors.As(err, &partial):
		// Serve the surviving buckets but do not pin the gap in the cache.
		o.log.Warn().Err(err).Strs("failed", partial.Failed).Msg("cohort events partially fetched; not cached")
		return events.Normalize(), cache.SourceFresh, nil
	case err != nil:
		return model.EmptyCohortEvents(), "", err
	}
	events = events.Normalize()
	o.deps.Cache.Set(ctx, cache.KeyCohortEvents, events, cache.SetOptions{})
	return events, cache.SourceFresh, nil
}
