// Package jobs holds the two refresh jobs that pre-warm both cache tiers, and the daily
// scheduler that fires them for deployments without an external cron.
package jobs

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/vibeshift/dashboard/internal/cache"
	"github.com/vibeshift/dashboard/internal/dashboard"
	"github.com/vibeshift/dashboard/internal/metrics"
	"github.com/vibeshift/dashboard/internal/model"
)

// Job names, also used as trigger path segments and metric labels.
const (
	NameNewsletterRefresh = "refresh-newsletter"
	NameCacheRefresh      = "refresh-cache"
)

// ErrUnknownJob is returned by Trigger for a name outside the fixed set.
var ErrUnknownJob = errors.New("jobs: unknown job")

// Runner executes one pipeline variant. *dashboard.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, opts dashboard.RunOptions) (dashboard.RunResult, error)
}

// Summary is the JSON body returned to whoever triggered a job.
type Summary struct {
	Success          bool                            `json:"success"`
	Message          string                          `json:"message"`
	Timestamp        string                          `json:"timestamp"`
	Job              string                          `json:"job"`
	RunID            string                          `json:"runId,omitempty"`
	NewsletterSource string                          `json:"newsletterSource,omitempty"`
	Sections         int                             `json:"sections"`
	BlueEvents       int                             `json:"blueEvents"`
	GoldEvents       int                             `json:"goldEvents"`
	WeekStart        string                          `json:"weekStart,omitempty"`
	Degraded         []string                        `json:"degraded,omitempty"`
	Writes           map[cache.Key]cache.WriteResult `json:"writes,omitempty"`
	ProcessingInfo   *model.ProcessingInfo           `json:"processingInfo,omitempty"`
	Error            string                          `json:"error,omitempty"`
}

// Jobs runs the refresh variants against a Runner. Each run is idempotent: it recomputes and
// replaces whole cache values.
type Jobs struct {
	runner Runner
	log    zerolog.Logger
	now    func() time.Time
}

// New returns the job set.
func New(r Runner, log zerolog.Logger) *Jobs {
	return &Jobs{runner: r, log: log.With().Str("component", "jobs").Logger(), now: time.Now}
}

// NewsletterRefresh scrapes, reorganizes, fetches calendars, synthesizes the week and writes
// every produced artifact to both tiers.
func (j *Jobs) NewsletterRefresh(ctx context.Context) Summary {
	return j.run(ctx, NameNewsletterRefresh, dashboard.RunOptions{WriteStatic: true})
}

// CacheRefresh refreshes the calendar-derived artifacts without re-scraping the newsletter.
func (j *Jobs) CacheRefresh(ctx context.Context) Summary {
	return j.run(ctx, NameCacheRefresh, dashboard.RunOptions{WriteStatic: true, SkipNewsletter: true})
}

// Trigger runs a job by name.
func (j *Jobs) Trigger(ctx context.Context, name string) (Summary, error) {
	switch name {
	case NameNewsletterRefresh:
		return j.NewsletterRefresh(ctx), nil
	case NameCacheRefresh:
		return j.CacheRefresh(ctx), nil
	}
	return Summary{}, errors.Wrapf(ErrUnknownJob, "%q", name)
}

func (j *Jobs) run(ctx context.Context, name string, opts dashboard.RunOptions) Summary {
	log := j.log.With().Str("job", name).Logger()
	log.Info().Msg("refresh job started")
	start := time.Now()

	res, err := j.runner.Run(ctx, opts)
	sum := Summary{Job: name, Timestamp: j.now().UTC().Format(time.RFC3339)}
	if err != nil {
		metrics.JobRuns.WithLabelValues(name, metrics.OutcomeError).Inc()
		log.Error().Stack().Err(err).Dur("elapsed", time.Since(start)).Msg("refresh job failed")
		sum.Message = "Refresh failed"
		sum.Error = err.Error()
		return sum
	}

	d := res.Data
	sum.Success = true
	sum.RunID = d.ProcessingInfo.RunID
	sum.NewsletterSource = res.NewsletterSource
	sum.Sections = len(d.NewsletterData.Sections)
	sum.BlueEvents = len(d.MyWeekData.BlueEvents)
	sum.GoldEvents = len(d.MyWeekData.GoldEvents)
	sum.WeekStart = d.MyWeekData.WeekStart
	sum.Degraded = res.Degraded
	sum.Writes = res.Writes
	sum.ProcessingInfo = &d.ProcessingInfo

	outcome := metrics.OutcomeOK
	switch {
	case len(res.Degraded) > 0:
		outcome = metrics.OutcomeDegraded
		sum.Message = "Refresh completed with degraded stages"
	case opts.SkipNewsletter:
		sum.Message = "Calendar and weekly summaries refreshed"
	default:
		sum.Message = "Newsletter, calendar and weekly summaries refreshed"
	}
	metrics.JobRuns.WithLabelValues(name, outcome).Inc()

	log.Info().
		Str("run_id", sum.RunID).
		Strs("degraded", res.Degraded).
		Int("sections", sum.Sections).
		Dur("elapsed", time.Since(start)).
		Msg("refresh job finished")
	return sum
}
