package factory

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vibeshift/dashboard/internal/ai"
	"github.com/vibeshift/dashboard/internal/cache"
	"github.com/vibeshift/dashboard/internal/calendar"
	"github.com/vibeshift/dashboard/internal/config"
	"github.com/vibeshift/dashboard/internal/dashboard"
	"github.com/vibeshift/dashboard/internal/fetch"
	"github.com/vibeshift/dashboard/internal/jobs"
	"github.com/vibeshift/dashboard/internal/kv"
	"github.com/vibeshift/dashboard/internal/myweek"
	"github.com/vibeshift/dashboard/internal/newsletter"
)

// Pipeline is the fully wired dashboard: cache tiers, upstream collaborators, orchestrator and jobs.
type Pipeline struct {
	Store        kv.Store // nil when the primary tier is disabled
	Cache        *cache.Hybrid
	Week         *myweek.Synthesizer
	Orchestrator *dashboard.Orchestrator
	Jobs         *jobs.Jobs
}

// Close releases the primary store when it holds resources.
func (p *Pipeline) Close() error {
	if c, ok := p.Store.(kv.Closer); ok {
		return c.Close()
	}
	return nil
}

// NewCache builds the hybrid cache over the configured primary store and the static directory.
func NewCache(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*cache.Hybrid, kv.Store, error) {
	store, err := NewStore(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return cache.NewHybrid(store, cache.NewFileStore(cfg.StaticCacheDir), cfg.CacheTTL(), log), store, nil
}

// NewPipeline wires every component from cfg.
func NewPipeline(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Pipeline, error) {
	hybrid, store, err := NewCache(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.AIAPIKey == "" {
		log.Warn().Msg("AI_API_KEY not set; reorganization and weekly summaries will degrade to fallbacks")
	}
	completer := ai.NewClient(cfg.AIBaseURL, cfg.AIAPIKey)
	reorganizer := ai.NewReorganizer(ai.NewChain(ai.CallSiteReorganize, completer, cfg.AIPrimaryModel, cfg.AIFallbackModels, cfg.AITimeout(), log))
	summarizer := ai.NewWeekSummarizer(ai.NewChain(ai.CallSiteWeekSummary, completer, cfg.AIPrimaryModel, cfg.AIFallbackModels, cfg.AITimeout(), log))

	getter := fetch.New(fetch.Options{Timeout: cfg.FetchTimeout(), MaxRetries: 2})
	loc := cfg.Location()

	week := myweek.NewSynthesizer(summarizer, loc, log)
	orch := dashboard.New(dashboard.Deps{
		Cache:       hybrid,
		Newsletter:  newsletter.NewScraper(getter, cfg.NewsletterArchiveURL, log),
		Reorganizer: reorganizer,
		Calendar: calendar.NewFetcher(getter, cfg.CalendarFeeds(), calendar.Options{
			DaysAhead: cfg.CalendarDaysAhead,
			Limit:     cfg.CalendarLimit,
			Location:  loc,
		}, log),
		Week: week,
	}, cfg.PipelineTimeout(), log)

	return &Pipeline{
		Store:        store,
		Cache:        hybrid,
		Week:         week,
		Orchestrator: orch,
		Jobs:         jobs.New(orch, log),
	}, nil
}
