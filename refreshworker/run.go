// Package refreshworker runs the refresh jobs on a daily schedule in-process.
package refreshworker

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/vibeshift/dashboard/internal/config"
	"github.com/vibeshift/dashboard/internal/factory"
	"github.com/vibeshift/dashboard/internal/jobs"
	"github.com/vibeshift/dashboard/internal/logger"
)

// Options select the worker mode.
type Options struct {
	// RunOnce runs the named job immediately, prints its summary and exits.
	RunOnce string
}

// Run starts the scheduler and blocks until shutdown or error.
func Run(opts Options) error {
	log := logger.New("refresh-worker")
	zlog.Logger = log

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("config")
		return err
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := factory.NewPipeline(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("pipeline wiring failed")
		return err
	}
	defer func() { _ = p.Close() }()

	if opts.RunOnce != "" {
		sum, err := p.Jobs.Trigger(ctx, opts.RunOnce)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(sum)
		if !sum.Success {
			return errors.Errorf("job %s failed: %s", sum.Job, sum.Error)
		}
		return nil
	}

	entries, err := Entries(cfg)
	if err != nil {
		return err
	}
	s := jobs.NewScheduler(p.Jobs, entries, jobs.SchedulerConfig{
		Location: cfg.Location(),
		Interval: 30 * time.Second,
	}, log)

	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("refresh worker exit")
		return err
	}
	return nil
}

// Entries builds the daily schedule from the configured wall-clock times.
func Entries(cfg *config.Config) ([]jobs.Entry, error) {
	nh, nm, err := config.ParseClock(cfg.NewsletterRefreshAt)
	if err != nil {
		return nil, err
	}
	ch, cm, err := config.ParseClock(cfg.CacheRefreshAt)
	if err != nil {
		return nil, err
	}
	return []jobs.Entry{
		{Job: jobs.NameNewsletterRefresh, Hour: nh, Minute: nm},
		{Job: jobs.NameCacheRefresh, Hour: ch, Minute: cm},
	}, nil
}
