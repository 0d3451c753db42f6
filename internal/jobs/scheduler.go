package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Entry fires a job once a day at Hour:Minute in the scheduler's zone.
type Entry struct {
	Job    string
	Hour   int
	Minute int
}

// SchedulerConfig controls the polling cadence.
type SchedulerConfig struct {
	Location *time.Location
	Interval time.Duration // poll interval
}

// Scheduler polls the wall clock and fires due entries in order. A job that runs past the next
// poll simply delays it; missed ticks are not replayed.
type Scheduler struct {
	jobs    *Jobs
	entries []Entry
	next    []time.Time
	cfg     SchedulerConfig
	log     zerolog.Logger
	now     func() time.Time
}

// NewScheduler constructs a Scheduler. Entries fire for the first time at their next occurrence
// after construction.
func NewScheduler(j *Jobs, entries []Entry, cfg SchedulerConfig, log zerolog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	s := &Scheduler{
		jobs:    j,
		entries: entries,
		cfg:     cfg,
		log:     log.With().Str("component", "scheduler").Logger(),
		now:     time.Now,
	}
	s.reset()
	return s
}

// WithClock replaces the wall clock and recomputes the next fire times.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	s.reset()
	return s
}

func (s *Scheduler) reset() {
	now := s.now()
	s.next = make([]time.Time, len(s.entries))
	for i, e := range s.entries {
		s.next[i] = NextRun(now, e.Hour, e.Minute, s.cfg.Location)
	}
}

// NextRun returns the first hour:minute in loc strictly after now.
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	at := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !at.After(now) {
		at = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return at
}

// Run starts the polling loop until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	ev := s.log.Info().Dur("interval", s.cfg.Interval).Str("tz", s.cfg.Location.String())
	for i, e := range s.entries {
		ev = ev.Time(e.Job, s.next[i])
	}
	ev.Msg("scheduler starting")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx, s.now())
		}
	}
}

// tick fires every entry due at now and returns the summaries produced.
func (s *Scheduler) tick(ctx context.Context, now time.Time) []Summary {
	var out []Summary
	for i, e := range s.entries {
		if now.Before(s.next[i]) {
			continue
		}
		sum, err := s.jobs.Trigger(ctx, e.Job)
		if err != nil {
			s.log.Error().Err(err).Str("job", e.Job).Msg("scheduled trigger failed")
		} else {
			out = append(out, sum)
		}
		s.next[i] = NextRun(now, e.Hour, e.Minute, s.cfg.Location)
		s.log.Debug().Str("job", e.Job).Time("next", s.next[i]).Msg("rescheduled")
	}
	return out
}
