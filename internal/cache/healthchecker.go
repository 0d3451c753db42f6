package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vibeshift/dashboard/internal/health"
	"github.com/vibeshift/dashboard/internal/kv"
)

// TierHealthChecker monitors one cache tier with periodic probes.
type TierHealthChecker struct {
	name         string
	probeFn      func(ctx context.Context) error
	healthy      atomic.Int32
	log          zerolog.Logger
	probeTimeout time.Duration
}

// NewPrimaryHealthChecker probes the primary store, preferring HealthPing when available.
func NewPrimaryHealthChecker(store kv.Store, log zerolog.Logger, probeTimeout time.Duration) *TierHealthChecker {
	return newTierHealthChecker("primary-cache", func(ctx context.Context) error {
		if p, ok := store.(health.HealthPinger); ok {
			return p.HealthPing(ctx)
		}
		// Fallback: a read of a key that never exists; ErrNotFound means the store answered.
		_, err := store.Get(ctx, "__health_check__")
		if err == nil || errors.Is(err, kv.ErrNotFound) {
			return nil
		}
		return err
	}, log, probeTimeout)
}

// NewStaticHealthChecker probes the static-file directory.
func NewStaticHealthChecker(static *FileStore, log zerolog.Logger, probeTimeout time.Duration) *TierHealthChecker {
	return newTierHealthChecker("static-cache", func(context.Context) error {
		return static.HealthPing()
	}, log, probeTimeout)
}

func newTierHealthChecker(name string, probe func(ctx context.Context) error, log zerolog.Logger, probeTimeout time.Duration) *TierHealthChecker {
	hc := &TierHealthChecker{name: name, probeFn: probe, log: log, probeTimeout: probeTimeout}
	hc.healthy.Store(0) // start unhealthy until first successful probe
	return hc
}

// Name returns the checker name.
func (hc *TierHealthChecker) Name() string { return hc.name }

// IsHealthy returns the cached health status (non-blocking).
func (hc *TierHealthChecker) IsHealthy() bool { return hc.healthy.Load() == 1 }

// Start begins periodic health checking.
func (hc *TierHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	check := func() {
		to := hc.probeTimeout
		if to <= 0 {
			to = 2 * time.Second
		}
		checkCtx, cancel := context.WithTimeout(ctx, to)
		defer cancel()

		if err := hc.probeFn(checkCtx); err != nil {
			hc.healthy.Store(0)
			hc.log.Error().Stack().Str("checker", hc.name).Err(err).Msg("cache tier health check failed")
			return
		}
		hc.healthy.Store(1)
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
