// Package dashboardservice runs the dashboard HTTP service.
package dashboardservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/vibeshift/dashboard/internal/api"
	"github.com/vibeshift/dashboard/internal/cache"
	"github.com/vibeshift/dashboard/internal/config"
	"github.com/vibeshift/dashboard/internal/factory"
	"github.com/vibeshift/dashboard/internal/health"
	"github.com/vibeshift/dashboard/internal/logger"
)

// Run starts the dashboard HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("dashboard-service")
	zlog.Logger = log

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	logger.SetLevel(cfg.LogLevel)

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("cache_driver", cfg.CacheDriver).
		Int("http_port", cfg.HTTPPort).
		Str("time_zone", cfg.TimeZone).
		Msg("Dashboard service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	p, err := factory.NewPipeline(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Pipeline wiring failed")
		return err
	}
	defer func() { _ = p.Close() }()

	// Start health checkers and bind service health
	svcHealth := startHealthCheckers(ctx, cfg, log, p.Cache)

	router := buildRouter(cfg, log, p, svcHealth)

	// Block startup until the static tier is usable; fail fast otherwise
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// buildRouter wires HTTP routes to handlers.
func buildRouter(cfg *config.Config, log zerolog.Logger, p *factory.Pipeline, svcHealth *health.ServiceHealthChecker) *mux.Router {
	return api.NewRouter(api.Deps{
		Dashboard:  p.Orchestrator,
		Week:       p.Week,
		Jobs:       p.Jobs,
		Cache:      p.Cache,
		Health:     svcHealth,
		CronSecret: cfg.CronSecret,
		Location:   cfg.Location(),
		Log:        log,
	})
}

// startHealthCheckers starts tier checkers and the service-level aggregator. The primary tier
// is optional: without it the dashboard is served from static files.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, h *cache.Hybrid) *health.ServiceHealthChecker {
	var checkers []health.HealthChecker
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	staticChecker := cache.NewStaticHealthChecker(h.Static(), log, probeTimeout)
	go staticChecker.Start(ctx, interval)
	checkers = append(checkers, staticChecker)

	var primaryName string
	if h.HasPrimary() {
		primaryChecker := cache.NewPrimaryHealthChecker(h.Primary(), log, probeTimeout)
		go primaryChecker.Start(ctx, interval)
		checkers = append(checkers, primaryChecker)
		primaryName = primaryChecker.Name()
	}

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	if primaryName != "" {
		svcHealth.MarkOptional(primaryName)
	}
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// A cold dashboard request or a cron trigger runs the whole pipeline.
		WriteTimeout: cfg.PipelineTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// calculateStartupHealthTimeout returns the startup health timeout in seconds,
// calculated as interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
