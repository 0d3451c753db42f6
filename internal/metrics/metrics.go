// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts reads by key and the tier that answered (primary, fallback, miss).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dashboard",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache reads by key and serving tier.",
		},
		[]string{"key", "source"},
	)

	// CacheWrites counts writes by key, tier and outcome.
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dashboard",
			Subsystem: "cache",
			Name:      "writes_total",
			Help:      "Cache writes by key, tier and outcome.",
		},
		[]string{"key", "tier", "outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dashboard",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of each pipeline stage.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		},
		[]string{"stage", "outcome"},
	)

	AIAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dashboard",
			Subsystem: "ai",
			Name:      "attempts_total",
			Help:      "Model attempts by call site, model and outcome.",
		},
		[]string{"call_site", "model", "outcome"},
	)

	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dashboard",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Scheduled refresh job runs by job and outcome.",
		},
		[]string{"job", "outcome"},
	)
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeError    = "error"
)
