package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("upbb.engine")

var (
	// evaluationsTotal counts evaluations by outcome kind.
	// Labels: "defined", "non_finite", "undefined"
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upbb_evaluations_total",
		Help: "Total model evaluations by outcome kind",
	}, []string{"outcome"})

	// runsTotal counts finished runs by terminal state.
	// Labels: "completed", "failed", "cancelled"
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upbb_runs_total",
		Help: "Total propagation runs by terminal state",
	}, []string{"state"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upbb_run_duration_seconds",
		Help:    "Propagation run duration by method",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"method"})

	plannedSamples = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "upbb_run_planned_samples",
		Help:    "Number of samples in each run's partition plan",
		Buckets: prometheus.ExponentialBuckets(1, 8, 8),
	})
)
