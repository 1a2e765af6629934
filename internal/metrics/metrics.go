// Package metrics declares the Prometheus collectors of the attribution pipeline.
// They are exposed on GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DedupDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribution_dedup_decisions_total",
			Help: "Deduplication gate decisions",
		},
		[]string{"operation", "decision"}, // allowed, suppressed, store_error
	)

	CounterUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribution_counter_updates_total",
			Help: "Primary store counter increments",
		},
		[]string{"counter", "outcome"},
	)

	SinkDispatch = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribution_sink_dispatch_total",
			Help: "Sink dispatch attempts by outcome",
		},
		[]string{"sink", "outcome"}, // reported, failed, skipped, rejected
	)

	SinkDispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attribution_sink_dispatch_duration_seconds",
			Help:    "Sink dispatch latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"sink"},
	)

	TimeSeriesRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attribution_timeseries_retries_total",
			Help: "Time-series ingest retries after HTTP 429",
		},
	)

	IngestQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "attribution_ingest_queue_depth",
			Help: "Jobs waiting in the background ingest queue",
		},
	)

	IngestJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribution_ingest_jobs_total",
			Help: "Background ingest jobs by outcome",
		},
		[]string{"job", "outcome"}, // ok, failed, rejected
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "attribution_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)
