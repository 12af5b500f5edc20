package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_requests_total",
			Help: "Total number of questions handled, by intent and outcome.",
		},
		[]string{"intent", "outcome"},
	)
	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_stage_duration_seconds",
			Help:    "Latency of each pipeline stage.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)
	modelRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_model_retries_total",
			Help: "Total number of retried language model calls.",
		},
	)
	rowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_rows_returned",
			Help:    "Rows returned per executed query.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 200, 500},
		},
	)
	auditFlushFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_audit_flush_failures_total",
			Help: "Total number of failed audit archive flushes.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		requestsTotal,
		stageDurationSeconds,
		modelRetriesTotal,
		rowsReturned,
		auditFlushFailuresTotal,
	)
}

func ObserveRequest(intent, outcome string) {
	requestsTotal.WithLabelValues(intent, outcome).Inc()
}

func ObserveStage(stage string, elapsed time.Duration) {
	stageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func IncrementModelRetries() {
	modelRetriesTotal.Inc()
}

func ObserveRowsReturned(rows int) {
	if rows < 0 {
		rows = 0
	}
	rowsReturned.Observe(float64(rows))
}

func IncrementAuditFlushFailures() {
	auditFlushFailuresTotal.Inc()
}
