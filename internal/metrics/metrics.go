package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Colorization path label values.
const (
	PathPersistent = "persistent"
	PathEphemeral  = "ephemeral"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing, so components can be built without a registry in tests.
type Metrics struct {
	colorizations *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	storeRetries  *prometheus.CounterVec
	storeFailures *prometheus.CounterVec
	jobs          *prometheus.CounterVec
}

// New registers the collectors on reg. A nil registerer yields a no-op Metrics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	colorizations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "colorize_requests_total",
		Help: "Colorization attempts by path and outcome.",
	}, []string{"path", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "colorize_duration_seconds",
		Help:    "Duration of colorization model calls in seconds.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
	}, []string{"path"})
	storeRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_operation_retries_total",
		Help: "Retries of store operations after transient failures.",
	}, []string{"op"})
	storeFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_operation_failures_total",
		Help: "Store operations that failed after retries.",
	}, []string{"op"})
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "colorize_jobs_total",
		Help: "Background jobs handled by the worker, by result.",
	}, []string{"result"})

	reg.MustRegister(colorizations, duration, storeRetries, storeFailures, jobs)
	return &Metrics{
		colorizations: colorizations,
		duration:      duration,
		storeRetries:  storeRetries,
		storeFailures: storeFailures,
		jobs:          jobs,
	}
}

// ObserveColorization records one model call.
func (m *Metrics) ObserveColorization(path, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.colorizations.WithLabelValues(path, outcome).Inc()
	m.duration.WithLabelValues(path).Observe(d.Seconds())
}

// IncStoreRetry counts a retried store operation.
func (m *Metrics) IncStoreRetry(op string) {
	if m == nil {
		return
	}
	m.storeRetries.WithLabelValues(normalizeLabel(op)).Inc()
}

// IncStoreFailure counts a store operation that gave up.
func (m *Metrics) IncStoreFailure(op string) {
	if m == nil {
		return
	}
	m.storeFailures.WithLabelValues(normalizeLabel(op)).Inc()
}

// IncJob counts a worker job by result (ack, requeue, reject).
func (m *Metrics) IncJob(result string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
