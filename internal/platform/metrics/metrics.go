// Package metrics exposes Prometheus collectors for sync and grading.
// All recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quiz"

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	syncActions     *prometheus.CounterVec
	syncDuration    prometheus.Histogram
	gradingAttempts *prometheus.CounterVec
	graderRequests  *prometheus.CounterVec
	graderLatency   *prometheus.HistogramVec
	pendingBatch    prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		syncActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_topics_total",
			Help:      "Topics touched by file synchronization, by action.",
		}, []string{"action"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of a full file synchronization.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15},
		}),
		gradingAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grading_attempts_total",
			Help:      "Attempts finished by the grading worker, by outcome.",
		}, []string{"outcome"}),
		graderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grader_requests_total",
			Help:      "Requests sent to the external grader, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		graderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grader_request_duration_seconds",
			Help:      "Latency of external grader requests.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
		pendingBatch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grading_batch_size",
			Help:      "Pending attempts picked up in the last grading cycle.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.syncActions,
		m.syncDuration,
		m.gradingAttempts,
		m.graderRequests,
		m.graderLatency,
		m.pendingBatch,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SyncAction(action string) {
	if m == nil {
		return
	}
	m.syncActions.WithLabelValues(action).Inc()
}

func (m *Metrics) SyncDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.syncDuration.Observe(d.Seconds())
}

func (m *Metrics) AttemptFinished(outcome string) {
	if m == nil {
		return
	}
	m.gradingAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) GraderRequest(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.graderRequests.WithLabelValues(provider, outcome).Inc()
	m.graderLatency.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) BatchSize(n int) {
	if m == nil {
		return
	}
	m.pendingBatch.Set(float64(n))
}
