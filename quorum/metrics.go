package quorum

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus-compatible metrics for run monitoring.
//
// Metrics exposed (all namespaced with "quorum_"):
//
// 1. inflight_invocations (gauge): Worker invocations currently executing.
// Use: Monitor concurrency levels against the configured limit.
//
// 2. invocation_latency_ms (histogram): Invocation duration in milliseconds.
// Labels: role, status (succeeded/timed_out/failed/malformed).
// Buckets: [10, 50, 100, 500, 1000, 5000, 15000, 60000, 120000].
// Use: P50/P95/P99 latency analysis per worker role.
//
// 3. retries_total (counter): Cumulative invocation retry attempts.
// Labels: role, reason (timeout, transient).
// Use: Identify flaky roles and backend error patterns.
//
// 4. malformed_outputs_total (counter): Worker outputs the decode cascade
// could not recover. Labels: role.
// Use: Track structured-output compliance per role.
//
// 5. escalations_total (counter): Mutation claims that exhausted their
// verification budget unverified.
// Use: Monitor ground truth divergence.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := NewMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// Thread-safe: all methods delegate to Prometheus collectors.
type Metrics struct {
	inflight    prometheus.Gauge
	latency     *prometheus.HistogramVec
	retries     *prometheus.CounterVec
	malformed   *prometheus.CounterVec
	escalations prometheus.Counter

	registry prometheus.Registerer
}

// NewMetrics creates and registers all run metrics with the provided
// registry. A nil registry falls back to prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	m := &Metrics{registry: registry}

	m.inflight = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "quorum",
		Name:      "inflight_invocations",
		Help:      "Worker invocations currently executing",
	})

	m.latency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quorum",
		Name:      "invocation_latency_ms",
		Help:      "Worker invocation duration in milliseconds (dispatch to terminal status)",
		Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 15000, 60000, 120000},
	}, []string{"role", "status"})

	m.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quorum",
		Name:      "retries_total",
		Help:      "Cumulative count of invocation retry attempts",
	}, []string{"role", "reason"}) // reason: timeout, transient

	m.malformed = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quorum",
		Name:      "malformed_outputs_total",
		Help:      "Worker outputs rejected by every stage of the decode cascade",
	}, []string{"role"})

	m.escalations = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "quorum",
		Name:      "escalations_total",
		Help:      "Mutation claims that exhausted their verification budget unverified",
	})

	return m
}

// InvocationStarted increments the in-flight gauge.
func (m *Metrics) InvocationStarted() {
	m.inflight.Inc()
}

// InvocationFinished decrements the in-flight gauge.
func (m *Metrics) InvocationFinished() {
	m.inflight.Dec()
}

// InvocationLatency records the duration of a terminal invocation.
// status is the lowercase terminal status name.
func (m *Metrics) InvocationLatency(role, status string, latency time.Duration) {
	m.latency.WithLabelValues(role, status).Observe(float64(latency.Milliseconds()))
}

// InvocationRetried increments the retry counter for a role and reason.
func (m *Metrics) InvocationRetried(role, reason string) {
	m.retries.WithLabelValues(role, reason).Inc()
}

// MalformedOutput increments the malformed output counter for a role.
func (m *Metrics) MalformedOutput(role string) {
	m.malformed.WithLabelValues(role).Inc()
}

// EscalationRecorded increments the escalation counter.
func (m *Metrics) EscalationRecorded() {
	m.escalations.Inc()
}
