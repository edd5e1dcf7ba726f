package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	registry         *prometheus.Registry
	requestCount     *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	errorCount       *prometheus.CounterVec
	dispatchAttempts *prometheus.CounterVec
	assignments      *prometheus.CounterVec
	complexityScores *prometheus.HistogramVec
}

// NewMetrics registers collectors on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_dispatch_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ticket_dispatch_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_dispatch_http_errors_total",
			Help: "HTTP error responses by route and error code.",
		}, []string{"path", "method", "code"}),
		dispatchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_dispatch_devin_attempts_total",
			Help: "Devin session HTTP attempts by result.",
		}, []string{"result"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_dispatch_assignments_total",
			Help: "Terminal ticket assignment outcomes.",
		}, []string{"status"}),
		complexityScores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ticket_dispatch_complexity_score",
			Help:    "Distribution of computed complexity scores.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}, []string{"category"}),
	}
	m.registry.MustRegister(
		m.requestCount,
		m.requestDuration,
		m.errorCount,
		m.dispatchAttempts,
		m.assignments,
		m.complexityScores,
		prometheus.NewGoCollector(),
	)
	return m
}

// Registry exposes the gatherer for the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorCount.WithLabelValues(path, method, code).Inc()
}

// RecordDispatchAttempt counts one Devin HTTP attempt.
func (m *Metrics) RecordDispatchAttempt(result string) {
	if m == nil {
		return
	}
	m.dispatchAttempts.WithLabelValues(result).Inc()
}

// RecordAssignment counts one terminal ticket outcome.
func (m *Metrics) RecordAssignment(status string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(status).Inc()
}

// RecordComplexity observes a computed score.
func (m *Metrics) RecordComplexity(category string, score int) {
	if m == nil {
		return
	}
	m.complexityScores.WithLabelValues(category).Observe(float64(score))
}
