// Package telemetry exposes Prometheus metrics for the gateway pipeline on a
// custom registry, no global state.
package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for Warden.
type Metrics struct {
	Registry *prometheus.Registry

	// Pipeline metrics.
	CallsTotal   *prometheus.CounterVec
	SubjectCalls *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
	ErrorsTotal  *prometheus.CounterVec

	// Approval metrics.
	ApprovalsCreated  *prometheus.CounterVec
	ApprovalsResolved *prometheus.CounterVec

	// Rate-limit metrics.
	RateLimitedTotal *prometheus.CounterVec

	// HTTP surface metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ActiveCalls prometheus.Gauge
}

// NewMetrics creates the collectors registered on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "gateway",
			Name:      "calls_total",
			Help:      "Total proxied operation calls by outcome.",
		}, []string{"server", "method", "status"}),

		SubjectCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "gateway",
			Name:      "subject_calls_total",
			Help:      "Proxied operation calls per rate-limit subject (user or team).",
		}, []string{"subject", "status"}),

		CallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "warden",
			Subsystem: "gateway",
			Name:      "call_duration_seconds",
			Help:      "End-to-end pipeline duration per call.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 10, 30},
		}, []string{"server", "method"}),

		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "gateway",
			Name:      "errors_total",
			Help:      "Pipeline errors by kind.",
		}, []string{"kind"}),

		ApprovalsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "approval",
			Name:      "created_total",
			Help:      "Approval requests opened, by rule.",
		}, []string{"rule"}),

		ApprovalsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "approval",
			Name:      "resolved_total",
			Help:      "Approval requests resolved, by terminal state.",
		}, []string{"state"}),

		RateLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "ratelimit",
			Name:      "denied_total",
			Help:      "Calls denied by the policy rate limiter.",
		}, []string{"server"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "warden",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "warden",
			Name:      "active_calls",
			Help:      "Calls currently in the pipeline.",
		}),
	}

	reg.MustRegister(
		m.CallsTotal,
		m.SubjectCalls,
		m.CallDuration,
		m.ErrorsTotal,
		m.ApprovalsCreated,
		m.ApprovalsResolved,
		m.RateLimitedTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveCalls,
	)

	return m
}

// ObserveCall records one pipeline outcome.
func (m *Metrics) ObserveCall(subject, server, method, status, errorKind string, duration time.Duration) {
	m.CallsTotal.WithLabelValues(server, method, status).Inc()
	m.SubjectCalls.WithLabelValues(subject, status).Inc()
	m.CallDuration.WithLabelValues(server, method).Observe(duration.Seconds())
	if errorKind != "" {
		m.ErrorsTotal.WithLabelValues(errorKind).Inc()
	}
	if status == "rate_limited" {
		m.RateLimitedTotal.WithLabelValues(server).Inc()
	}
}

// CallStarted marks a call entering the pipeline.
func (m *Metrics) CallStarted() { m.ActiveCalls.Inc() }

// CallDone marks a call leaving the pipeline.
func (m *Metrics) CallDone() { m.ActiveCalls.Dec() }

// ObserveHTTP records one served HTTP request. path should be the route
// pattern, not the raw URL, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, path string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveApprovalCreated records a newly opened approval request.
func (m *Metrics) ObserveApprovalCreated(rule string) {
	m.ApprovalsCreated.WithLabelValues(rule).Inc()
}

// ObserveApprovalResolved records a request reaching a terminal state.
func (m *Metrics) ObserveApprovalResolved(state string) {
	m.ApprovalsResolved.WithLabelValues(state).Inc()
}
