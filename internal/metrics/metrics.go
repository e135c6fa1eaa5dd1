// Package metrics exposes Prometheus instrumentation for the API and the
// background workers.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing,
// so packages can take one without forcing tests to build a registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	jobsProcessed  *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobsDispatched *prometheus.CounterVec
	jobsRetried    *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec

	chatReplies      *prometheus.CounterVec
	reconcilerMarked *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, plus the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ayupilot",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ayupilot",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		jobsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ayupilot",
			Name:      "jobs_processed_total",
			Help:      "Job handler runs by kind and outcome (completed, failed, dropped, duplicate).",
		}, []string{"kind", "outcome"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ayupilot",
			Name:      "job_duration_seconds",
			Help:      "Job handler latency by kind.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"kind"}),
		jobsDispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ayupilot",
			Name:      "jobs_dispatched_total",
			Help:      "Dispatch calls by kind and mode (queued, inline).",
		}, []string{"kind", "mode"}),
		jobsRetried: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ayupilot",
			Name:      "jobs_retried_total",
			Help:      "Failed jobs rescheduled for another attempt.",
		}, []string{"kind"}),
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ayupilot",
			Name:      "queue_depth",
			Help:      "Tasks waiting in the work queue.",
		}, []string{"state"}),
		chatReplies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ayupilot",
			Name:      "chat_replies_total",
			Help:      "Chat requests by outcome (answered, timeout).",
		}, []string{"outcome"}),
		reconcilerMarked: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ayupilot",
			Name:      "reconciler_appointments_total",
			Help:      "Appointments moved by the reconciler, by resulting status.",
		}, []string{"status"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveJob(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobsProcessed.WithLabelValues(kind, outcome).Inc()
	m.jobDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) JobDispatched(kind, mode string) {
	if m == nil {
		return
	}
	m.jobsDispatched.WithLabelValues(kind, mode).Inc()
}

func (m *Metrics) JobRetried(kind string) {
	if m == nil {
		return
	}
	m.jobsRetried.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetQueueDepth(ready, delayed int64) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues("ready").Set(float64(ready))
	m.queueDepth.WithLabelValues("delayed").Set(float64(delayed))
}

func (m *Metrics) ChatReply(outcome string) {
	if m == nil {
		return
	}
	m.chatReplies.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ReconcilerMarked(status string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.reconcilerMarked.WithLabelValues(status).Add(float64(n))
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
