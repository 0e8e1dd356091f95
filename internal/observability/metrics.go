package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/alerts"
)

// Metrics collects the Prometheus metrics exposed by the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	entries        *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	alertEvents    *prometheus.CounterVec
	metricFailures *prometheus.CounterVec
}

// NewMetrics initialises the registry with HTTP, ledger and alert metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "HTTP requests partitioned by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	entries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_entries_total",
		Help: "Journal entries posted or voided.",
	}, []string{"action"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_rejections_total",
		Help: "Rejected ledger writes by error class.",
	}, []string{"class"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_alert_events_total",
		Help: "Alert events created by type and severity.",
	}, []string{"type", "severity"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_alert_metric_failures_total",
		Help: "Alert metric computations that failed, by type.",
	}, []string{"type"})
	registry.MustRegister(requests, duration, entries, rejections, events, failures)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		entries:         entries,
		rejections:      rejections,
		alertEvents:     events,
		metricFailures:  failures,
	}
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and duration per route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

func (m *Metrics) EntryPosted() {
	if m != nil {
		m.entries.WithLabelValues("posted").Inc()
	}
}

func (m *Metrics) EntryVoided() {
	if m != nil {
		m.entries.WithLabelValues("voided").Inc()
	}
}

func (m *Metrics) EntryRejected(class shared.Class) {
	if m != nil {
		m.rejections.WithLabelValues(string(class)).Inc()
	}
}

func (m *Metrics) EventCreated(typ alerts.AlertType, severity alerts.Severity) {
	if m != nil {
		m.alertEvents.WithLabelValues(string(typ), string(severity)).Inc()
	}
}

func (m *Metrics) MetricFailed(typ alerts.AlertType) {
	if m != nil {
		m.metricFailures.WithLabelValues(string(typ)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
