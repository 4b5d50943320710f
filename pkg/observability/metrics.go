package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the service
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	AuthzDecisions   *prometheus.CounterVec
	AuditEventsTotal *prometheus.CounterVec
	AuditDropped     prometheus.Counter
}

// NewMetrics creates and registers the service metrics on a fresh registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shiftdeck_http_requests_total",
			Help: "Total HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shiftdeck_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		AuthzDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shiftdeck_authz_decisions_total",
			Help: "Authorization decisions by resource, action and outcome",
		}, []string{"resource", "action", "outcome"}),
		AuditEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shiftdeck_audit_events_total",
			Help: "Audit events recorded, by event type",
		}, []string{"event_type"}),
		AuditDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "shiftdeck_audit_events_dropped_total",
			Help: "Audit events dropped because the buffer was full",
		}),
	}
}

// Handler returns the /metrics HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records a completed HTTP request
func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveAuthzDecision records the outcome of a permission check
func (m *Metrics) ObserveAuthzDecision(resource, action string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.AuthzDecisions.WithLabelValues(resource, action, outcome).Inc()
}

// statusRecorder captures the response status for metrics middleware
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware instruments an HTTP handler with request metrics. The route
// label uses the raw path; mount it behind mux so path templates are stable.
func (m *Metrics) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			m.ObserveRequest(r.Method, route, rec.status, time.Since(start))
		})
	}
}
