package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric collectors for the Crewdeck server.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics: one decision per policy predicate evaluation.
	AuthzDecisionsTotal *prometheus.CounterVec

	// Authentication metrics.
	AuthFailuresTotal  *prometheus.CounterVec
	AuthSuccessesTotal *prometheus.CounterVec

	// Rate limiting.
	RateLimitRejectionsTotal prometheus.Counter

	// Change propagation.
	NotifyEventsTotal prometheus.Counter

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crewdeck_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crewdeck_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		AuthzDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crewdeck_authz_decisions_total",
			Help: "Total number of policy predicate decisions.",
		}, []string{"resource", "action", "outcome"}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crewdeck_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"auth_type"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crewdeck_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"auth_type"}),

		RateLimitRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crewdeck_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}),

		NotifyEventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crewdeck_notify_events_total",
			Help: "Total number of change events published.",
		}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crewdeck_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.RateLimitRejectionsTotal,
		m.NotifyEventsTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	// Register Go runtime and process collectors.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// PrometheusHandler serves the registry in the Prometheus text format.
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// RegisterSubscriberGauge exposes the number of active change-event
// subscribers as a gauge backed by the given function.
func (m *Metrics) RegisterSubscriberGauge(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "crewdeck_notify_subscribers",
		Help: "Number of active change-event subscribers.",
	}, func() float64 { return float64(count()) }))
}

// RecordAuthzDecision counts a policy predicate decision.
func (m *Metrics) RecordAuthzDecision(resource string, action string, allowed bool) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.AuthzDecisionsTotal.WithLabelValues(resource, action, outcome).Inc()
}

// IncAuthFailure increments the auth failure counter for the given auth type.
func (m *Metrics) IncAuthFailure(authType string) {
	m.AuthFailuresTotal.WithLabelValues(authType).Inc()
}

// IncAuthSuccess increments the auth success counter for the given auth type.
func (m *Metrics) IncAuthSuccess(authType string) {
	m.AuthSuccessesTotal.WithLabelValues(authType).Inc()
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection() {
	m.RateLimitRejectionsTotal.Inc()
}

// IncNotifyEvent increments the published change event counter.
func (m *Metrics) IncNotifyEvent() {
	m.NotifyEventsTotal.Inc()
}
