// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	AuthorizationChecksTotal *prometheus.CounterVec
	PermissionCacheTotal     *prometheus.CounterVec
}

// New creates the collectors and registers them on registry.
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backoffice_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthorizationChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_authorization_checks_total",
				Help: "RBAC checks by kind, slug and outcome",
			},
			[]string{"kind", "slug", "result"},
		),
		PermissionCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_permission_cache_lookups_total",
				Help: "Permission set cache lookups by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthorizationChecksTotal,
		m.PermissionCacheTotal,
	)
	return m
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// ObserveAuthorization records an RBAC decision. result is "allowed", "denied" or "error".
func (m *Metrics) ObserveAuthorization(kind, slug, result string) {
	if m == nil {
		return
	}
	m.AuthorizationChecksTotal.WithLabelValues(kind, slug, result).Inc()
}

// ObserveCacheLookup records a permission cache hit or miss.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.PermissionCacheTotal.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
