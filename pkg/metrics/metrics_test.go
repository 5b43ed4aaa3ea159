package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRequest(http.MethodGet, "/events", http.StatusOK, 0.01)
	m.ObserveRequest(http.MethodGet, "/events", http.StatusOK, 0.02)
	m.ObserveAuthorization("permission", "events.view", "denied")
	m.ObserveCacheLookup(true)
	m.ObserveCacheLookup(false)
	m.ObserveCacheLookup(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/events", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthorizationChecksTotal.WithLabelValues("permission", "events.view", "denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PermissionCacheTotal.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PermissionCacheTotal.WithLabelValues("miss")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest(http.MethodGet, "/", http.StatusOK, 0)
		m.ObserveAuthorization("role", "admin", "allowed")
		m.ObserveCacheLookup(true)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveCacheLookup(true)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `backoffice_permission_cache_lookups_total{result="hit"} 1`)
}
