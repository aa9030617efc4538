package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vprism/vprism/internal/metrics"
	"github.com/vprism/vprism/internal/models"
	"github.com/vprism/vprism/internal/provider"
	"github.com/vprism/vprism/internal/registry"
	"github.com/vprism/vprism/internal/router"
)

func newTestServer(t *testing.T, healthy bool) *Server {
	t.Helper()
	reg := registry.New()
	p := provider.NewMock("akshare", provider.Capability{
		Assets: []models.AssetType{models.AssetStock},
	}, nil)
	require.NoError(t, reg.Register(p, nil))
	if !healthy {
		reg.UpdateHealth("akshare", false)
	}
	rt := router.New(reg, router.DefaultConfig())

	promReg := prometheus.NewRegistry()
	metrics.New(promReg)
	s, err := NewServer(DefaultServerConfig("127.0.0.1:0"), reg, rt, promReg)
	require.NoError(t, err)
	return s
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, true)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Providers, 1)
	assert.Equal(t, "akshare", resp.Providers[0].Name)
	assert.True(t, resp.Providers[0].Healthy)
	assert.Equal(t, 1.0, resp.Providers[0].Score)
}

func TestHealthEndpointDegraded(t *testing.T) {
	s := newTestServer(t, false)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, true)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vprism_cache_hits_total")
}
