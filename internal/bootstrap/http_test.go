package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/aad-connect/config"
	"github.com/target/aad-connect/internal/testutil"
)

func TestBuildHTTPHandler_Health(t *testing.T) {
	mr, client := testutil.SetupTestRedis(t)

	handler := BuildHTTPHandler(&HTTPServerConfig{
		Config: testAppConfig(config.AuthModeOAuth),
		Redis:  client,
		Logger: testLogger(),
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"redis":"ok"}}`, w.Body.String())

	mr.Close()
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBuildHTTPHandler_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "aad_connect_build_total", Help: "build"})
	reg.MustRegister(counter)
	counter.Inc()

	cfg := testAppConfig(config.AuthModeOAuth)
	handler := BuildHTTPHandler(&HTTPServerConfig{Config: cfg, Gatherer: reg, Logger: testLogger()})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "aad_connect_build_total 1")

	cfg.Observability.MetricsEnabled = false
	handler = BuildHTTPHandler(&HTTPServerConfig{Config: cfg, Gatherer: reg, Logger: testLogger()})
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBuildHTTPHandler_AuthRoutesNeedAuth(t *testing.T) {
	handler := BuildHTTPHandler(&HTTPServerConfig{Config: testAppConfig(config.AuthModeOAuth), Logger: testLogger()})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
