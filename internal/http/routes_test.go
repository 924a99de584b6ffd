package httpx

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
)

func newTestRouter(t *testing.T, sso *mockLogoutService) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "aad_connect_test_total", Help: "test"}))
	services := RouterServices{
		Auth:        &mockAuthService{},
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CallbackURL: testCallbackURL,
		HomeURL:     "/",
		Logger:      slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)),
	}
	if sso != nil {
		services.Logout = sso
	}
	return NewRouter(services)
}

func TestNewRouter_Routes(t *testing.T) {
	router := newTestRouter(t, &mockLogoutService{inboundCode: http.StatusOK})

	tests := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodHead, "/healthz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/auth/login", http.StatusFound},
		{http.MethodGet, "/auth/logout", http.StatusFound},
		{http.MethodPost, "/auth/logout", http.StatusFound},
		{http.MethodGet, "/auth/aad/logout", http.StatusOK},
		{http.MethodGet, "/auth/status", http.StatusOK},
		{http.MethodGet, "/auth/callback", http.StatusBadRequest},
		{http.MethodDelete, "/auth/logout", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestNewRouter_MetricsExposition(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Contains(t, w.Body.String(), "aad_connect_test_total")
}

func TestNewRouter_WithoutMetrics(t *testing.T) {
	router := NewRouter(RouterServices{Auth: &mockAuthService{}})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
