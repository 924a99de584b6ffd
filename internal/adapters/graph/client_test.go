package graph

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/target/aad-connect/internal/errors"
	"github.com/target/aad-connect/internal/observability/metrics"
)

func TestClient_Get_SetsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = io.WriteString(w, `{"id":"u1"}`)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{})
	raw, err := c.Get(context.Background(), srv.URL+"/me?$select=id", "tok-123")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1"}`, string(raw))
}

func TestClient_PostForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{})
	raw, err := c.PostForm(context.Background(), srv.URL+"/token", url.Values{"grant_type": {"authorization_code"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
}

func TestClient_ErrorNormalization(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{
			name:    "graph error envelope",
			status:  http.StatusForbidden,
			body:    `{"error":{"code":"Authorization_RequestDenied","message":"Insufficient privileges"}}`,
			wantMsg: "Insufficient privileges",
		},
		{
			name:    "azure ad oauth error",
			status:  http.StatusBadRequest,
			body:    `{"error":"invalid_grant","error_description":"AADSTS70008: code expired"}`,
			wantMsg: "AADSTS70008: code expired",
		},
		{
			name:    "bare oauth error code",
			status:  http.StatusUnauthorized,
			body:    `{"error":"invalid_client"}`,
			wantMsg: "invalid_client",
		},
		{
			name:    "non-json body",
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			wantMsg: "502 Bad Gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := NewClient(ClientOptions{})
			_, err := c.Get(context.Background(), srv.URL+"/me?$select=id", "tok")
			require.Error(t, err)
			assert.True(t, apperrors.IsGraphRequest(err))
			assert.Equal(t, srv.URL+"/me", apperrors.GetEndpoint(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(ClientOptions{Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := c.Get(context.Background(), srv.URL+"/me", "tok")
	require.Error(t, err)
	assert.True(t, apperrors.IsGraphRequest(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := NewClient(ClientOptions{})
	_, err := c.Get(context.Background(), addr+"/me", "tok")
	require.Error(t, err)
	assert.True(t, apperrors.IsGraphRequest(err))
	assert.Equal(t, addr+"/me", apperrors.GetEndpoint(err))
}

func TestClient_BodyCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `"`+strings.Repeat("a", maxBodyBytes)+`"`)
	}))
	defer srv.Close()

	_, err := NewClient(ClientOptions{}).Get(context.Background(), srv.URL+"/me", "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "response too large")
}

func TestClient_RecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/memberOf") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	c := NewClient(ClientOptions{Metrics: metrics.NewRecorder(reg)})
	_, _ = c.Get(context.Background(), srv.URL+"/v1.0/me", "tok")
	_, _ = c.Get(context.Background(), srv.URL+"/v1.0/me/memberOf", "tok")

	expected := `
# HELP aad_graph_requests_total HTTP calls to Microsoft Graph and the Azure AD token endpoint
# TYPE aad_graph_requests_total counter
aad_graph_requests_total{endpoint="me",result="success"} 1
aad_graph_requests_total{endpoint="memberOf",result="error"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "aad_graph_requests_total"))
}

func TestEndpointLabel(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{raw: "https://graph.microsoft.com/v1.0/me", want: "me"},
		{raw: "https://graph.microsoft.com/v1.0/me/memberOf?$skiptoken=abc", want: "memberOf"},
		{raw: "https://login.microsoftonline.com/tenant/oauth2/v2.0/token", want: "token"},
		{raw: "https://graph.microsoft.com/v1.0/groups", want: "other"},
	}
	for _, tc := range cases {
		u, err := url.Parse(tc.raw)
		require.NoError(t, err)
		assert.Equal(t, tc.want, endpointLabel(u), tc.raw)
	}
}
