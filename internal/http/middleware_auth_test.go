package httpx

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/aad-connect/internal/domain/auth"
)

func TestRequireAuth_Success(t *testing.T) {
	middleware := RequireAuth(&mockAuthService{})

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := GetSessionFromContext(r.Context())
		assert.NotNil(t, session)
		assert.Equal(t, "test-session-id", session.ID)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "test-session-id"})
	w := httptest.NewRecorder()

	middleware(testHandler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_NoSession(t *testing.T) {
	middleware := RequireAuth(&mockAuthService{})

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()

	middleware(testHandler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_InvalidSession(t *testing.T) {
	mockSvc := &mockAuthService{
		getSessionFunc: func(ctx context.Context, sessionID string) (*domainauth.Session, error) {
			return nil, errors.New("session not found")
		},
	}
	middleware := RequireAuth(mockSvc)

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "invalid-session"})
	w := httptest.NewRecorder()

	middleware(testHandler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		roles    []string
		required string
		expected int
	}{
		{name: "has role", roles: []string{"instructor", "administrator"}, required: "administrator", expected: http.StatusOK},
		{name: "missing role", roles: []string{"instructor"}, required: "administrator", expected: http.StatusForbidden},
		{name: "role ids are exact", roles: []string{"Administrator"}, required: "administrator", expected: http.StatusForbidden},
		{name: "no roles", roles: nil, required: "instructor", expected: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := &mockAuthService{
				getSessionFunc: func(ctx context.Context, sessionID string) (*domainauth.Session, error) {
					s := testSession(sessionID)
					s.Roles = tt.roles
					return &s, nil
				},
			}
			testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				session := GetSessionFromContext(r.Context())
				require.NotNil(t, session)
				assert.True(t, session.HasRole(tt.required))
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			req.AddCookie(&http.Cookie{Name: "session_id", Value: "s-1"})
			w := httptest.NewRecorder()

			RequireRole(mockSvc, tt.required)(testHandler).ServeHTTP(w, req)

			assert.Equal(t, tt.expected, w.Code)
		})
	}
}

func TestOptionalAuth_WithSession(t *testing.T) {
	middleware := OptionalAuth(&mockAuthService{})

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := GetSessionFromContext(r.Context())
		assert.NotNil(t, session)
		assert.Equal(t, "test-session-id", session.ID)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/optional", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "test-session-id"})
	w := httptest.NewRecorder()

	middleware(testHandler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOptionalAuth_WithoutSession(t *testing.T) {
	middleware := OptionalAuth(&mockAuthService{})

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Nil(t, GetSessionFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/optional", nil)
	w := httptest.NewRecorder()

	middleware(testHandler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/panics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), `"msg":"panic"`)
	assert.Contains(t, buf.String(), `"path":"/panics"`)
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/tea", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"method":"GET"`)
}
