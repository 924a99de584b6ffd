package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/target/aad-connect/internal/domain/auth"
	apperrors "github.com/target/aad-connect/internal/errors"
	"github.com/target/aad-connect/internal/service"
)

const (
	sessionCookieName  = "session_id"
	stateCookieName    = "oauth_state"
	nonceCookieName    = "oauth_nonce"
	redirectCookieName = "post_login_redirect"
	noticeCookieName   = "login_notice"

	oauthCookieMaxAge = 600 // 10 minutes
)

// AuthServiceInterface defines the interface for auth service operations.
type AuthServiceInterface interface {
	BeginLogin(ctx context.Context, redirectURI string) (*service.BeginLoginResult, error)
	CompleteLogin(ctx context.Context, input service.CompleteLoginInput) (*service.CompleteLoginResult, error)
	GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// LogoutServiceInterface defines the single sign-out operations used by the handlers.
type LogoutServiceInterface interface {
	RouteActive(ctx context.Context) bool
	Inbound(ctx context.Context, sessionID string) int
	Outbound(ctx context.Context, sessionID string) service.OutboundResult
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc AuthServiceInterface
	// SSO is optional; without it logout is always local.
	SSO          LogoutServiceInterface
	CookieDomain string
	// CallbackURL is the absolute redirect URI registered with Azure AD.
	CallbackURL string
	HomeURL     string
	Logger      *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Login handles the login initiation endpoint.
// GET /auth/login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))

	result, err := h.Svc.BeginLogin(r.Context(), h.callbackURL(r))
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin login failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusServiceUnavailable,
			ErrCode: "login_failed",
			Err:     errors.New("login is not available"),
		})
		return
	}

	h.setOAuthCookies(w, r, oauthCookieParams{State: result.State, Nonce: result.Nonce, RedirectURI: redirectURI})
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback handles the OAuth callback endpoint.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if idpErr := q.Get("error"); idpErr != "" {
		h.logger().WarnContext(r.Context(), "azure ad returned an authorization error",
			"error", idpErr,
			"error_description", q.Get("error_description"),
		)
		h.writeLoginFailed(w, http.StatusUnauthorized)
		return
	}

	code := q.Get("code")
	state := q.Get("state")
	if code == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_code",
			Err:     errors.New("authorization code is required"),
		})
		return
	}
	if state == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_state",
			Err:     errors.New("state parameter is required"),
		})
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value != state {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_state",
			Err:     errors.New("invalid or missing state parameter"),
		})
		return
	}
	nonceCookie, err := r.Cookie(nonceCookieName)
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_nonce",
			Err:     errors.New("missing nonce parameter"),
		})
		return
	}

	result, err := h.Svc.CompleteLogin(r.Context(), service.CompleteLoginInput{
		Code:        code,
		Nonce:       nonceCookie.Value,
		RedirectURI: h.callbackURL(r),
	})
	if err != nil {
		h.writeLoginFailed(w, loginFailureStatus(err))
		return
	}

	h.setSessionCookie(w, r, result.Session)
	if result.Notice != "" {
		h.setCookie(w, r, noticeCookieName, url.QueryEscape(result.Notice), oauthCookieMaxAge)
	}
	h.clearCookie(w, r, stateCookieName)
	h.clearCookie(w, r, nonceCookieName)

	http.Redirect(w, r, h.getPostLoginRedirect(w, r), http.StatusFound)
}

// Logout handles the logout endpoint.
// GET|POST /auth/logout. When single sign-out is active the browser is sent to the
// Azure AD end-session endpoint; otherwise the session is ended locally.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := ""
	if sessionCookie, err := r.Cookie(sessionCookieName); err == nil {
		sessionID = sessionCookie.Value
	}

	redirectTo := h.homeURL()
	if h.SSO != nil && h.SSO.RouteActive(r.Context()) {
		res := h.SSO.Outbound(r.Context(), sessionID)
		if res.NoCache {
			w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
			w.Header().Set("Pragma", "no-cache")
		}
		redirectTo = res.RedirectURL
	} else if sessionID != "" {
		if err := h.Svc.Logout(r.Context(), sessionID); err != nil {
			h.logger().WarnContext(r.Context(), "logout failed", "error", err)
		}
	}

	h.clearCookie(w, r, sessionCookieName)

	if isAJAX(r) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "success",
			"redirect_to": redirectTo,
		})
		return
	}

	http.Redirect(w, r, redirectTo, http.StatusFound)
}

// InboundLogout handles logout requests initiated by Azure AD.
// GET /auth/aad/logout.
func (h *AuthHandlers) InboundLogout(w http.ResponseWriter, r *http.Request) {
	if h.SSO == nil {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	sessionID := ""
	if sessionCookie, err := r.Cookie(sessionCookieName); err == nil {
		sessionID = sessionCookie.Value
	}

	status := h.SSO.Inbound(r.Context(), sessionID)
	if status == http.StatusOK && sessionID != "" {
		h.clearCookie(w, r, sessionCookieName)
	}
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
}

// Status returns the current authentication status.
// GET /auth/status, registered behind OptionalAuth so the session comes from the request context.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	session := GetSessionFromContext(r.Context())
	if session == nil {
		if _, err := r.Cookie(sessionCookieName); err == nil {
			h.clearCookie(w, r, sessionCookieName)
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"authenticated": false,
		})
		return
	}

	body := map[string]any{
		"authenticated": true,
		"user": map[string]any{
			"id":           session.UserID,
			"username":     session.Username,
			"display_name": session.DisplayName,
			"email":        session.Email,
			"provider":     session.Provider,
			"roles":        session.Roles,
		},
		"expires_at": session.ExpiresAt,
	}
	if notice := h.takeNotice(w, r); notice != "" {
		body["notice"] = notice
	}
	WriteJSON(w, http.StatusOK, body)
}

// loginFailureStatus maps a login error to a response status. The body never carries details.
func loginFailureStatus(err error) int {
	switch {
	case apperrors.IsValidation(err):
		return http.StatusBadRequest
	case apperrors.IsForbidden(err):
		return http.StatusForbidden
	case apperrors.IsConfigUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

func (h *AuthHandlers) writeLoginFailed(w http.ResponseWriter, code int) {
	WriteError(w, ErrorParams{
		Code:    code,
		ErrCode: "login_failed",
		Err:     errors.New("login failed"),
	})
}

// takeNotice returns the one-time login notice and clears its cookie.
func (h *AuthHandlers) takeNotice(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(noticeCookieName)
	if err != nil {
		return ""
	}
	h.clearCookie(w, r, noticeCookieName)
	notice, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return notice
}

func (h *AuthHandlers) callbackURL(r *http.Request) string {
	if h.CallbackURL != "" {
		return h.CallbackURL
	}
	scheme := "http"
	if isSecureRequest(r) {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/auth/callback"
}

func (h *AuthHandlers) homeURL() string {
	if h.HomeURL != "" {
		return h.HomeURL
	}
	return "/"
}

func isAJAX(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}

func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// clearCookie clears a cookie by setting it to expire immediately.
// It mirrors the attributes used when setting cookies so browsers match it on deletion.
func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandlers) setCookie(w http.ResponseWriter, r *http.Request, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

type oauthCookieParams struct {
	State       string
	Nonce       string
	RedirectURI string
}

// setOAuthCookies stores OAuth state, nonce, and the post-login redirect in short-lived cookies.
func (h *AuthHandlers) setOAuthCookies(w http.ResponseWriter, r *http.Request, p oauthCookieParams) {
	h.setCookie(w, r, stateCookieName, p.State, oauthCookieMaxAge)
	h.setCookie(w, r, nonceCookieName, p.Nonce, oauthCookieMaxAge)
	h.setCookie(w, r, redirectCookieName, p.RedirectURI, oauthCookieMaxAge)
}

// setSessionCookie writes the session cookie based on the session's expiry.
func (h *AuthHandlers) setSessionCookie(w http.ResponseWriter, r *http.Request, s domainauth.Session) {
	h.setCookie(w, r, sessionCookieName, s.ID, int(time.Until(s.ExpiresAt).Seconds()))
}

// getPostLoginRedirect returns the post-login redirect URL and clears the cookie.
func (h *AuthHandlers) getPostLoginRedirect(w http.ResponseWriter, r *http.Request) string {
	redirectCookie, err := r.Cookie(redirectCookieName)
	if err != nil {
		return "/"
	}
	h.clearCookie(w, r, redirectCookieName)
	return safeRedirectPath(redirectCookie.Value)
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(candidate, "//") {
		return "/"
	}
	return candidate
}
