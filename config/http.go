package config

import (
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the base URL of the application (e.g., "https://app.example.com").
	// It is the site home page used as the post-logout redirect target.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain. Public suffixes are rejected.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// SessionTTL is the lifetime of a local session.
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"8h"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.BaseURL = strings.TrimSuffix(strings.TrimSpace(h.BaseURL), "/")
	if h.BaseURL == "" {
		h.BaseURL = "http://localhost:8080"
	}

	h.CookieDomain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h.CookieDomain)), ".")
	if h.CookieDomain != "" {
		// A cookie scoped to a public suffix (e.g. "co.uk") would be rejected by browsers.
		if suffix, _ := publicsuffix.PublicSuffix(h.CookieDomain); suffix == h.CookieDomain {
			h.CookieDomain = ""
		}
	}

	if h.SessionTTL <= 0 {
		h.SessionTTL = 8 * time.Hour
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 15 * time.Second
	}
}

// HomeURL returns the site home page.
func (h *HTTPConfig) HomeURL() string {
	return h.BaseURL + "/"
}
