package httpx

import (
	"log/slog"
	"net/http"
)

// defaultAdminRole guards administrative routes when RouterServices.AdminRole is empty.
const defaultAdminRole = "administrator"

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth AuthServiceInterface
	// Logout enables single sign-out routing; optional.
	Logout LogoutServiceInterface
	Health []HealthCheck
	// Metrics serves the Prometheus exposition format; optional.
	Metrics http.Handler
	// Rules enables the administrative mapping rules report; optional.
	Rules        RulesReporter
	AdminRole    string
	CookieDomain string
	CallbackURL  string
	HomeURL      string
	Logger       *slog.Logger
}

// NewRouter creates and configures a new HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	health := &HealthHandlers{Checks: services.Health, Logger: logger}
	// GET patterns also match HEAD.
	mux.HandleFunc("GET /healthz", health.Health)

	if services.Metrics != nil {
		mux.Handle("GET /metrics", services.Metrics)
	}

	if services.Auth != nil {
		registerAuthRoutes(mux, &AuthHandlers{
			Svc:          services.Auth,
			SSO:          services.Logout,
			CookieDomain: services.CookieDomain,
			CallbackURL:  services.CallbackURL,
			HomeURL:      services.HomeURL,
			Logger:       logger,
		})
		if services.Rules != nil {
			adminRole := services.AdminRole
			if adminRole == "" {
				adminRole = defaultAdminRole
			}
			rules := &RulesHandlers{Rules: services.Rules, Logger: logger}
			mux.Handle("GET /auth/admin/mapping-rules",
				RequireRole(services.Auth, adminRole)(http.HandlerFunc(rules.Skipped)))
		}
	}

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("GET /auth/login", h.Login)
	mux.HandleFunc("GET /auth/callback", h.Callback)
	mux.HandleFunc("GET /auth/logout", h.Logout)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("GET /auth/aad/logout", h.InboundLogout)
	mux.Handle("GET /auth/status", OptionalAuth(h.Svc)(http.HandlerFunc(h.Status)))
}
