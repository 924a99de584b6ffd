package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/target/aad-connect/config"
	httpx "github.com/target/aad-connect/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config *config.AppConfig
	Auth   *AuthComponents
	DB     *sql.DB
	Redis  redis.UniversalClient
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// BuildHTTPHandler assembles the router for the configured services.
func BuildHTTPHandler(cfg *HTTPServerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	services := httpx.RouterServices{
		Health:       healthChecks(cfg.DB, cfg.Redis),
		CookieDomain: appCfg.HTTP.CookieDomain,
		CallbackURL:  appCfg.Auth.AAD.RedirectURL,
		HomeURL:      appCfg.HTTP.HomeURL(),
		Logger:       logger,
	}
	if cfg.Auth != nil {
		services.Auth = cfg.Auth.Auth
		services.Logout = cfg.Auth.Logout
		services.Rules = cfg.Auth
	}
	if cfg.Gatherer != nil && appCfg.Observability.MetricsEnabled {
		services.Metrics = promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})
	}

	return httpx.NewRouter(services)
}

func healthChecks(db *sql.DB, client redis.UniversalClient) []httpx.HealthCheck {
	var checks []httpx.HealthCheck
	if db != nil {
		checks = append(checks, httpx.HealthCheck{Name: "postgres", Check: db.PingContext})
	}
	if client != nil {
		checks = append(checks, httpx.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	}
	return checks
}

// StartHTTPServer creates and starts the HTTP server.
// Listen failures are delivered on errCh. Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig, errCh chan<- error) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	addr := ":8080"
	if cfg.Config != nil && cfg.Config.HTTP.Addr != "" {
		addr = cfg.Config.HTTP.Addr
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           BuildHTTPHandler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			errCh <- err
		}
	}()

	return server
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	if server == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("shutting down HTTP server")
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info("HTTP server stopped")
	return nil
}
