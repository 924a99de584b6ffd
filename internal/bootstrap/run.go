package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const defaultShutdownTimeout = 15 * time.Second

// rulesWatcher is the part of clientconfig.Store the runtime drives.
type rulesWatcher interface {
	Watch(ctx context.Context) error
}

// RunConfig groups what RunWithShutdown starts and stops.
type RunConfig struct {
	HTTP            *HTTPServerConfig
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// RunWithShutdown serves HTTP and watches the mapping rules file until a shutdown signal
// arrives or a component fails.
func RunWithShutdown(cfg *RunConfig) error {
	if cfg == nil || cfg.HTTP == nil {
		return errors.New("run config with HTTP settings is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One slot per component so a late failure never blocks its goroutine.
	errCh := make(chan error, 2)
	server := StartHTTPServer(cfg.HTTP, errCh)

	watchDone := make(chan struct{})
	var watcher rulesWatcher
	if cfg.HTTP.Auth != nil && cfg.HTTP.Auth.ConfigStore != nil {
		watcher = cfg.HTTP.Auth.ConfigStore
	}
	startRulesWatcher(serviceCtx, watcher, errCh, watchDone, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	return waitForShutdown(shutdownConfig{
		quit:      quit,
		errCh:     errCh,
		cancel:    cancel,
		server:    server,
		watchDone: watchDone,
		timeout:   cfg.ShutdownTimeout,
		logger:    logger,
	})
}

func startRulesWatcher(ctx context.Context, w rulesWatcher, errCh chan<- error, done chan<- struct{}, logger *slog.Logger) {
	if w == nil {
		close(done)
		return
	}
	go func() {
		defer close(done)
		if err := w.Watch(ctx); err != nil {
			logger.Error("group mapping rules watcher failed", "error", err)
			errCh <- err
		}
	}()
}

type shutdownConfig struct {
	quit      <-chan os.Signal
	errCh     <-chan error
	cancel    context.CancelFunc
	server    *http.Server
	watchDone <-chan struct{}
	timeout   time.Duration
	logger    *slog.Logger
}

// waitForShutdown blocks until a signal or a component error, then stops everything.
func waitForShutdown(cfg shutdownConfig) error {
	var runErr error
	select {
	case <-cfg.quit:
		cfg.logger.Info("shutting down services...")
	case runErr = <-cfg.errCh:
		cfg.logger.Error("service error", "error", runErr)
	}
	cfg.cancel()

	timeout := cfg.timeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := ShutdownHTTPServer(shutdownCtx, cfg.server, cfg.logger); err != nil {
		runErr = errors.Join(runErr, err)
	}

	select {
	case <-cfg.watchDone:
	case <-shutdownCtx.Done():
		cfg.logger.Warn("timeout waiting for rules watcher to stop")
	}

	return runErr
}
