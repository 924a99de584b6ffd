// Package clientconfig serves the Azure AD client configuration from env settings
// and an optional group mapping rules file that is reloaded when it changes.
package clientconfig

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/target/aad-connect/config"
	domainauth "github.com/target/aad-connect/internal/domain/auth"
	apperrors "github.com/target/aad-connect/internal/errors"
	"github.com/target/aad-connect/internal/ports"
)

const origin = "clientconfig"

// maxRulesFileBytes guards against pointing the rules path at something huge.
const maxRulesFileBytes = 1 << 20

// ErrUnknownProvider is returned for provider keys other than windows_aad.
var ErrUnknownProvider = errors.New("unknown provider")

// Options configures a Store.
type Options struct {
	AAD    config.AADConfig
	Logger *slog.Logger
	// OnReload runs after the rules file changed and was read successfully.
	OnReload func(ctx context.Context, rules string)
}

// Store implements ports.ConfigStore.
type Store struct {
	base     domainauth.ClientConfiguration
	path     string
	logger   *slog.Logger
	onReload func(ctx context.Context, rules string)

	mu    sync.RWMutex
	rules string
}

var _ ports.ConfigStore = (*Store)(nil)

// New builds a Store. When a rules file is configured it must be readable at startup.
func New(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	aad := opts.AAD
	s := &Store{
		base: domainauth.ClientConfiguration{
			ClientID:              aad.ClientID,
			ClientSecret:          aad.ClientSecret,
			AuthorizationEndpoint: aad.AuthorizationEndpoint,
			TokenEndpoint:         aad.TokenEndpoint,
			EndSessionEndpoint:    aad.EndSessionEndpoint,
			GraphBaseURL:          aad.GraphBaseURL,
			Issuer:                aad.Issuer,
			GroupsClaim:           aad.GroupsClaim,
			Enabled:               aad.Enabled,
			EnableSingleSignOut:   aad.EnableSingleSignOut,
			MapADGroupsToRoles:    aad.MapGroupsToRoles,
		},
		rules:    aad.GroupMappingRules,
		logger:   logger,
		onReload: opts.OnReload,
	}
	if aad.GroupMappingRulesFile != "" {
		s.path = filepath.Clean(aad.GroupMappingRulesFile)
		rules, err := readRules(s.path)
		if err != nil {
			return nil, fmt.Errorf("load group mapping rules: %w", err)
		}
		s.rules = rules
	}
	return s, nil
}

// ClientConfig returns a copy of the current configuration.
func (s *Store) ClientConfig(_ context.Context, providerKey string) (domainauth.ClientConfiguration, error) {
	if providerKey != domainauth.ProviderKey {
		return domainauth.ClientConfiguration{}, apperrors.ConfigUnavailable(
			fmt.Errorf("%w: %q", ErrUnknownProvider, providerKey), origin)
	}
	if s.base.ClientID == "" {
		return domainauth.ClientConfiguration{}, apperrors.ConfigUnavailable(
			errors.New("AAD_CLIENT_ID is not set"), origin)
	}
	cfg := s.base
	s.mu.RLock()
	cfg.GroupMappingRules = s.rules
	s.mu.RUnlock()
	return cfg, nil
}

// ClientEnabled reports whether the client is switched on and configured.
func (s *Store) ClientEnabled(ctx context.Context, providerKey string) (bool, error) {
	cfg, err := s.ClientConfig(ctx, providerKey)
	if err != nil {
		return false, err
	}
	return cfg.Enabled, nil
}

// Rules returns the current mapping rule text.
func (s *Store) Rules() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules
}

// Watch reloads the rules file on change until ctx is done.
// The parent directory is watched so atomic replace-by-rename saves are seen.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		if cerr := watcher.Close(); cerr != nil {
			s.logger.Debug("rules watcher close failed", "error", cerr)
		}
	}()
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}
	s.logger.InfoContext(ctx, "watching group mapping rules", "path", s.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if s.relevant(event) {
				s.reload(ctx)
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.WarnContext(ctx, "rules watcher error", "error", werr)
		}
	}
}

func (s *Store) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	if filepath.Clean(event.Name) == s.path {
		return true
	}
	// Kubernetes ConfigMap volumes swap a "..data" symlink.
	return strings.HasPrefix(filepath.Base(event.Name), "..")
}

func (s *Store) reload(ctx context.Context) {
	rules, err := readRules(s.path)
	if err != nil {
		// Keep the last good rules; a save in progress may briefly remove the file.
		s.logger.WarnContext(ctx, "reload group mapping rules failed", "path", s.path, "error", err)
		return
	}

	s.mu.Lock()
	changed := rules != s.rules
	s.rules = rules
	s.mu.Unlock()

	if !changed {
		return
	}
	s.logger.InfoContext(ctx, "group mapping rules reloaded", "path", s.path, "lines", strings.Count(rules, "\n")+1)
	if s.onReload != nil {
		s.onReload(ctx, rules)
	}
}

func readRules(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, maxRulesFileBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxRulesFileBytes {
		return "", fmt.Errorf("rules file %s exceeds %d bytes", path, maxRulesFileBytes)
	}
	return string(data), nil
}
