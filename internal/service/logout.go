package service

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	domainauth "github.com/target/aad-connect/internal/domain/auth"
	"github.com/target/aad-connect/internal/domain/sso"
	apperrors "github.com/target/aad-connect/internal/errors"
	"github.com/target/aad-connect/internal/observability/metrics"
	"github.com/target/aad-connect/internal/ports"
)

// Logout directions and outcomes, used as metric labels.
const (
	directionInbound  = "inbound"
	directionOutbound = "outbound"

	outcomeRejected   = "rejected"
	outcomeTerminated = "terminated"
	outcomeNoop       = "noop"
	outcomeProvider   = "provider"
	outcomeLocal      = "local"
)

// LogoutStores groups the stores consulted during logout.
type LogoutStores struct {
	Sessions ports.SessionStore
	Accounts ports.AccountStore
}

// LogoutServiceOptions groups dependencies for LogoutService.
type LogoutServiceOptions struct {
	Config ports.ConfigStore // Required
	Stores LogoutStores      // Required
	// HomeURL is where the browser lands after any logout.
	HomeURL string
	Obs     Observability
}

// LogoutService executes single sign-out decisions for Azure AD linked sessions.
type LogoutService struct {
	config   ports.ConfigStore
	sessions ports.SessionStore
	accounts ports.AccountStore
	homeURL  string
	logger   *slog.Logger
	metrics  *metrics.Recorder
}

// OutboundResult tells the caller where to send the browser after a local logout.
type OutboundResult struct {
	RedirectURL    string
	NoCache        bool
	ProviderLogout bool
}

// NewLogoutService constructs a LogoutService. It panics when a required dependency is missing.
func NewLogoutService(opts LogoutServiceOptions) *LogoutService {
	if opts.Config == nil || opts.Stores.Sessions == nil || opts.Stores.Accounts == nil {
		panic("logout service: Config, Sessions and Accounts are required")
	}
	home := opts.HomeURL
	if home == "" {
		home = "/"
	}
	return &LogoutService{
		config:   opts.Config,
		sessions: opts.Stores.Sessions,
		accounts: opts.Stores.Accounts,
		homeURL:  home,
		logger:   opts.Obs.logger(),
		metrics:  opts.Obs.Metrics,
	}
}

// RouteActive reports whether the single sign-out logout replaces the standard logout.
// Configuration failures fall back to the standard logout.
func (s *LogoutService) RouteActive(ctx context.Context) bool {
	enabled, err := s.config.ClientEnabled(ctx, domainauth.ProviderKey)
	var ssoEnabled bool
	if err == nil && enabled {
		var cfg domainauth.ClientConfiguration
		cfg, err = s.config.ClientConfig(ctx, domainauth.ProviderKey)
		ssoEnabled = cfg.EnableSingleSignOut
	}
	if err != nil {
		s.logConfigFailure(ctx, err, "logout_route")
	}
	return sso.RouteActive(err, enabled, ssoEnabled)
}

// Inbound handles an IdP-initiated logout for the browser's session and returns the HTTP status.
func (s *LogoutService) Inbound(ctx context.Context, sessionID string) int {
	var in sso.InboundInput
	if cfg, err := s.config.ClientConfig(ctx, domainauth.ProviderKey); err != nil {
		s.logConfigFailure(ctx, err, "inbound_logout")
	} else {
		in.SingleSignOutEnabled = cfg.Enabled && cfg.EnableSingleSignOut
	}

	var sess domainauth.Session
	if in.SingleSignOutEnabled {
		sess, in.Authenticated = s.session(ctx, sessionID)
		if in.Authenticated {
			in.Connected = s.connected(ctx, sess.UserID)
		}
	}

	dec := sso.Inbound(in)
	outcome := outcomeNoop
	switch {
	case dec.Rejected:
		outcome = outcomeRejected
		s.logger.WarnContext(ctx, "single sign-out request rejected, single sign-out is disabled")
	case dec.TerminateSession:
		outcome = outcomeTerminated
		if err := s.sessions.Delete(ctx, sessionID); err != nil {
			s.logger.ErrorContext(ctx, "terminate session failed", "user_id", sess.UserID, "error", err)
			s.metrics.Logout(directionInbound, metrics.ResultError)
			return http.StatusInternalServerError
		}
		s.logger.InfoContext(ctx, "session terminated by azure ad single sign-out", "user_id", sess.UserID)
	}
	s.metrics.Logout(directionInbound, outcome)
	return dec.Status
}

// Outbound terminates the local session and decides whether to continue logout at Azure AD.
func (s *LogoutService) Outbound(ctx context.Context, sessionID string) OutboundResult {
	in := sso.OutboundInput{HomeURL: s.homeURL}
	if cfg, err := s.config.ClientConfig(ctx, domainauth.ProviderKey); err != nil {
		s.logConfigFailure(ctx, err, "outbound_logout")
	} else {
		in.SingleSignOutEnabled = cfg.Enabled && cfg.EnableSingleSignOut
		in.EndSessionEndpoint = cfg.EndSessionEndpoint
	}

	// The link is read before the session goes away.
	sess, ok := s.session(ctx, sessionID)
	if ok && in.SingleSignOutEnabled {
		in.Connected = s.connected(ctx, sess.UserID)
	}
	if sessionID != "" {
		if err := s.sessions.Delete(ctx, sessionID); err != nil {
			s.logger.WarnContext(ctx, "delete session failed", "error", err)
		}
	}

	dec := sso.Outbound(in)
	outcome := outcomeLocal
	if dec.ProviderLogout {
		outcome = outcomeProvider
		s.logger.InfoContext(ctx, "continuing logout at azure ad", "user_id", sess.UserID)
	}
	s.metrics.Logout(directionOutbound, outcome)
	return OutboundResult(dec)
}

func (s *LogoutService) session(ctx context.Context, sessionID string) (domainauth.Session, bool) {
	if sessionID == "" {
		return domainauth.Session{}, false
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			s.logger.WarnContext(ctx, "load session failed", "error", err)
		}
		return domainauth.Session{}, false
	}
	return sess, true
}

// connected reports whether the user has a linked Azure AD account. Lookup failures count as unlinked.
func (s *LogoutService) connected(ctx context.Context, userID string) bool {
	providers, err := s.accounts.ConnectedProviders(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "load connected accounts failed", "user_id", userID, "error", err)
		return false
	}
	return slices.Contains(providers, domainauth.ProviderKey)
}

func (s *LogoutService) logConfigFailure(ctx context.Context, err error, origin string) {
	s.logger.ErrorContext(ctx, "azure ad client configuration unavailable",
		"error_kind", string(apperrors.ErrCodeConfigUnavailable),
		"error", err.Error(),
		"origin", origin,
	)
}
