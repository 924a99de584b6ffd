package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/target/aad-connect/internal/domain/auth"
	apperrors "github.com/target/aad-connect/internal/errors"
	"github.com/target/aad-connect/internal/observability/metrics"
	"github.com/target/aad-connect/internal/ports"
)

// DefaultSessionTTL is used when AuthServiceOptions.SessionTTL is zero.
const DefaultSessionTTL = 8 * time.Hour

// ErrClientDisabled is the cause reported when the Azure AD client is switched off.
var ErrClientDisabled = errors.New("azure ad client is disabled")

var errSessionExpired = errors.New("session expired")

// AuthProviders groups the Azure AD facing dependencies.
type AuthProviders struct {
	Config    ports.ConfigStore
	Exchanger ports.TokenExchanger
	Resolver  ports.UserResolver
}

// AuthStores groups the host-side stores touched by a login.
type AuthStores struct {
	Accounts ports.AccountStore
	Roles    ports.RoleStore
	Sessions ports.SessionStore
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Providers AuthProviders // Required
	Stores    AuthStores    // Required
	// RoleSync applies group mapping; nil disables it regardless of configuration.
	RoleSync   *RoleSyncService
	SessionTTL time.Duration
	Obs        Observability
}

// AuthService orchestrates the Azure AD login: token exchange, profile resolution,
// account linking, role synchronization and session persistence.
type AuthService struct {
	config    ports.ConfigStore
	exchanger ports.TokenExchanger
	resolver  ports.UserResolver
	accounts  ports.AccountStore
	roles     ports.RoleStore
	sessions  ports.SessionStore
	roleSync  *RoleSyncService
	ttl       time.Duration
	logger    *slog.Logger
	metrics   *metrics.Recorder
	now       func() time.Time
}

// NewAuthService constructs a new AuthService. It panics when a required dependency is missing.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	p, st := opts.Providers, opts.Stores
	if p.Config == nil || p.Exchanger == nil || p.Resolver == nil {
		panic("auth service: Config, Exchanger and Resolver are required")
	}
	if st.Accounts == nil || st.Roles == nil || st.Sessions == nil {
		panic("auth service: Accounts, Roles and Sessions stores are required")
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &AuthService{
		config:    p.Config,
		exchanger: p.Exchanger,
		resolver:  p.Resolver,
		accounts:  st.Accounts,
		roles:     st.Roles,
		sessions:  st.Sessions,
		roleSync:  opts.RoleSync,
		ttl:       ttl,
		logger:    opts.Obs.logger(),
		metrics:   opts.Obs.Metrics,
		now:       time.Now,
	}
}

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin returns the Azure AD authorization URL with fresh state and nonce.
// redirectURI is the absolute callback URL registered with Azure AD.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURI string) (*BeginLoginResult, error) {
	if redirectURI == "" {
		return nil, errors.New("redirect URI is required")
	}

	cfg, err := s.clientConfig(ctx, "begin_login")
	if err != nil {
		return nil, err
	}

	state, err := randomToken(24)
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomToken(24)
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	authURL := s.exchanger.AuthCodeURL(cfg, ports.AuthCodeInput{
		RedirectURI: redirectURI,
		State:       state,
		Nonce:       nonce,
	})
	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// CompleteLoginInput groups parameters for completing a login flow.
// State is validated by the caller against its cookie before this call.
type CompleteLoginInput struct {
	Code        string
	Nonce       string
	RedirectURI string
}

// CompleteLoginResult contains the result of completing a login flow.
type CompleteLoginResult struct {
	Session domainauth.Session
	// Notice is a message for the user, set when an administrative role activated their account.
	Notice string
}

// CompleteLogin exchanges the code, resolves the Graph profile, links the local account,
// synchronizes mapped roles and persists a session.
func (s *AuthService) CompleteLogin(ctx context.Context, in CompleteLoginInput) (res *CompleteLoginResult, err error) {
	defer func() {
		s.metrics.Login(err)
		if err != nil {
			s.logger.ErrorContext(ctx, "azure ad login failed",
				"error_kind", string(apperrors.GetCode(err)),
				"error", err,
				"endpoint", apperrors.GetEndpoint(err),
			)
		}
	}()

	if in.Code == "" {
		return nil, apperrors.ValidationField("code", "authorization code is required")
	}
	if in.RedirectURI == "" {
		return nil, apperrors.ValidationField("redirect_uri", "redirect URI is required")
	}

	cfg, err := s.clientConfig(ctx, "complete_login")
	if err != nil {
		return nil, err
	}

	tokens, err := s.exchanger.Exchange(ctx, cfg, in.Code, in.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	claims, err := s.exchanger.VerifyIDToken(ctx, cfg, tokens.IDToken, in.Nonce)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	info, err := s.resolver.Resolve(ctx, tokens.AccessToken, cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	externalID := info.ID
	if externalID == "" {
		externalID = claims.ObjectID
	}
	userID, err := s.accounts.Upsert(ctx, ports.AccountInput{
		Provider:   domainauth.ProviderKey,
		ExternalID: externalID,
		Username:   info.Name,
		Email:      info.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("link account: %w", err)
	}

	notice := s.syncRoles(ctx, cfg, userID, claims, info)

	blocked, err := s.accounts.IsBlocked(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check account status: %w", err)
	}
	if blocked {
		return nil, apperrors.Forbidden("account is blocked")
	}

	roles, rolesErr := s.roles.UserRoles(ctx, userID)
	if rolesErr != nil {
		s.logger.WarnContext(ctx, "load session roles failed", "user_id", userID, "error", rolesErr)
	}

	sess := domainauth.Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		Username:    info.Name,
		Email:       info.Email,
		DisplayName: info.DisplayName,
		Provider:    domainauth.ProviderKey,
		Roles:       roles,
		ExpiresAt:   s.now().Add(s.ttl),
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.logger.InfoContext(ctx, "azure ad login succeeded",
		"user_id", userID,
		"username", info.Name,
		"groups_fetched", info.GroupsFetched,
	)
	return &CompleteLoginResult{Session: sess, Notice: notice}, nil
}

// syncRoles runs group mapping when enabled and returns the user notice, if any.
// Mapping failures never fail the login.
func (s *AuthService) syncRoles(
	ctx context.Context,
	cfg domainauth.ClientConfiguration,
	userID string,
	claims domainauth.IDClaims,
	info domainauth.UserInfo,
) string {
	if !cfg.MapADGroupsToRoles || s.roleSync == nil {
		return ""
	}
	res, err := s.roleSync.Sync(ctx, SyncInput{
		UserID:       userID,
		FlatGroups:   claims.Groups,
		MemberOf:     info.Groups,
		MappingRules: cfg.GroupMappingRules,
		// memberOf is always requested when mapping is enabled.
		GroupsUnavailable: !info.GroupsFetched,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "azure ad role mapping failed", "user_id", userID, "error", err)
		return ""
	}
	return res.Notice
}

// GetSession retrieves a session by ID.
func (s *AuthService) GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if sessionID == "" {
		return nil, errors.New("session ID is required")
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if s.now().After(session.ExpiresAt) {
		if deleteErr := s.sessions.Delete(ctx, sessionID); deleteErr != nil {
			return nil, errors.Join(errSessionExpired, fmt.Errorf("delete session: %w", deleteErr))
		}
		return nil, errSessionExpired
	}

	return &session, nil
}

// Logout removes a session.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}

// clientConfig loads the Azure AD configuration, reporting a disabled client as unavailable.
func (s *AuthService) clientConfig(ctx context.Context, origin string) (domainauth.ClientConfiguration, error) {
	cfg, err := s.config.ClientConfig(ctx, domainauth.ProviderKey)
	if err != nil {
		if !apperrors.IsConfigUnavailable(err) {
			err = apperrors.ConfigUnavailable(err, origin)
		}
		return domainauth.ClientConfiguration{}, err
	}
	if !cfg.Enabled {
		return domainauth.ClientConfiguration{}, apperrors.ConfigUnavailable(ErrClientDisabled, origin)
	}
	return cfg, nil
}
