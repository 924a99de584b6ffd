package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters and internal/data; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/target/aad-connect/internal/domain/auth"
)

// ConfigStore loads the Azure AD client configuration. It is read-only from the core.
type ConfigStore interface {
	ClientConfig(ctx context.Context, providerKey string) (domainauth.ClientConfiguration, error)
	ClientEnabled(ctx context.Context, providerKey string) (bool, error)
}

// TokenExchanger runs the OAuth2 authorization code grant against Azure AD.
type TokenExchanger interface {
	// AuthCodeURL builds the provider authorization URL.
	AuthCodeURL(cfg domainauth.ClientConfiguration, in AuthCodeInput) string

	// Exchange trades an authorization code for tokens.
	Exchange(ctx context.Context, cfg domainauth.ClientConfiguration, code, redirectURI string) (domainauth.TokenSet, error)

	// VerifyIDToken validates the ID token when the configuration names an issuer.
	// It returns zero claims and no error when verification is not configured.
	VerifyIDToken(ctx context.Context, cfg domainauth.ClientConfiguration, rawIDToken, nonce string) (domainauth.IDClaims, error)
}

// AuthCodeInput groups parameters for building the authorization URL.
type AuthCodeInput struct {
	RedirectURI string
	State       string
	Nonce       string
}

// UserResolver builds the canonical user record from the provider's directory.
type UserResolver interface {
	Resolve(ctx context.Context, accessToken string, cfg domainauth.ClientConfiguration) (domainauth.UserInfo, error)
}

// RoleStore reads and mutates local role assignments.
type RoleStore interface {
	// ListRoles returns all assignable roles, excluding anonymous/authenticated pseudo-roles.
	ListRoles(ctx context.Context) ([]domainauth.Role, error)
	UserRoles(ctx context.Context, userID string) ([]string, error)
	AddRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
}

// StateStore is a per-user keyed value store scoped by (namespace, userID, key).
type StateStore interface {
	Get(ctx context.Context, namespace, userID, key string) ([]byte, bool, error)
	Set(ctx context.Context, namespace, userID, key string, value []byte) error
}

// AccountInput carries the profile fields used to find or create a local account.
type AccountInput struct {
	Provider   string
	ExternalID string
	Username   string
	Email      string
}

// AccountStore manages host user records and their links to provider accounts.
type AccountStore interface {
	// Upsert finds the account linked to (Provider, ExternalID), creating account and link if needed,
	// and returns the local user id.
	Upsert(ctx context.Context, in AccountInput) (string, error)
	IsBlocked(ctx context.Context, userID string) (bool, error)
	Unblock(ctx context.Context, userID string) error
	ConnectedProviders(ctx context.Context, userID string) ([]string, error)
}

// SessionStore persists and retrieves user sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}
