package devauth

// Package devauth provides a config-driven token exchanger and user resolver for local development.

import (
	"context"
	"errors"
	"net/url"

	"github.com/target/aad-connect/internal/adapters/graph"
	domainauth "github.com/target/aad-connect/internal/domain/auth"
	"github.com/target/aad-connect/internal/ports"
)

// devCode is the authorization code the provider hands to its own callback.
const devCode = "dev"

// Config controls the dev auth provider behavior.
// UserID and Email are required; Groups may be empty.
type Config struct {
	UserID      string
	Email       string
	DisplayName string
	Groups      []string
}

// Provider implements ports.TokenExchanger and ports.UserResolver for local development.
// It short-circuits the Azure AD flow by redirecting back to our own callback,
// and resolves every login to the configured identity.
type Provider struct {
	cfg Config
}

var (
	_ ports.TokenExchanger = (*Provider)(nil)
	_ ports.UserResolver   = (*Provider)(nil)
)

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	cfg.Groups = append([]string(nil), cfg.Groups...)
	return &Provider{cfg: cfg}, nil
}

// AuthCodeURL returns the local callback URL carrying the dev code and the caller's state.
func (p *Provider) AuthCodeURL(_ domainauth.ClientConfiguration, in ports.AuthCodeInput) string {
	q := url.Values{"code": {devCode}, "state": {in.State}}
	return "/auth/callback?" + q.Encode()
}

// Exchange accepts only the dev code and returns placeholder tokens.
func (p *Provider) Exchange(_ context.Context, _ domainauth.ClientConfiguration, code, _ string) (domainauth.TokenSet, error) {
	if code != devCode {
		return domainauth.TokenSet{}, errors.New("dev auth: unexpected authorization code")
	}
	return domainauth.TokenSet{IDToken: devCode, AccessToken: devCode}, nil
}

// VerifyIDToken returns claims for the configured identity, including its groups as inline claims.
func (p *Provider) VerifyIDToken(_ context.Context, _ domainauth.ClientConfiguration, _, _ string) (domainauth.IDClaims, error) {
	return domainauth.IDClaims{
		Subject:           p.cfg.UserID,
		ObjectID:          p.cfg.UserID,
		PreferredUsername: p.cfg.Email,
		Groups:            append([]string(nil), p.cfg.Groups...),
	}, nil
}

// Resolve builds the dev profile. Groups are reported as memberOf objects only when mapping is enabled.
func (p *Provider) Resolve(_ context.Context, _ string, cfg domainauth.ClientConfiguration) (domainauth.UserInfo, error) {
	info := domainauth.UserInfo{
		ID:                p.cfg.UserID,
		DisplayName:       p.cfg.DisplayName,
		Mail:              p.cfg.Email,
		UserPrincipalName: p.cfg.Email,
		Name:              graph.DeriveName(p.cfg.Email, p.cfg.DisplayName),
		Email:             p.cfg.Email,
		Groups:            []domainauth.GraphGroup{},
	}
	if cfg.MapADGroupsToRoles {
		for _, g := range p.cfg.Groups {
			info.Groups = append(info.Groups, domainauth.GraphGroup{ID: g, DisplayName: g})
		}
		info.GroupsFetched = true
	}
	return info, nil
}
