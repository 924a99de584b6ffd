package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOAuth authenticates against Azure AD.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
)

const (
	aadLoginHost          = "https://login.microsoftonline.com"
	defaultGraphBaseURL   = "https://graph.microsoft.com/v1.0"
	defaultEndSessionURL  = aadLoginHost + "/common/oauth2/v2.0/logout"
	defaultRequestTimeout = 10 * time.Second
	maxRequestTimeout     = 60 * time.Second
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// AADConfig contains the Azure AD client configuration.
// Endpoints left empty are derived from TenantID during Sanitize.
type AADConfig struct {
	Enabled  bool   `env:"ENABLED"   envDefault:"true"`
	TenantID string `env:"TENANT_ID" envDefault:"common"`

	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL" envDefault:"http://localhost:8080/auth/callback"`

	AuthorizationEndpoint string `env:"AUTHORIZATION_ENDPOINT"`
	TokenEndpoint         string `env:"TOKEN_ENDPOINT"`
	EndSessionEndpoint    string `env:"END_SESSION_ENDPOINT"`
	GraphBaseURL          string `env:"GRAPH_BASE_URL"          envDefault:"https://graph.microsoft.com/v1.0"`

	// Issuer enables ID token verification, e.g. https://login.microsoftonline.com/<tenant>/v2.0.
	Issuer string `env:"ISSUER"`
	// GroupsClaim is a JMESPath expression over the ID token claims.
	GroupsClaim string `env:"GROUPS_CLAIM" envDefault:"groups"`

	EnableSingleSignOut bool `env:"ENABLE_SINGLE_SIGN_OUT" envDefault:"false"`
	MapGroupsToRoles    bool `env:"MAP_GROUPS_TO_ROLES"    envDefault:"false"`

	// GroupMappingRules holds inline rules, one "role|group1;group2" per line.
	GroupMappingRules string `env:"GROUP_MAPPING_RULES"`
	// GroupMappingRulesFile, when set, overrides GroupMappingRules and is reloaded on change.
	GroupMappingRulesFile string `env:"GROUP_MAPPING_RULES_FILE"`

	// LinkExistingByEmail links a first-time Azure AD identity to the local user with the same email.
	// Graph mail values are not verified by Azure AD.
	LinkExistingByEmail bool `env:"LINK_EXISTING_BY_EMAIL" envDefault:"false"`

	// AdminRoles lists role ids or labels whose grant unblocks a blocked account.
	AdminRoles []string `env:"ADMIN_ROLES" envDefault:"administrator;admin" envSeparator:";"`

	// RequestTimeout bounds each call to Azure AD and Microsoft Graph.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
}

// Sanitize trims values, derives tenant endpoints and clamps the request timeout.
func (c *AADConfig) Sanitize() {
	c.TenantID = strings.TrimSpace(c.TenantID)
	if c.TenantID == "" {
		c.TenantID = "common"
	}
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.Issuer = strings.TrimSpace(c.Issuer)
	c.GroupsClaim = strings.TrimSpace(c.GroupsClaim)
	if c.GroupsClaim == "" {
		c.GroupsClaim = "groups"
	}

	base := aadLoginHost + "/" + c.TenantID + "/oauth2/v2.0"
	if strings.TrimSpace(c.AuthorizationEndpoint) == "" {
		c.AuthorizationEndpoint = base + "/authorize"
	}
	if strings.TrimSpace(c.TokenEndpoint) == "" {
		c.TokenEndpoint = base + "/token"
	}
	if strings.TrimSpace(c.EndSessionEndpoint) == "" {
		c.EndSessionEndpoint = defaultEndSessionURL
	}
	c.GraphBaseURL = strings.TrimSuffix(strings.TrimSpace(c.GraphBaseURL), "/")
	if c.GraphBaseURL == "" {
		c.GraphBaseURL = defaultGraphBaseURL
	}

	roles := c.AdminRoles[:0]
	for _, r := range c.AdminRoles {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	c.AdminRoles = roles

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.RequestTimeout > maxRequestTimeout {
		c.RequestTimeout = maxRequestTimeout
	}
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID      string   `env:"USER_ID"      envDefault:"dev-user"`
	Email       string   `env:"EMAIL"        envDefault:"dev@example.com"`
	DisplayName string   `env:"DISPLAY_NAME" envDefault:"Dev User"`
	Groups      []string `env:"GROUPS"       envDefault:"admins"          envSeparator:";"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// AAD configuration (used when Mode=oauth).
	AAD AADConfig `envPrefix:"AAD_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`
}

// Sanitize applies guardrails to the auth sub-configs.
func (c *AuthConfig) Sanitize() {
	c.AAD.Sanitize()
}
