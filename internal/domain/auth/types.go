package auth

// Package auth contains domain-level types for authentication, Azure AD profiles and sessions.
// It is pure and free of framework/adapter concerns.

import "time"

// ProviderKey identifies the Azure AD provider in configuration and connected-account records.
const ProviderKey = "windows_aad"

// ClientConfiguration is the per-operation view of the Azure AD client settings.
// It is loaded at the start of each authentication or logout event and never mutated by the core.
type ClientConfiguration struct {
	ClientID              string
	ClientSecret          string
	AuthorizationEndpoint string
	TokenEndpoint         string
	EndSessionEndpoint    string
	GraphBaseURL          string

	// Issuer enables ID token verification when set.
	Issuer string
	// GroupsClaim is a JMESPath expression selecting inline group identifiers from ID token claims.
	GroupsClaim string

	Enabled             bool
	EnableSingleSignOut bool
	MapADGroupsToRoles  bool

	// GroupMappingRules is the raw rule text, one "role|group1;group2" rule per line.
	GroupMappingRules string
}

// TokenSet holds the tokens returned by the authorization code grant.
// ExpiresAt is nil when the token endpoint did not report expires_in.
type TokenSet struct {
	IDToken     string
	AccessToken string
	ExpiresAt   *time.Time
}

// IDClaims are the verified ID token claims used by the login flow.
type IDClaims struct {
	Subject           string
	ObjectID          string
	PreferredUsername string
	// Groups holds inline group identifiers selected by ClientConfiguration.GroupsClaim.
	Groups []string
}

// ExtensionAttributes mirrors Graph's onPremisesExtensionAttributes.
type ExtensionAttributes map[string]*string

// GraphGroup is a directory object returned by /me/memberOf.
type GraphGroup struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	ODataType   string `json:"@odata.type,omitempty"`
}

// UserInfo is the canonical profile built from Microsoft Graph on every authentication.
type UserInfo struct {
	ID                string
	DisplayName       string
	GivenName         string
	Surname           string
	JobTitle          string
	Mail              string
	UserPrincipalName string
	OfficeLocation    string
	// OnPremisesExtensionAttributes is nil when Graph omitted the attribute (insufficient permissions).
	OnPremisesExtensionAttributes ExtensionAttributes

	// Name is the derived username.
	Name string
	// Email is Mail, or UserPrincipalName when Mail is empty.
	Email string

	// Groups holds the memberOf objects; empty when mapping is disabled or the group call failed.
	Groups []GraphGroup
	// GroupsFetched reports whether a memberOf call was made and succeeded.
	GroupsFetched bool
}

// Role is a local application role.
type Role struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Session is the server-side record we persist for an authenticated user.
// ID is an opaque session identifier (e.g., random URL-safe string).
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Provider    string    `json:"provider"`
	Roles       []string  `json:"roles"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// HasRole reports whether the session carries the given role id.
func (s Session) HasRole(roleID string) bool {
	for _, r := range s.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}
