// Package sso decides single sign-out outcomes for Azure AD sessions.
// Decisions are pure values; the caller terminates sessions and writes responses.
package sso

import (
	"net/http"
	"net/url"
)

// DefaultEndSessionEndpoint is the Azure AD v2 end-session endpoint.
const DefaultEndSessionEndpoint = "https://login.microsoftonline.com/common/oauth2/v2.0/logout"

// InboundInput describes an IdP-initiated logout request.
type InboundInput struct {
	SingleSignOutEnabled bool
	Authenticated        bool
	Connected            bool
}

// InboundDecision is the outcome of an IdP-initiated logout.
type InboundDecision struct {
	Status           int
	TerminateSession bool
	// Rejected is set when single sign-out is disabled; callers log a warning.
	Rejected bool
}

// Inbound handles a front-channel logout call from Azure AD.
// A missing session is not an error: the call is acknowledged without side effects.
func Inbound(in InboundInput) InboundDecision {
	if !in.SingleSignOutEnabled {
		return InboundDecision{Status: http.StatusForbidden, Rejected: true}
	}
	if in.Authenticated && in.Connected {
		return InboundDecision{Status: http.StatusOK, TerminateSession: true}
	}
	return InboundDecision{Status: http.StatusOK}
}

// OutboundInput describes a locally initiated logout.
type OutboundInput struct {
	SingleSignOutEnabled bool
	// Connected reports whether the user had a linked Azure AD account at logout time.
	Connected          bool
	EndSessionEndpoint string
	HomeURL            string
}

// OutboundDecision is the outcome of a local logout.
// The local session is always terminated.
type OutboundDecision struct {
	RedirectURL string
	// NoCache is set when the response must bypass caches.
	NoCache bool
	// ProviderLogout reports whether the redirect targets the IdP.
	ProviderLogout bool
}

// Outbound computes where to send the browser after a local logout.
func Outbound(in OutboundInput) OutboundDecision {
	if in.SingleSignOutEnabled && in.Connected {
		return OutboundDecision{
			RedirectURL:    EndSessionURL(in.EndSessionEndpoint, in.HomeURL),
			NoCache:        true,
			ProviderLogout: true,
		}
	}
	return OutboundDecision{RedirectURL: in.HomeURL}
}

// EndSessionURL builds the provider logout URL with a post_logout_redirect_uri pointing at home.
// Existing query parameters on the endpoint are preserved.
func EndSessionURL(endpoint, homeURL string) string {
	if endpoint == "" {
		endpoint = DefaultEndSessionEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return DefaultEndSessionEndpoint + "?post_logout_redirect_uri=" + url.QueryEscape(homeURL)
	}
	q := u.Query()
	q.Set("post_logout_redirect_uri", homeURL)
	u.RawQuery = q.Encode()
	return u.String()
}

// RouteActive reports whether the SSO logout route replaces the standard logout route.
// Any configuration load error keeps the standard behavior.
func RouteActive(cfgErr error, clientEnabled, singleSignOutEnabled bool) bool {
	return cfgErr == nil && clientEnabled && singleSignOutEnabled
}
