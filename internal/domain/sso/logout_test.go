package sso

import (
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInbound(t *testing.T) {
	tests := []struct {
		name string
		in   InboundInput
		want InboundDecision
	}{
		{
			name: "disabled rejects even with session",
			in:   InboundInput{SingleSignOutEnabled: false, Authenticated: true, Connected: true},
			want: InboundDecision{Status: http.StatusForbidden, Rejected: true},
		},
		{
			name: "disabled rejects without session",
			in:   InboundInput{},
			want: InboundDecision{Status: http.StatusForbidden, Rejected: true},
		},
		{
			name: "enabled, authenticated and linked terminates",
			in:   InboundInput{SingleSignOutEnabled: true, Authenticated: true, Connected: true},
			want: InboundDecision{Status: http.StatusOK, TerminateSession: true},
		},
		{
			name: "enabled but not linked is a no-op",
			in:   InboundInput{SingleSignOutEnabled: true, Authenticated: true},
			want: InboundDecision{Status: http.StatusOK},
		},
		{
			name: "enabled without session is a no-op",
			in:   InboundInput{SingleSignOutEnabled: true},
			want: InboundDecision{Status: http.StatusOK},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Inbound(tt.in))
		})
	}
}

func TestOutbound_ProviderLogout(t *testing.T) {
	home := "https://school.example.edu/?lang=en&x=1"
	got := Outbound(OutboundInput{
		SingleSignOutEnabled: true,
		Connected:            true,
		HomeURL:              home,
	})

	require.True(t, got.ProviderLogout)
	assert.True(t, got.NoCache)

	u, err := url.Parse(got.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "login.microsoftonline.com", u.Host)
	assert.Equal(t, "/common/oauth2/v2.0/logout", u.Path)
	assert.Equal(t, home, u.Query().Get("post_logout_redirect_uri"))
	assert.Equal(t, "post_logout_redirect_uri="+url.QueryEscape(home), u.RawQuery)
}

func TestOutbound_LocalOnly(t *testing.T) {
	home := "https://school.example.edu/"
	cases := []OutboundInput{
		{SingleSignOutEnabled: true, Connected: false, HomeURL: home},
		{SingleSignOutEnabled: false, Connected: true, HomeURL: home},
	}
	for _, in := range cases {
		got := Outbound(in)
		assert.Equal(t, OutboundDecision{RedirectURL: home}, got)
	}
}

func TestEndSessionURL_CustomEndpoint(t *testing.T) {
	got := EndSessionURL("https://login.microsoftonline.com/tenant-id/oauth2/v2.0/logout?client_id=abc", "https://app/")
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/tenant-id/oauth2/v2.0/logout", u.Path)
	assert.Equal(t, "abc", u.Query().Get("client_id"))
	assert.Equal(t, "https://app/", u.Query().Get("post_logout_redirect_uri"))
}

func TestRouteActive(t *testing.T) {
	assert.True(t, RouteActive(nil, true, true))
	assert.False(t, RouteActive(errors.New("config store down"), true, true))
	assert.False(t, RouteActive(nil, false, true))
	assert.False(t, RouteActive(nil, true, false))
}
