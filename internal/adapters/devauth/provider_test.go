package devauth

import (
	"context"
	"net/url"
	"strings"
	"testing"

	domainauth "github.com/target/aad-connect/internal/domain/auth"
	"github.com/target/aad-connect/internal/ports"
)

func newProvider(t *testing.T) *Provider {
	t.Helper()
	prov, err := NewProvider(Config{
		UserID:      "dev-user",
		Email:       "dev@example.com",
		DisplayName: "Dev User",
		Groups:      []string{"admins", "instructors"},
	})
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}
	return prov
}

func TestProvider_AuthCodeURLAndExchange(t *testing.T) {
	prov := newProvider(t)
	cfg := domainauth.ClientConfiguration{}

	raw := prov.AuthCodeURL(cfg, ports.AuthCodeInput{State: "st&ate", Nonce: "n"})
	if !strings.HasPrefix(raw, "/auth/callback?") {
		t.Fatalf("unexpected auth URL: %s", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse auth URL: %v", err)
	}
	if got := u.Query().Get("state"); got != "st&ate" {
		t.Fatalf("state = %q", got)
	}

	tokens, err := prov.Exchange(context.Background(), cfg, u.Query().Get("code"), "")
	if err != nil {
		t.Fatalf("Exchange error: %v", err)
	}
	if tokens.AccessToken == "" || tokens.IDToken == "" {
		t.Fatalf("expected placeholder tokens, got %+v", tokens)
	}

	if _, err := prov.Exchange(context.Background(), cfg, "forged", ""); err == nil {
		t.Fatal("expected error for unknown code")
	}
}

func TestProvider_VerifyIDToken(t *testing.T) {
	claims, err := newProvider(t).VerifyIDToken(context.Background(), domainauth.ClientConfiguration{}, "dev", "")
	if err != nil {
		t.Fatalf("VerifyIDToken error: %v", err)
	}
	if claims.ObjectID != "dev-user" || len(claims.Groups) != 2 {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestProvider_Resolve(t *testing.T) {
	prov := newProvider(t)

	info, err := prov.Resolve(context.Background(), "dev", domainauth.ClientConfiguration{})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if info.Name != "dev" || info.Email != "dev@example.com" {
		t.Fatalf("unexpected identity: %+v", info)
	}
	if info.GroupsFetched || len(info.Groups) != 0 {
		t.Fatalf("groups should be empty when mapping is disabled: %+v", info.Groups)
	}

	info, err = prov.Resolve(context.Background(), "dev", domainauth.ClientConfiguration{MapADGroupsToRoles: true})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if !info.GroupsFetched || len(info.Groups) != 2 || info.Groups[0].DisplayName != "admins" {
		t.Fatalf("unexpected groups: %+v", info.Groups)
	}
}

func TestNewProvider_RequiresIdentity(t *testing.T) {
	if _, err := NewProvider(Config{Email: "dev@example.com"}); err == nil {
		t.Fatal("expected error without UserID")
	}
	if _, err := NewProvider(Config{UserID: "dev-user"}); err == nil {
		t.Fatal("expected error without Email")
	}
}
