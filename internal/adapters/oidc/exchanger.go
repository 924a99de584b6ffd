// Package oidc implements the Azure AD authorization code grant and ID token verification.
package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	domainauth "github.com/target/aad-connect/internal/domain/auth"
	apperrors "github.com/target/aad-connect/internal/errors"
	"github.com/target/aad-connect/internal/ports"
	"golang.org/x/oauth2"
)

const (
	verifierCacheSize = 16
	verifierCacheTTL  = time.Hour

	// maxExpiresIn is the longest token lifetime representable as a time.Duration.
	maxExpiresIn = math.MaxInt64 / int64(time.Second)
)

// scopes is the fixed scope set. Directory.Read.All is always requested so that
// enabling group mapping later does not require a new consent.
var scopes = []string{"openid", "profile", "email", "User.Read", "Directory.Read.All"}

// Scopes returns the OAuth2 scopes requested during authorization.
func Scopes() []string {
	out := make([]string, len(scopes))
	copy(out, scopes)
	return out
}

// FormPoster posts form-encoded requests and returns the JSON response.
// graph.Client satisfies it.
type FormPoster interface {
	PostForm(ctx context.Context, rawURL string, form url.Values) (json.RawMessage, error)
}

// ExchangerOptions configures an Exchanger.
type ExchangerOptions struct {
	Poster FormPoster
	// HTTPClient is used for OIDC discovery and JWKS fetches.
	HTTPClient *http.Client
	Logger     *slog.Logger
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Exchanger implements ports.TokenExchanger against Azure AD.
type Exchanger struct {
	poster     FormPoster
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
	verifiers  *lru.LRU[string, *gooidc.IDTokenVerifier]
}

var _ ports.TokenExchanger = (*Exchanger)(nil)

// NewExchanger constructs an Exchanger.
func NewExchanger(opts ExchangerOptions) *Exchanger {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Exchanger{
		poster:     opts.Poster,
		httpClient: hc,
		logger:     logger,
		now:        now,
		verifiers:  lru.NewLRU[string, *gooidc.IDTokenVerifier](verifierCacheSize, nil, verifierCacheTTL),
	}
}

// AuthCodeURL builds the Azure AD authorization URL.
func (e *Exchanger) AuthCodeURL(cfg domainauth.ClientConfiguration, in ports.AuthCodeInput) string {
	oc := oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: in.RedirectURI,
		Scopes:      Scopes(),
		Endpoint:    oauth2.Endpoint{AuthURL: cfg.AuthorizationEndpoint},
	}
	return oc.AuthCodeURL(in.State,
		oauth2.SetAuthURLParam("nonce", in.Nonce),
		oauth2.SetAuthURLParam("response_mode", "query"),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

type tokenResponse struct {
	IDToken     string          `json:"id_token"`
	AccessToken string          `json:"access_token"`
	ExpiresIn   json.RawMessage `json:"expires_in"`
}

// Exchange trades an authorization code for tokens. It never returns a partial TokenSet.
func (e *Exchanger) Exchange(ctx context.Context, cfg domainauth.ClientConfiguration, code, redirectURI string) (domainauth.TokenSet, error) {
	if code == "" {
		return domainauth.TokenSet{}, apperrors.TokenExchangeFailed("authorization code is required", nil)
	}
	if cfg.TokenEndpoint == "" {
		return domainauth.TokenSet{}, apperrors.TokenExchangeFailed("token endpoint is not configured", nil)
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {cfg.ClientID},
		"client_secret": {cfg.ClientSecret},
		"redirect_uri":  {redirectURI},
	}
	raw, err := e.poster.PostForm(ctx, cfg.TokenEndpoint, form)
	if err != nil {
		return domainauth.TokenSet{}, apperrors.TokenExchangeFailed("token request failed", err)
	}

	var resp tokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domainauth.TokenSet{}, apperrors.TokenExchangeFailed("malformed token response", err)
	}
	if resp.IDToken == "" || resp.AccessToken == "" {
		return domainauth.TokenSet{}, apperrors.TokenExchangeFailed("malformed token response: id_token and access_token are required", nil)
	}

	ts := domainauth.TokenSet{IDToken: resp.IDToken, AccessToken: resp.AccessToken}
	if secs, ok := parseExpiresIn(resp.ExpiresIn); ok {
		exp := e.now().Add(time.Duration(secs) * time.Second)
		ts.ExpiresAt = &exp
	} else if len(resp.ExpiresIn) > 0 && string(resp.ExpiresIn) != "null" {
		e.logger.WarnContext(ctx, "ignoring unparseable expires_in", "value", string(resp.ExpiresIn))
	}
	return ts, nil
}

// parseExpiresIn accepts a JSON number or a numeric string. Values beyond
// maxExpiresIn are clamped.
func parseExpiresIn(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, false
		}
		n = json.Number(strings.TrimSpace(s))
	}
	secs, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil || f < 0 {
			return 0, false
		}
		secs = int64(math.Min(f, float64(maxExpiresIn)))
	}
	if secs < 0 {
		return 0, false
	}
	return min(secs, maxExpiresIn), true
}

// VerifyIDToken validates rawIDToken when cfg.Issuer is set and returns its claims.
// Without an issuer it returns zero claims and no error.
func (e *Exchanger) VerifyIDToken(ctx context.Context, cfg domainauth.ClientConfiguration, rawIDToken, nonce string) (domainauth.IDClaims, error) {
	if cfg.Issuer == "" {
		return domainauth.IDClaims{}, nil
	}
	v, err := e.verifier(ctx, cfg)
	if err != nil {
		return domainauth.IDClaims{}, apperrors.TokenExchangeFailed("oidc discovery failed", err)
	}
	tok, err := v.Verify(ctx, rawIDToken)
	if err != nil {
		return domainauth.IDClaims{}, apperrors.TokenExchangeFailed("verify id_token", err)
	}
	if nonce != "" && tok.Nonce != nonce {
		return domainauth.IDClaims{}, apperrors.TokenExchangeFailed("verify id_token: nonce mismatch", nil)
	}

	var claims map[string]any
	if err := tok.Claims(&claims); err != nil {
		return domainauth.IDClaims{}, apperrors.TokenExchangeFailed("parse id_token claims", err)
	}
	out := mapIDClaims(claims)
	out.Subject = tok.Subject
	out.Groups = extractGroups(e.logger, cfg.GroupsClaim, claims)
	return out, nil
}

func (e *Exchanger) verifier(ctx context.Context, cfg domainauth.ClientConfiguration) (*gooidc.IDTokenVerifier, error) {
	key := verifierKey(cfg.Issuer, cfg.ClientID)
	if v, ok := e.verifiers.Get(key); ok {
		return v, nil
	}
	// Discovery and key fetches must outlive the request that triggered them.
	dctx := gooidc.ClientContext(context.WithoutCancel(ctx), e.httpClient)
	provider, err := gooidc.NewProvider(dctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	v := provider.Verifier(&gooidc.Config{ClientID: cfg.ClientID})
	e.verifiers.Add(key, v)
	return v, nil
}

func verifierKey(issuer, clientID string) string {
	return strings.TrimSuffix(issuer, "/") + "|" + clientID
}
