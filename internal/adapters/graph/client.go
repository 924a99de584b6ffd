// Package graph talks to Microsoft Graph and the Azure AD token endpoint.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/target/aad-connect/internal/errors"
	"github.com/target/aad-connect/internal/observability/metrics"
	"golang.org/x/oauth2"
)

const (
	// DefaultTimeout bounds every outbound call.
	DefaultTimeout = 10 * time.Second
	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 4 << 20
)

// ClientOptions configures a Client.
type ClientOptions struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Metrics    *metrics.Recorder
	Logger     *slog.Logger
}

// Client issues JSON requests against Graph and the token endpoint.
// All failures are returned as *errors.AppError with code graph_request_failed.
type Client struct {
	http    *http.Client
	timeout time.Duration
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// NewClient constructs a Client with sane defaults.
func NewClient(opts ClientOptions) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{http: hc, timeout: timeout, metrics: opts.Metrics, logger: logger}
}

// Get performs an authenticated GET and returns the raw JSON body.
func (c *Client) Get(ctx context.Context, rawURL, accessToken string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, apperrors.GraphRequestFailed(stripQuery(rawURL), "build request", err)
	}
	(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}).SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// PostForm performs a form-encoded POST and returns the raw JSON body.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperrors.GraphRequestFailed(stripQuery(rawURL), "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (body json.RawMessage, err error) {
	endpoint := stripQuery(req.URL.String())
	defer func() { c.metrics.GraphRequest(endpointLabel(req.URL), err) }()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.GraphRequestFailed(endpoint, "request failed", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("graph response close failed", "endpoint", endpoint, "error", cerr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, apperrors.GraphRequestFailed(endpoint, "read response", err)
	}
	if len(data) > maxBodyBytes {
		return nil, apperrors.GraphRequestFailed(endpoint, "response too large", nil)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.GraphRequestFailed(endpoint,
			fmt.Sprintf("unexpected status %d", resp.StatusCode),
			errors.New(remoteMessage(data, resp.Status)))
	}
	if !json.Valid(data) {
		return nil, apperrors.GraphRequestFailed(endpoint, "invalid JSON response", nil)
	}
	return json.RawMessage(data), nil
}

// remoteMessage extracts the provider's error text from a Graph or Azure AD error body.
func remoteMessage(data []byte, fallback string) string {
	var body struct {
		Error            json.RawMessage `json:"error"`
		ErrorDescription string          `json:"error_description"`
	}
	if json.Unmarshal(data, &body) != nil {
		return fallback
	}
	if body.ErrorDescription != "" {
		return body.ErrorDescription
	}
	// Graph: {"error":{"code":"...","message":"..."}}
	var graphErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body.Error, &graphErr) == nil && graphErr.Message != "" {
		return graphErr.Message
	}
	// Azure AD: {"error":"invalid_grant"}
	var code string
	if json.Unmarshal(body.Error, &code) == nil && code != "" {
		return code
	}
	return fallback
}

func stripQuery(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// endpointLabel keeps metric cardinality bounded.
func endpointLabel(u *url.URL) string {
	p := strings.TrimSuffix(u.Path, "/")
	switch {
	case strings.HasSuffix(p, "/memberOf"):
		return "memberOf"
	case strings.HasSuffix(p, "/me"):
		return "me"
	case strings.HasSuffix(p, "/token"):
		return "token"
	default:
		return "other"
	}
}
