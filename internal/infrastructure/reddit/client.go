// Package reddit talks to the Reddit OAuth API on behalf of a script application.
package reddit

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
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/oauth2"

	"FeedHighlights/internal/ports"
)

const (
	defaultAPIBaseURL  = "https://oauth.reddit.com"
	defaultTokenURL    = "https://www.reddit.com/api/v1/access_token"
	defaultHTTPTimeout = 30 * time.Second

	maxRetryAttempts  = 3
	initialRetryDelay = time.Second
	maxRetryDelay     = 20 * time.Second
)

// Config holds the credentials and endpoints of the client.
type Config struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	APIBaseURL   string
	TokenURL     string
	HTTPTimeout  time.Duration
	RetryDelay   time.Duration
	MaxAttempts  uint
}

// Client handles all Reddit API interactions.
type Client struct {
	baseURL     string
	http        *http.Client
	noRedirect  *http.Client
	logger      *slog.Logger
	retryDelay  time.Duration
	maxAttempts uint

	identityMu sync.Mutex
	identity   string
}

var (
	_ ports.ListingSource    = (*Client)(nil)
	_ ports.Publisher        = (*Client)(nil)
	_ ports.FlairSetter      = (*Client)(nil)
	_ ports.SlotStore        = (*Client)(nil)
	_ ports.IdentityProvider = (*Client)(nil)
)

// New builds an authenticated client. The password grant is performed lazily on
// the first request and repeated whenever the token expires.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = initialRetryDelay
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = maxRetryAttempts
	}

	base := &http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: &userAgentTransport{agent: cfg.UserAgent, base: http.DefaultTransport},
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	source := oauth2.ReuseTokenSource(nil, &passwordSource{
		ctx:      tokenCtx,
		cfg:      oauthCfg,
		username: cfg.Username,
		password: cfg.Password,
	})

	authed := &http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: &oauth2.Transport{Source: source, Base: base.Transport},
	}
	noRedirect := *authed
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Client{
		baseURL:     strings.TrimSuffix(cfg.APIBaseURL, "/"),
		http:        authed,
		noRedirect:  &noRedirect,
		logger:      logger,
		retryDelay:  cfg.RetryDelay,
		maxAttempts: cfg.MaxAttempts,
	}
}

// passwordSource performs the script-app password grant; Reddit issues no refresh tokens for it.
type passwordSource struct {
	ctx      context.Context
	cfg      *oauth2.Config
	username string
	password string
}

func (p *passwordSource) Token() (*oauth2.Token, error) {
	tok, err := p.cfg.PasswordCredentialsToken(p.ctx, p.username, p.password)
	if err != nil {
		return nil, fmt.Errorf("password grant for %s: %w", p.username, err)
	}
	return tok, nil
}

type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.agent == "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(clone)
}

// statusError carries a non-success HTTP status.
type statusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// classify maps an HTTP status onto the port sentinels.
func classify(err *statusError) error {
	switch {
	case err.Code == http.StatusUnauthorized || err.Code == http.StatusForbidden:
		return fmt.Errorf("%w: %w", ports.ErrAccessDenied, err)
	case err.Code == http.StatusNotFound:
		return fmt.Errorf("%w: %w", ports.ErrNotFound, err)
	case err.Code == http.StatusTooManyRequests || err.Code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %w", ports.ErrDestinationUnavailable, err)
	default:
		return err
	}
}

// doRequest sends a request with retry on rate limiting, server errors and
// transport failures. Form values are sent as the body of non-GET requests.
// attempts of 0 uses the client default; calls that create content pass 1.
func (c *Client) doRequest(ctx context.Context, client *http.Client, method, path string, params url.Values, attempts uint) (*http.Response, error) {
	if attempts == 0 {
		attempts = c.maxAttempts
	}
	var resp *http.Response
	operation := method + " " + path

	err := retry.Do(
		func() error {
			req, err := c.newRequest(ctx, method, path, params)
			if err != nil {
				return err
			}

			local, err := client.Do(req) //nolint:bodyclose // closed by caller or below
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				var grantErr *oauth2.RetrieveError
				if errors.As(err, &grantErr) {
					return fmt.Errorf("%w: %s: %w", ports.ErrAccessDenied, operation, err)
				}
				return fmt.Errorf("%w: %s: %w", ports.ErrDestinationUnavailable, operation, err)
			}

			if local.StatusCode >= http.StatusBadRequest {
				payload, _ := io.ReadAll(io.LimitReader(local.Body, 512))
				drainAndClose(local.Body)
				return classify(&statusError{
					Method: method,
					Path:   path,
					Code:   local.StatusCode,
					Body:   strings.TrimSpace(string(payload)),
				})
			}

			resp = local
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ports.ErrDestinationUnavailable)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("retrying reddit request", "operation", operation, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values) (*http.Request, error) {
	target := c.baseURL + path
	if method == http.MethodGet {
		if len(params) > 0 {
			target += "?" + params.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, method, target, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		return req, nil
	}

	req, err := http.NewRequestWithContext(ctx, method, target, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

// getJSON issues a GET and decodes the body into v.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, v any) error {
	resp, err := c.doRequest(ctx, c.http, http.MethodGet, path, params, 0)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// apiErrors is the envelope of api_type=json write endpoints.
type apiErrors struct {
	JSON struct {
		Errors [][]any        `json:"errors"`
		Data   map[string]any `json:"data"`
	} `json:"json"`
}

func (e apiErrors) err() error {
	if len(e.JSON.Errors) == 0 {
		return nil
	}
	parts := make([]string, 0, len(e.JSON.Errors))
	for _, item := range e.JSON.Errors {
		fields := make([]string, 0, len(item))
		for _, f := range item {
			if s, ok := f.(string); ok && s != "" {
				fields = append(fields, s)
			}
		}
		parts = append(parts, strings.Join(fields, ": "))
	}
	return fmt.Errorf("reddit rejected request: %s", strings.Join(parts, "; "))
}

// postForm issues an api_type=json POST and returns the decoded data object.
// Only idempotent endpoints may set retryable.
func (c *Client) postForm(ctx context.Context, path string, form url.Values, retryable bool) (map[string]any, error) {
	var attempts uint
	if !retryable {
		attempts = 1
	}
	form.Set("api_type", "json")
	resp, err := c.doRequest(ctx, c.http, http.MethodPost, path, form, attempts)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}

	var envelope apiErrors
	if err := json.Unmarshal(raw, &envelope); err != nil {
		// Several moderation endpoints answer with a bare "{}".
		return nil, nil
	}
	if err := envelope.err(); err != nil {
		return nil, err
	}
	return envelope.JSON.Data, nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

func fullname(id string) string {
	if strings.HasPrefix(id, "t3_") {
		return id
	}
	return "t3_" + id
}

func shortID(name string) string {
	return strings.TrimPrefix(name, "t3_")
}
