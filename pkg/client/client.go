package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// DefaultServer is the hosted Mender endpoint used when no server is given.
const DefaultServer = "https://hosted.mender.io"

const (
	loginPath   = "management/v1/useradm/auth/login"
	devicesPath = "management/v1/inventory/devices"

	// RequestIDHeader carries a per-request ID that Mender services echo
	// into their logs.
	RequestIDHeader = "X-MEN-RequestID"

	maxResponseBytes = 32 << 20
)

// TokenOrigin records where the client's bearer token came from.
type TokenOrigin int

const (
	TokenSupplied TokenOrigin = iota // passed in by the caller (flag or env)
	TokenFromLogin
)

// Response is a successful API response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Text returns the body as a string.
func (r *Response) Text() string { return string(r.Body) }

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Client is the Mender SDK entry point. Credentials are resolved once in New;
// every later call uses the resulting bearer token.
type Client struct {
	server     string
	username   string
	httpClient *http.Client
	logger     *zap.Logger
	limiter    *rate.Limiter
	launcher   Launcher
	tokenDir   string
	creds      CredentialSource
	metrics    *callMetrics

	calls     atomic.Int64
	inventory inventoryCache

	// token state, guarded by mu
	mu          sync.Mutex
	password    string
	token       string
	origin      TokenOrigin
	tokenClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets the http.Client used for every API call.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("nil http client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithLogger sets the logger used for warnings and request tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithCredentials sets where the client gets its token or password from.
// Without it New prompts on the terminal.
func WithCredentials(src CredentialSource) Option {
	return func(c *Client) error {
		c.creds = src
		return nil
	}
}

// WithLauncher replaces the mender-cli process launcher.
func WithLauncher(l Launcher) Option {
	return func(c *Client) error {
		c.launcher = l
		return nil
	}
}

// WithTokenDir sets the directory for the ephemeral token files handed to
// the launcher. The default is os.TempDir().
func WithTokenDir(dir string) Option {
	return func(c *Client) error {
		c.tokenDir = dir
		return nil
	}
}

// WithRateLimit throttles outgoing requests to rps per second with the given
// burst. Hosted Mender enforces per-tenant API limits.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) error {
		if rps <= 0 {
			return fmt.Errorf("rate limit must be positive, got %v", rps)
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// New creates a Client for server and authenticates it.
//
//	c, err := client.New(ctx, "https://hosted.mender.io", "user@example.com",
//	    client.WithCredentials(client.ResolveSource(os.Getenv("JWT"), "", nil)),
//	)
//
// If the credential source yields a token it is used as-is. Otherwise the
// password is sent as HTTP Basic credentials to the login endpoint and the
// response body becomes the token. Login failures are returned as *AuthError.
func New(ctx context.Context, server, username string, opts ...Option) (*Client, error) {
	if server == "" {
		server = DefaultServer
	}
	c := &Client{
		server:     strings.TrimRight(server, "/"),
		username:   username,
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
		launcher:   ExecLauncher{},
		metrics:    newCallMetrics(),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	if c.creds == nil {
		c.creds = Prompt{}
	}
	if err := c.authenticate(ctx); err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			authErr.Calls = c.Calls()
		}
		return nil, err
	}
	return c, nil
}

// authenticate resolves credentials into a bearer token.
func (c *Client) authenticate(ctx context.Context) error {
	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		return &AuthError{Username: c.username, Err: err}
	}

	if creds.Token != "" {
		if creds.Password != "" {
			c.logger.Warn("both a token and a password were given; ignoring the password")
		}
		c.warnIfExpired(creds.Token)
		c.setToken(creds.Token, TokenSupplied)
		return nil
	}

	if c.username == "" {
		return &AuthError{Err: errors.New("a username is required to log in")}
	}

	c.mu.Lock()
	c.password = creds.Password
	c.mu.Unlock()

	resp, err := c.Post(ctx, loginPath, nil, "application/json")
	if err != nil {
		return &AuthError{Username: c.username, Err: err}
	}
	token := strings.TrimSpace(resp.Text())
	if token == "" {
		return &AuthError{Username: c.username, Err: errors.New("login returned an empty token")}
	}

	c.setToken(token, TokenFromLogin)
	c.logger.Debug("logged in", zap.String("username", c.username))
	return nil
}

func (c *Client) warnIfExpired(token string) {
	info, err := InspectToken(token)
	if err != nil {
		c.logger.Debug("token is not a readable JWT", zap.Error(err))
		return
	}
	if info.Expired(time.Now()) {
		c.logger.Warn("token has expired; the server will reject it",
			zap.Time("expired_at", info.ExpiresAt),
		)
	}
}

// setToken stores the bearer token and drops the password; from here on only
// the token is sent.
func (c *Client) setToken(token string, origin TokenOrigin) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.origin = origin
	c.password = ""
	c.tokenClient = &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   c.httpClient.Transport,
		},
		CheckRedirect: c.httpClient.CheckRedirect,
		Jar:           c.httpClient.Jar,
		Timeout:       c.httpClient.Timeout,
	}
}

// Server returns the base URL of the Mender server.
func (c *Client) Server() string { return c.server }

// Username returns the configured username.
func (c *Client) Username() string { return c.username }

// Token returns the bearer token and where it came from.
func (c *Client) Token() (string, TokenOrigin) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.origin
}

// Calls returns the number of API calls attempted so far, failed ones
// included.
func (c *Client) Calls() int64 { return c.calls.Load() }

// Get sends a GET request. accept defaults to application/json.
func (c *Client) Get(ctx context.Context, path string, query url.Values, accept string) (*Response, error) {
	return c.Call(ctx, http.MethodGet, path, query, accept)
}

// Post sends a POST request with an empty body. accept defaults to
// application/json.
func (c *Client) Post(ctx context.Context, path string, query url.Values, accept string) (*Response, error) {
	return c.Call(ctx, http.MethodPost, path, query, accept)
}

// Call sends one request to <server>/api/<path>. The bearer token is used
// when present, HTTP Basic credentials otherwise. The call counter is bumped
// before anything can fail. A status of 400 or above is returned as
// *HTTPStatusError and a failure to get any response as *TransportError;
// nothing is retried.
func (c *Client) Call(ctx context.Context, method, path string, query url.Values, accept string) (*Response, error) {
	c.calls.Add(1)

	if accept == "" {
		accept = "application/json"
	}
	endpoint := c.endpoint(path, query)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.metrics.observe(method, path, "error", 0)
			return nil, &TransportError{Method: method, URL: endpoint, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
	if err != nil {
		c.metrics.observe(method, path, "error", 0)
		return nil, &TransportError{Method: method, URL: endpoint, Err: fmt.Errorf("build request: %w", err)}
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", accept)
	req.Header.Set(RequestIDHeader, requestID)

	hc := c.authorize(req)

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.metrics.observe(method, path, "error", time.Since(start))
		return nil, &TransportError{Method: method, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	elapsed := time.Since(start)
	c.metrics.observe(method, path, fmt.Sprint(resp.StatusCode), elapsed)
	if err != nil {
		return nil, &TransportError{Method: method, URL: endpoint, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
		zap.Duration("latency", elapsed),
	)

	if resp.StatusCode >= 400 {
		return nil, &HTTPStatusError{
			Method:     method,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// authorize picks the http.Client for req: the bearer-token client when a
// token is known, otherwise the plain client with Basic credentials set.
func (c *Client) authorize(req *http.Request) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokenClient != nil {
		return c.tokenClient
	}
	req.SetBasicAuth(c.username, c.password)
	return c.httpClient
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.server + "/api/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}
