// Package api is the agent's client for the storefront REST API.
package api

import (
	"bytes"
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

	"storefront/internal/identity"
)

const (
	defaultTimeout = 12 * time.Second
	maxBodyBytes   = 1 << 20
)

// TokenSource returns the bearer token to attach to a request, or "" for none.
type TokenSource func(ctx context.Context) string

// Option customises a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout of the underlying HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithTransport replaces the HTTP transport, mostly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// WithLogger attaches a logger for request tracing at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client talks to the storefront API. Every request carries the cookies in the jar; the
// bearer token comes either from the caller or from the injected TokenSource.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

// NewClient builds a client rooted at baseURL (for example http://localhost:5000/api).
func NewClient(baseURL string, jar http.CookieJar, tokens TokenSource, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("api: invalid base URL %q", baseURL)
	}
	if tokens == nil {
		tokens = func(context.Context) string { return "" }
	}

	c := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Jar: jar, Timeout: defaultTimeout},
		tokens:     tokens,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Envelope is the response wrapper used by every storefront endpoint.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Token   string          `json:"token,omitempty"`
}

// UserStatus is the account state reported by GET /auth/status.
type UserStatus struct {
	IsVerified bool          `json:"isVerified"`
	IsActive   bool          `json:"isActive"`
	Role       identity.Role `json:"role"`
	Email      string        `json:"email,omitempty"`
	Provider   string        `json:"provider,omitempty"`
}

// Exchange is what the backend hands back for an OAuth artifact. User is nil when the
// response named only a token.
type Exchange struct {
	Token string
	User  *identity.User
}

// Me asks the API who the current caller is. bearer is optional; cookies are always sent.
func (c *Client) Me(ctx context.Context, bearer string) (identity.User, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/auth/me", nil)
	if err != nil {
		return identity.User{}, err
	}
	setBearer(req, bearer)

	env, err := c.do(req)
	if err != nil {
		return identity.User{}, err
	}
	user, ok := userFromData(env.Data)
	if !ok {
		return identity.User{}, &ResponseError{StatusCode: http.StatusOK, Message: "response carried no user"}
	}
	return user, nil
}

// RefreshToken trades token for a fresh one.
func (c *Client) RefreshToken(ctx context.Context, token string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/refresh-token", nil)
	if err != nil {
		return "", err
	}
	setBearer(req, token)

	env, err := c.do(req)
	if err != nil {
		return "", err
	}
	fresh := tokenFromEnvelope(env)
	if fresh == "" {
		return "", &ResponseError{StatusCode: http.StatusOK, Message: "response carried no token"}
	}
	return fresh, nil
}

// Logout tells the API to end the server-side session.
func (c *Client) Logout(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/logout", nil)
	if err != nil {
		return err
	}
	setBearer(req, c.tokens(ctx))
	_, err = c.do(req)
	return err
}

// User fetches a user record by id.
func (c *Client) User(ctx context.Context, id string) (identity.User, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil)
	if err != nil {
		return identity.User{}, err
	}
	setBearer(req, c.tokens(ctx))

	env, err := c.do(req)
	if err != nil {
		return identity.User{}, err
	}
	user, ok := userFromData(env.Data)
	if !ok {
		return identity.User{}, &ResponseError{StatusCode: http.StatusOK, Message: "response carried no user"}
	}
	return user, nil
}

// UserStatus reads the caller's account status.
func (c *Client) UserStatus(ctx context.Context) (UserStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/auth/status", nil)
	if err != nil {
		return UserStatus{}, err
	}
	setBearer(req, c.tokens(ctx))

	env, err := c.do(req)
	if err != nil {
		return UserStatus{}, err
	}
	var status UserStatus
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &status); err != nil {
			return UserStatus{}, fmt.Errorf("api: decode status: %w", err)
		}
	}
	status.Role = identity.ParseRole(string(status.Role))
	return status, nil
}

// ExchangeCallback forwards an OAuth provider callback query to the API. The API either
// redirects with the token in the Location URL or answers with a JSON envelope; redirects
// are not followed.
func (c *Client) ExchangeCallback(ctx context.Context, provider, rawQuery string) (Exchange, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/auth/"+url.PathEscape(provider)+"/callback", nil)
	if err != nil {
		return Exchange{}, err
	}
	req.URL.RawQuery = rawQuery

	client := *c.httpClient
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := client.Do(req)
	if err != nil {
		return Exchange{}, unavailable(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return exchangeFromLocation(resp)
	}

	env, err := readEnvelope(resp)
	if err != nil {
		return Exchange{}, err
	}
	return exchangeFromEnvelope(env)
}

// ExchangeIDToken posts a provider-verified ID token and receives a storefront session.
func (c *Client) ExchangeIDToken(ctx context.Context, provider, idToken string) (Exchange, error) {
	body, err := json.Marshal(map[string]string{"idToken": idToken})
	if err != nil {
		return Exchange{}, fmt.Errorf("api: encode id token: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/"+url.PathEscape(provider)+"/token", bytes.NewReader(body))
	if err != nil {
		return Exchange{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	env, err := c.do(req)
	if err != nil {
		return Exchange{}, err
	}
	return exchangeFromEnvelope(env)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	target := *c.baseURL
	target.Path = strings.TrimSuffix(target.Path, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request) (Envelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("api request failed", "method", req.Method, "path", req.URL.Path, "error", err)
		return Envelope{}, unavailable(req.Context(), err)
	}
	defer resp.Body.Close()
	c.logger.Debug("api request", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode)
	return readEnvelope(resp)
}

func unavailable(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func readEnvelope(resp *http.Response) (Envelope, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	var env Envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return Envelope{}, &ResponseError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return Envelope{}, &ResponseError{StatusCode: resp.StatusCode, Message: "malformed response body"}
	}
	if !env.Success {
		return Envelope{}, &ResponseError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	return env, nil
}

func setBearer(req *http.Request, token string) {
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// userFromData reads a user from data, which is either the profile itself or wraps it
// under "user".
func userFromData(data json.RawMessage) (identity.User, bool) {
	if len(data) == 0 {
		return identity.User{}, false
	}
	var wrapped struct {
		User *identity.Profile `json:"user"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.User != nil {
		if u, ok := wrapped.User.User(); ok {
			return u, true
		}
	}
	var p identity.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return identity.User{}, false
	}
	return p.User()
}

func tokenFromEnvelope(env Envelope) string {
	if env.Token != "" {
		return env.Token
	}
	var data struct {
		Token       string `json:"token"`
		AccessToken string `json:"accessToken"`
	}
	if len(env.Data) > 0 && json.Unmarshal(env.Data, &data) == nil {
		if data.Token != "" {
			return data.Token
		}
		return data.AccessToken
	}
	return ""
}

func exchangeFromEnvelope(env Envelope) (Exchange, error) {
	out := Exchange{Token: tokenFromEnvelope(env)}
	if user, ok := userFromData(env.Data); ok {
		out.User = &user
	}
	if out.Token == "" && out.User == nil {
		return Exchange{}, &ResponseError{StatusCode: http.StatusOK, Message: "response carried no session"}
	}
	return out, nil
}

func exchangeFromLocation(resp *http.Response) (Exchange, error) {
	loc, err := resp.Location()
	if err != nil {
		return Exchange{}, &ResponseError{StatusCode: resp.StatusCode, Message: "redirect without location"}
	}
	values := loc.Query()
	if fragment, err := url.ParseQuery(loc.Fragment); err == nil {
		for k, v := range fragment {
			if _, ok := values[k]; !ok {
				values[k] = v
			}
		}
	}

	if code := values.Get("error"); code != "" {
		return Exchange{}, &ResponseError{StatusCode: http.StatusUnauthorized, Message: code}
	}
	tok := firstParam(values, "token", "access_token", "accessToken")
	if tok == "" {
		// Cookie-only backends redirect without a token; the session lives in the jar.
		return Exchange{}, nil
	}
	return Exchange{Token: tok}, nil
}

func firstParam(values url.Values, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(values.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

// IsUnavailable reports whether err means the API could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
