// Package authapi talks to the authentication endpoints of the ERP API.
// The refresh credential never leaves this package: it is kept in the
// client's cookie jar, or in memory for servers returning it in the body.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/serviceerr"
)

const (
	DefaultLoginPath   = "/api/v1/auth/login"
	DefaultRefreshPath = "/api/v1/auth/refresh"
	DefaultLogoutPath  = "/api/v1/auth/logout"

	RefreshCookieName = "refresh_token"

	maxBodySize = 1 << 20
)

var ErrNoAccessToken = errors.New("response carries no access token")

type Paths struct {
	Login   string
	Refresh string
	Logout  string
}

func DefaultPaths() Paths {
	return Paths{
		Login:   DefaultLoginPath,
		Refresh: DefaultRefreshPath,
		Logout:  DefaultLogoutPath,
	}
}

type Client struct {
	baseURL *url.URL
	paths   Paths
	http    *http.Client

	mu            sync.Mutex
	refreshToken  string
	refreshExpiry time.Time
}

type Option func(*Client)

// WithTransport sets the transport used for auth calls. It must not be a
// gated transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.Transport = rt
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

func WithPaths(p Paths) Option {
	return func(c *Client) {
		if p.Login != "" {
			c.paths.Login = p.Login
		}
		if p.Refresh != "" {
			c.paths.Refresh = p.Refresh
		}
		if p.Logout != "" {
			c.paths.Logout = p.Logout
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &serviceerr.Error{Err: serviceerr.CodeInvalidConfiguration, Description: "base URL must be absolute: " + baseURL}
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	c := &Client{
		baseURL: u,
		paths:   DefaultPaths(),
		http: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c, nil
}

// Login authenticates with a username and password.
func (c *Client) Login(ctx context.Context, username, password string) (Login, error) {
	var out Login
	if err := c.post(ctx, c.paths.Login, "", loginRequest{Username: username, Password: password}, &out); err != nil {
		return Login{}, fmt.Errorf("logging in: %w", err)
	}

	if out.Token.AccessToken == "" {
		return Login{}, ErrNoAccessToken
	}
	c.keepRefresh(out.Token)

	slogctx.Debug(ctx, "Logged in", "username", out.User.Username, "tenantID", out.User.TenantID)

	return out, nil
}

// Renew exchanges the refresh credential for a new access token.
func (c *Client) Renew(ctx context.Context) (string, error) {
	c.mu.Lock()
	req := refreshRequest{RefreshToken: c.refreshToken}
	c.mu.Unlock()

	var out struct {
		Token Token `json:"token"`
	}
	if err := c.post(ctx, c.paths.Refresh, "", req, &out); err != nil {
		return "", fmt.Errorf("refreshing access token: %w", err)
	}

	if out.Token.AccessToken == "" {
		return "", ErrNoAccessToken
	}
	c.keepRefresh(out.Token)

	return out.Token.AccessToken, nil
}

// Logout ends the server side session of accessToken and forgets the
// refresh credential, also when the server call fails.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	defer c.forgetRefresh()

	if err := c.post(ctx, c.paths.Logout, accessToken, nil, nil); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}

	return nil
}

// ExemptPaths returns the URL paths of the auth endpoints.
func (c *Client) ExemptPaths() []string {
	return []string{c.resolve(c.paths.Login).Path, c.resolve(c.paths.Refresh).Path}
}

// RefreshExpiry returns the expiry of the refresh credential last issued.
func (c *Client) RefreshExpiry() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.refreshExpiry
}

// HasRefreshCredential reports whether a refresh credential is held.
func (c *Client) HasRefreshCredential() bool {
	c.mu.Lock()
	inMemory := c.refreshToken != ""
	c.mu.Unlock()

	if inMemory {
		return true
	}

	for _, cookie := range c.http.Jar.Cookies(c.resolve(c.paths.Refresh)) {
		if cookie.Name == RefreshCookieName && cookie.Value != "" {
			return true
		}
	}

	return false
}

func (c *Client) keepRefresh(t Token) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.RefreshToken != "" {
		c.refreshToken = t.RefreshToken
	}
	if !t.RefreshTokenExpiresAt.IsZero() {
		c.refreshExpiry = t.RefreshTokenExpiresAt
	}
}

func (c *Client) forgetRefresh() {
	c.mu.Lock()
	c.refreshToken = ""
	c.refreshExpiry = time.Time{}
	c.mu.Unlock()

	// The jar keys cookies by path, the server may have scoped it to any of these.
	u := c.resolve(c.paths.Refresh)
	for _, p := range []string{"/", path.Dir(u.Path), u.Path} {
		c.http.Jar.SetCookies(u, []*http.Cookie{{Name: RefreshCookieName, Path: p, MaxAge: -1}})
	}
}

func (c *Client) resolve(p string) *url.URL {
	return c.baseURL.JoinPath(strings.TrimPrefix(p, c.baseURL.Path))
}

func (c *Client) post(ctx context.Context, p, bearer string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(p).String(), body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &serviceerr.Error{Err: serviceerr.CodeNetwork, Description: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return serviceerr.FromResponse(resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshaling response: %w", err)
	}
	if !env.Success {
		return serviceerr.FromResponse(http.StatusUnauthorized, data)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("unmarshaling response data: %w", err)
	}

	return nil
}
