// Package client assembles the authenticated request pipeline into an
// http.Client for the ERP API.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/endsession"
	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/authapi"
	"github.com/openkcm/session-client/pkg/credential"
	"github.com/openkcm/session-client/pkg/gate"
	"github.com/openkcm/session-client/pkg/renewal"
	"github.com/openkcm/session-client/pkg/scheduler"
	"github.com/openkcm/session-client/pkg/session"
)

const maxErrorBody = 64 << 10

type Client struct {
	baseURL *url.URL

	store       *session.Store
	auth        *authapi.Client
	redirector  *endsession.Redirector
	coordinator *renewal.Coordinator
	scheduler   *scheduler.Scheduler
	outbound    *gate.Outbound
	inbound     *gate.Inbound
	httpClient  *http.Client

	markers  session.MarkerRepository
	markerID string

	unsubscribe func()
}

func New(baseURL string, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	auth, err := authapi.New(baseURL,
		authapi.WithTransport(o.baseTransport),
		authapi.WithTimeout(o.timeout),
		authapi.WithPaths(o.paths),
	)
	if err != nil {
		return nil, err
	}

	loginURL := o.loginURL
	if loginURL == "" {
		loginURL = u.JoinPath("login").String()
	}

	redirectorOpts := []endsession.Option{endsession.WithNotify(o.onEndSession)}
	if o.markers != nil {
		redirectorOpts = append(redirectorOpts, endsession.WithMarker(o.markers, o.markerID))
	}
	redirector := endsession.New(loginURL, redirectorOpts...)

	store := session.NewStore()
	clock := credential.NewClock(o.expiryBuffer)
	coordinator := renewal.NewCoordinator(store, auth, redirector, renewal.WithRenewTimeout(o.renewTimeout))

	outbound := gate.NewOutbound(store, coordinator, gate.WithClock(clock), gate.WithDefaultTenant(o.tenantID))
	inbound := gate.NewInbound(store, coordinator, gate.WithInboundClock(clock), gate.WithMaxQueued(o.maxQueued))

	c := &Client{
		baseURL:     u,
		store:       store,
		auth:        auth,
		redirector:  redirector,
		coordinator: coordinator,
		scheduler:   scheduler.New(store, coordinator, scheduler.WithClock(clock), scheduler.WithMinInterval(o.minInterval)),
		outbound:    outbound,
		inbound:     inbound,
		httpClient: &http.Client{
			Transport: &gate.Transport{
				Base:          o.baseTransport,
				Outbound:      outbound,
				Inbound:       inbound,
				Exempt:        gate.ExemptPaths(auth.ExemptPaths()...),
				IsAuthFailure: o.isAuthFailure,
			},
			Timeout: o.timeout,
		},
		markers:  o.markers,
		markerID: o.markerID,
	}

	c.unsubscribe = store.Subscribe(func(s session.Session) {
		if s.Authenticated {
			redirector.Reset()
		}
	})

	return c, nil
}

// Start begins renewing the credential ahead of expiry.
func (c *Client) Start(ctx context.Context) {
	c.scheduler.Start(ctx)
}

// Close stops background renewal and waits for a renewal in flight.
func (c *Client) Close() {
	c.scheduler.Stop()
	c.coordinator.Close()
	c.unsubscribe()
}

// Login authenticates and starts a session.
func (c *Client) Login(ctx context.Context, username, password string) (session.Identity, error) {
	res, err := c.auth.Login(ctx, username, password)
	if err != nil {
		return session.Identity{}, err
	}

	cred := credential.New(res.Token.AccessToken)
	identity := session.Identity{
		UserID:   res.User.ID,
		Username: res.User.Username,
		TenantID: res.User.TenantID,
	}
	if identity.IsZero() {
		if claims, ok := credential.ParseClaims(cred.Token); ok {
			identity = session.IdentityFromClaims(claims)
		}
	}

	c.store.Login(identity, cred)
	c.storeMarker(ctx, identity)

	slogctx.Info(ctx, "Session started", "userID", identity.UserID, "tenantID", identity.TenantID)

	return identity, nil
}

// Restore brings back a session from the persisted marker. The first request
// afterwards renews the credential. It reports whether a marker was found.
func (c *Client) Restore(ctx context.Context) (bool, error) {
	if c.markers == nil {
		return false, nil
	}

	marker, err := c.markers.LoadMarker(ctx, c.markerID)
	if errors.Is(err, serviceerr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading login marker: %w", err)
	}

	c.store.Restore(marker.Identity)
	slogctx.Info(ctx, "Session restored from marker", "userID", marker.Identity.UserID)

	return true, nil
}

// Logout ends the session on the server and locally. The local session is
// cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	var errs []error

	if cred := c.store.Get().Credential; !cred.IsZero() {
		errs = append(errs, c.auth.Logout(ctx, cred.Token))
	}

	c.store.Clear()

	if c.markers != nil {
		if err := c.markers.DeleteMarker(ctx, c.markerID); err != nil {
			errs = append(errs, fmt.Errorf("deleting login marker: %w", err))
		}
	}

	return errors.Join(errs...)
}

// HTTPClient returns the client sending through the gates.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Do sends req through the gates. A non-2xx response is returned as a
// *serviceerr.Error carrying the category and the server's message, a
// transport failure as one of category network.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Join(&serviceerr.Error{Err: serviceerr.Classify(nil, err), Description: "sending request"}, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return resp, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	return nil, serviceerr.FromResponse(resp.StatusCode, body)
}

// Get sends a GET for path relative to the base URL.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.JoinPath(path).String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	return c.Do(req)
}

func (c *Client) Session() session.Session {
	return c.store.Get()
}

func (c *Client) Store() *session.Store {
	return c.store
}

func (c *Client) Coordinator() *renewal.Coordinator {
	return c.coordinator
}

func (c *Client) SchedulerState() scheduler.State {
	return c.scheduler.State()
}

// SessionEnded delivers a notice each time the session ends.
func (c *Client) SessionEnded() <-chan endsession.Notice {
	return c.redirector.Notices()
}

func (c *Client) storeMarker(ctx context.Context, identity session.Identity) {
	if c.markers == nil {
		return
	}

	marker := session.Marker{
		ID:       c.markerID,
		Identity: identity,
		Expiry:   c.auth.RefreshExpiry(),
	}
	if err := c.markers.StoreMarker(ctx, marker); err != nil {
		slogctx.Warn(ctx, "Could not store login marker", "markerID", c.markerID, "error", err)
	}
}
