package client

import (
	"net/http"
	"time"

	"github.com/openkcm/session-client/internal/endsession"
	"github.com/openkcm/session-client/pkg/authapi"
	"github.com/openkcm/session-client/pkg/credential"
	"github.com/openkcm/session-client/pkg/gate"
	"github.com/openkcm/session-client/pkg/renewal"
	"github.com/openkcm/session-client/pkg/scheduler"
	"github.com/openkcm/session-client/pkg/session"
)

const DefaultMarkerID = "default"

type options struct {
	tenantID      string
	expiryBuffer  time.Duration
	renewTimeout  time.Duration
	minInterval   time.Duration
	maxQueued     int
	markers       session.MarkerRepository
	markerID      string
	loginURL      string
	baseTransport http.RoundTripper
	timeout       time.Duration
	paths         authapi.Paths
	onEndSession  func(endsession.Notice)
	isAuthFailure func(*http.Response) bool
}

func defaultOptions() options {
	return options{
		expiryBuffer:  credential.DefaultExpiryBuffer,
		renewTimeout:  renewal.DefaultRenewTimeout,
		minInterval:   scheduler.DefaultMinInterval,
		maxQueued:     gate.DefaultMaxQueued,
		markerID:      DefaultMarkerID,
		baseTransport: http.DefaultTransport,
		timeout:       30 * time.Second,
		paths:         authapi.DefaultPaths(),
		isAuthFailure: gate.IsUnauthorized,
	}
}

// Option configures a Client.
type Option func(*options)

// WithTenant sets the tenant sent before a session is established.
func WithTenant(tenantID string) Option {
	return func(o *options) {
		o.tenantID = tenantID
	}
}

// WithExpiryBuffer sets how long before expiry a credential is renewed.
func WithExpiryBuffer(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.expiryBuffer = d
		}
	}
}

func WithRenewTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.renewTimeout = d
		}
	}
}

// WithMinRenewInterval sets the shortest time between scheduled renewals.
func WithMinRenewInterval(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.minInterval = d
		}
	}
}

// WithMaxQueued bounds the requests waiting on a renewal.
func WithMaxQueued(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxQueued = n
		}
	}
}

// WithMarker persists the "previously logged in" marker under id.
func WithMarker(repo session.MarkerRepository, id string) Option {
	return func(o *options) {
		o.markers = repo
		if id != "" {
			o.markerID = id
		}
	}
}

// WithLoginURL sets the login page users are sent to when the session ends.
func WithLoginURL(u string) Option {
	return func(o *options) {
		o.loginURL = u
	}
}

// WithTransport sets the transport below the gates.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		if rt != nil {
			o.baseTransport = rt
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

func WithAuthPaths(p authapi.Paths) Option {
	return func(o *options) {
		o.paths = p
	}
}

// WithEndSessionHook is called once each time a session ends.
func WithEndSessionHook(fn func(endsession.Notice)) Option {
	return func(o *options) {
		o.onEndSession = fn
	}
}

// WithAuthFailure replaces the default 401 auth failure signal.
func WithAuthFailure(fn func(*http.Response) bool) Option {
	return func(o *options) {
		if fn != nil {
			o.isAuthFailure = fn
		}
	}
}
