// Package endsession ends a client session: it forgets the login marker and
// sends the user back to the login page, once per session.
package endsession

import (
	"context"
	"sync"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/pkg/session"
)

// Notice tells the user why they have to log in again.
type Notice struct {
	Reason   string
	LoginURL string
	At       time.Time
}

// Redirector implements renewal.SessionEnder. The first EndSession after
// construction or Reset publishes a Notice; later calls are no-ops.
type Redirector struct {
	markers  session.MarkerRepository
	markerID string
	loginURL string
	notify   func(Notice)
	now      func() time.Time

	mu      sync.Mutex
	ended   bool
	last    Notice
	notices chan Notice
}

type Option func(*Redirector)

// WithMarker deletes the marker with id from repo when the session ends.
func WithMarker(repo session.MarkerRepository, id string) Option {
	return func(r *Redirector) {
		r.markers = repo
		r.markerID = id
	}
}

// WithNotify calls fn synchronously with every published notice.
func WithNotify(fn func(Notice)) Option {
	return func(r *Redirector) {
		r.notify = fn
	}
}

func New(loginURL string, opts ...Option) *Redirector {
	r := &Redirector{
		loginURL: loginURL,
		now:      time.Now,
		notices:  make(chan Notice, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

func (r *Redirector) EndSession(ctx context.Context, reason string) {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return
	}
	r.ended = true
	n := Notice{Reason: reason, LoginURL: r.loginURL, At: r.now()}
	r.last = n
	r.mu.Unlock()

	if r.markers != nil && r.markerID != "" {
		if err := r.markers.DeleteMarker(ctx, r.markerID); err != nil {
			slogctx.Warn(ctx, "Could not delete login marker", "markerID", r.markerID, "error", err)
		}
	}

	slogctx.Info(ctx, "Session ended, login required", "reason", reason, "loginURL", r.loginURL)

	if r.notify != nil {
		r.notify(n)
	}

	// Keep only the newest notice for a reader that is not waiting.
	select {
	case r.notices <- n:
	default:
		select {
		case <-r.notices:
		default:
		}
		select {
		case r.notices <- n:
		default:
		}
	}
}

// Reset re-arms the redirector for a new session.
func (r *Redirector) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ended = false
}

// Ended reports whether the current session was ended, and its notice.
func (r *Redirector) Ended() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.last, r.ended
}

// Notices delivers published notices. Only the newest unread one is kept.
func (r *Redirector) Notices() <-chan Notice {
	return r.notices
}
