// Package renewal runs access credential renewals for a session. At most one
// renewal call is in flight per Coordinator; concurrent callers join it.
package renewal

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/credential"
	"github.com/openkcm/session-client/pkg/session"
)

const (
	DefaultRenewTimeout = 15 * time.Second

	ReasonExpired   = "Your session has expired, please log in again."
	ReasonNoSession = "Please log in to continue."
)

// Renewer obtains a new access token. The refresh credential is held by the
// implementation.
type Renewer interface {
	Renew(ctx context.Context) (string, error)
}

// SessionEnder performs the end-of-session effect. Implementations must
// tolerate repeated calls.
type SessionEnder interface {
	EndSession(ctx context.Context, reason string)
}

type RenewerFunc func(ctx context.Context) (string, error)

func (f RenewerFunc) Renew(ctx context.Context) (string, error) {
	return f(ctx)
}

// episode is one renewal call and the callers waiting on it. gen is the
// session generation the renewal was started for.
type episode struct {
	done chan struct{}
	gen  uint64
	cred credential.Credential
	err  error
}

func (e *episode) wait(ctx context.Context) (credential.Credential, error) {
	select {
	case <-e.done:
		return e.cred, e.err
	case <-ctx.Done():
		return credential.Credential{}, ctx.Err()
	}
}

type Coordinator struct {
	store   *session.Store
	renewer Renewer
	ender   SessionEnder

	renewTimeout time.Duration
	tracer       trace.Tracer
	metrics      *metrics

	mu          sync.Mutex
	current     *episode
	ended       bool
	unsubscribe func()
	wg          sync.WaitGroup
}

type Option func(*Coordinator)

// WithRenewTimeout bounds a single renewal call. Callers giving up earlier
// do not shorten it.
func WithRenewTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.renewTimeout = d
		}
	}
}

func NewCoordinator(store *session.Store, renewer Renewer, ender SessionEnder, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:        store,
		renewer:      renewer,
		ender:        ender,
		renewTimeout: DefaultRenewTimeout,
		tracer:       otel.Tracer("session-client/renewal"),
		metrics:      newMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.unsubscribe = store.Subscribe(c.onSessionChange)

	return c
}

// onSessionChange re-arms the end-session effect once a session is
// authenticated again.
func (c *Coordinator) onSessionChange(s session.Session) {
	if !s.Authenticated {
		return
	}

	c.mu.Lock()
	c.ended = false
	c.mu.Unlock()
}

// Renew starts a renewal or joins the one in flight and waits for its
// credential. Cancelling ctx stops the wait, not the renewal.
func (c *Coordinator) Renew(ctx context.Context) (credential.Credential, error) {
	s, gen := c.store.Snapshot()
	if !s.Authenticated && s.Identity.IsZero() {
		slogctx.Debug(ctx, "No session to renew")
		c.store.Clear()
		c.endSession(ctx, ReasonNoSession)
		c.metrics.outcome(ctx, outcomeUnavailable)

		return credential.Credential{}, serviceerr.ErrRenewalUnavailable
	}

	c.mu.Lock()
	ep := c.current
	if ep != nil {
		c.mu.Unlock()
		c.metrics.joined(ctx)
		slogctx.Debug(ctx, "Joining ongoing credential renewal")

		return ep.wait(ctx)
	}

	ep = &episode{done: make(chan struct{}), gen: gen}
	c.current = ep
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(context.WithoutCancel(ctx), ep)

	return ep.wait(ctx)
}

// IsRefreshing reports whether a renewal is in flight.
func (c *Coordinator) IsRefreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current != nil
}

// WaitForOngoing waits for the renewal in flight without starting one. It
// returns serviceerr.ErrNoRenewalInProgress when there is none.
func (c *Coordinator) WaitForOngoing(ctx context.Context) (credential.Credential, error) {
	c.mu.Lock()
	ep := c.current
	c.mu.Unlock()

	if ep == nil {
		return credential.Credential{}, serviceerr.ErrNoRenewalInProgress
	}

	return ep.wait(ctx)
}

// Close stops observing the store and waits for a renewal in flight to settle.
func (c *Coordinator) Close() {
	c.unsubscribe()
	c.wg.Wait()
}

func (c *Coordinator) run(ctx context.Context, ep *episode) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, c.renewTimeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "renewal")
	defer span.End()

	start := time.Now()
	cred, err := c.call(ctx)
	switch {
	case err != nil && c.store.ClearIf(ep.gen):
		slogctx.Warn(ctx, "Credential renewal failed, ending session", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "renewal failed")

		c.endSession(ctx, ReasonExpired)
		c.metrics.outcome(ctx, outcomeFailure)

		ep.err = errors.Join(serviceerr.ErrRenewalFailed, err)
	case err == nil && c.store.SetCredentialIf(ep.gen, cred):
		slogctx.Info(ctx, "Credential renewed",
			"expiresAt", cred.ExpiresAt, "duration", time.Since(start))
		span.SetAttributes(attribute.String("expires_at", cred.ExpiresAt.Format(time.RFC3339)))

		c.metrics.outcome(ctx, outcomeSuccess)

		ep.cred = cred
	default:
		// The session was cleared or replaced while the call ran, the
		// result belongs to a session that no longer exists.
		slogctx.Info(ctx, "Session changed during renewal, discarding the result", "renewalError", err)
		span.SetAttributes(attribute.Bool("discarded", true))

		c.metrics.outcome(ctx, outcomeUnavailable)

		ep.err = serviceerr.ErrRenewalUnavailable
	}

	// Detach before releasing waiters so a waiter may start the next episode.
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()

	close(ep.done)
}

func (c *Coordinator) call(ctx context.Context) (credential.Credential, error) {
	token, err := c.renewer.Renew(ctx)
	if err != nil {
		return credential.Credential{}, err
	}

	if token == "" {
		return credential.Credential{}, errors.New("renewal returned no access token")
	}

	cred := credential.New(token)
	if !cred.Decoded() {
		slogctx.Warn(ctx, "Renewed credential has no readable expiry",
			"error", serviceerr.ErrMalformedCredential)
	}

	return cred, nil
}

func (c *Coordinator) endSession(ctx context.Context, reason string) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	c.mu.Unlock()

	if c.ender == nil {
		return
	}

	slogctx.Info(ctx, "Ending session", "reason", reason)
	c.ender.EndSession(ctx, reason)
}
