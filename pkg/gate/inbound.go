package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/credential"
	"github.com/openkcm/session-client/pkg/session"
)

const DefaultMaxQueued = 256

type result struct {
	cred credential.Credential
	err  error
}

// pending is one request waiting on a response-path renewal. Its channel
// is buffered so settling never blocks the drainer.
type pending struct {
	done      chan result
	cancelled atomic.Bool
}

func newPending() *pending {
	return &pending{done: make(chan result, 1)}
}

// flight is a renewal started from the response path and its queue.
type flight struct {
	queue chan *pending
}

// Inbound recovers requests rejected for authentication. The first failed
// request renews the credential; requests failing while that renewal runs
// are queued and settled with its outcome, in arrival order.
type Inbound struct {
	store       *session.Store
	coordinator Coordinator
	clock       credential.Clock
	maxQueued   int
	metrics     *metrics

	mu     sync.Mutex
	active *flight
}

type InboundOption func(*Inbound)

// WithMaxQueued bounds the requests waiting on one renewal.
func WithMaxQueued(n int) InboundOption {
	return func(in *Inbound) {
		if n > 0 {
			in.maxQueued = n
		}
	}
}

func WithInboundClock(clock credential.Clock) InboundOption {
	return func(in *Inbound) {
		in.clock = clock
	}
}

func NewInbound(store *session.Store, coordinator Coordinator, opts ...InboundOption) *Inbound {
	in := &Inbound{
		store:       store,
		coordinator: coordinator,
		clock:       credential.NewClock(credential.DefaultExpiryBuffer),
		maxQueued:   DefaultMaxQueued,
		metrics:     newMetrics(),
	}
	for _, opt := range opts {
		opt(in)
	}

	return in
}

// Recover returns the credential to replay a request with after it failed
// authentication carrying sentWith. Cancelling ctx gives up this request
// only.
func (in *Inbound) Recover(ctx context.Context, sentWith credential.Credential) (credential.Credential, error) {
	// Another request already replaced the credential this one was sent with.
	if cur := in.store.Get().Credential; !cur.IsZero() && cur.Token != sentWith.Token && !in.clock.IsPastExpiry(cur) {
		in.metrics.recovery(ctx, outcomeStale)
		return cur, nil
	}

	in.mu.Lock()
	if f := in.active; f != nil {
		p := newPending()
		select {
		case f.queue <- p:
		default:
			in.mu.Unlock()
			in.metrics.recovery(ctx, outcomeQueueFull)
			return credential.Credential{}, serviceerr.ErrQueueFull
		}
		in.mu.Unlock()

		in.metrics.queued(ctx)
		slogctx.Debug(ctx, "Queued request until the credential is renewed")

		return in.await(ctx, p)
	}

	f := &flight{queue: make(chan *pending, in.maxQueued)}
	in.active = f
	in.mu.Unlock()

	leader := newPending()
	go in.drain(context.WithoutCancel(ctx), f, leader)

	return in.await(ctx, leader)
}

// IsRecovering reports whether a response-path renewal is running.
func (in *Inbound) IsRecovering() bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	return in.active != nil
}

func (in *Inbound) await(ctx context.Context, p *pending) (credential.Credential, error) {
	select {
	case r := <-p.done:
		return r.cred, r.err
	case <-ctx.Done():
		p.cancelled.Store(true)
		return credential.Credential{}, ctx.Err()
	}
}

func (in *Inbound) drain(ctx context.Context, f *flight, leader *pending) {
	cred, err := in.coordinator.Renew(ctx)

	leaderResult := result{cred: cred}
	queuedResult := result{cred: cred}
	outcome := outcomeRenewed
	if err != nil {
		leaderResult = result{err: err}
		queuedResult = result{err: errors.Join(serviceerr.ErrQueueRejected, err)}
		outcome = outcomeRejected
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	settled := 0
	for {
		select {
		case p := <-f.queue:
			if p.cancelled.Load() {
				continue
			}
			p.done <- queuedResult
			settled++
		default:
			leader.done <- leaderResult
			in.active = nil

			in.metrics.recovery(ctx, outcome)
			slogctx.Debug(ctx, "Settled requests waiting on renewal", "queued", settled, "outcome", outcome)

			return
		}
	}
}
