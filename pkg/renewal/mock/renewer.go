package renewalmock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/openkcm/session-client/pkg/renewal"
)

// Renewer returns queued responses in order, repeating the last one.
type Renewer struct {
	mu        sync.Mutex
	responses []response
	gate      chan struct{}
	calls     atomic.Int32
	started   chan struct{}
}

type response struct {
	token string
	err   error
}

var _ = renewal.Renewer(&Renewer{})

type RenewerOption func(*Renewer)

// WithToken queues a successful renewal.
func WithToken(token string) RenewerOption {
	return func(r *Renewer) {
		r.responses = append(r.responses, response{token: token})
	}
}

// WithError queues a failed renewal.
func WithError(err error) RenewerOption {
	return func(r *Renewer) {
		r.responses = append(r.responses, response{err: err})
	}
}

// WithGate blocks every call until gate is closed or the call context ends.
func WithGate(gate chan struct{}) RenewerOption {
	return func(r *Renewer) {
		r.gate = gate
	}
}

func NewRenewer(opts ...RenewerOption) *Renewer {
	r := &Renewer{started: make(chan struct{}, 64)}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *Renewer) Renew(ctx context.Context) (string, error) {
	n := int(r.calls.Add(1))
	select {
	case r.started <- struct{}{}:
	default:
	}

	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.responses) == 0 {
		return "", nil
	}

	resp := r.responses[min(n, len(r.responses))-1]
	return resp.token, resp.err
}

// Calls returns how many times Renew was called.
func (r *Renewer) Calls() int {
	return int(r.calls.Load())
}

// Started receives once per call as it begins.
func (r *Renewer) Started() <-chan struct{} {
	return r.started
}

// Ender records end-session calls.
type Ender struct {
	mu      sync.Mutex
	reasons []string
}

var _ = renewal.SessionEnder(&Ender{})

func NewEnder() *Ender {
	return &Ender{}
}

func (e *Ender) EndSession(_ context.Context, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reasons = append(e.reasons, reason)
}

func (e *Ender) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.reasons)
}

func (e *Ender) Reasons() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, len(e.reasons))
	copy(out, e.reasons)
	return out
}
