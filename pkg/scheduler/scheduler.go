// Package scheduler renews the access credential ahead of its expiry.
package scheduler

import (
	"context"
	"sync"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/pkg/credential"
	"github.com/openkcm/session-client/pkg/session"
)

const DefaultMinInterval = time.Second

type State int

const (
	Idle State = iota
	Armed
	Firing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Firing:
		return "firing"
	default:
		return "unknown"
	}
}

// Renewer is satisfied by *renewal.Coordinator.
type Renewer interface {
	Renew(ctx context.Context) (credential.Credential, error)
}

// Scheduler keeps one timer armed at expiry minus buffer while the session
// is authenticated.
type Scheduler struct {
	store       *session.Store
	renewer     Renewer
	clock       credential.Clock
	minInterval time.Duration

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	state       State
	timer       *time.Timer
	generation  uint64
	lastFired   time.Time
	unsubscribe func()
	wg          sync.WaitGroup
}

type Option func(*Scheduler)

func WithClock(clock credential.Clock) Option {
	return func(s *Scheduler) {
		if clock.Now == nil {
			clock.Now = time.Now
		}
		s.clock = clock
	}
}

// WithMinInterval sets the shortest time between two firings.
func WithMinInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.minInterval = d
	}
}

func New(store *session.Store, renewer Renewer, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:       store,
		renewer:     renewer,
		clock:       credential.NewClock(credential.DefaultExpiryBuffer),
		minInterval: DefaultMinInterval,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start subscribes to the store and arms for the current session.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	unsubscribe := s.store.Subscribe(s.evaluate)

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	s.evaluate(s.store.Get())
}

// Stop clears the timer, returns to Idle and waits for a firing in progress.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return
	}
	unsubscribe := s.unsubscribe
	s.cancel()
	s.ctx, s.cancel, s.unsubscribe = nil, nil, nil
	s.stopTimer()
	s.state = Idle
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.wg.Wait()
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Scheduler) evaluate(sess session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A firing re-evaluates from the store once the renewal settles.
	if s.ctx == nil || s.state == Firing {
		return
	}

	s.stopTimer()

	if !sess.Authenticated || sess.Credential.IsZero() {
		if s.state != Idle {
			slogctx.Debug(s.ctx, "Auto-renewal idle")
		}
		s.state = Idle
		return
	}

	delay := s.clock.TimeUntilExpiry(sess.Credential) - s.clock.Buffer
	if !s.lastFired.IsZero() {
		if floor := s.minInterval - s.clock.Now().Sub(s.lastFired); delay < floor {
			delay = floor
		}
	}

	if delay <= 0 {
		s.fireLocked()
		return
	}

	s.state = Armed
	generation := s.generation
	s.timer = time.AfterFunc(delay, func() { s.onTimer(generation) })
	slogctx.Debug(s.ctx, "Auto-renewal armed", "delay", delay)
}

func (s *Scheduler) onTimer(generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil || generation != s.generation || s.state != Armed {
		return
	}

	s.timer = nil
	s.fireLocked()
}

func (s *Scheduler) fireLocked() {
	s.state = Firing
	s.lastFired = s.clock.Now()
	s.wg.Add(1)

	go s.fire(s.ctx)
}

func (s *Scheduler) fire(ctx context.Context) {
	defer s.wg.Done()

	if _, err := s.renewer.Renew(ctx); err != nil {
		slogctx.Warn(ctx, "Scheduled credential renewal failed", "error", err)
	}

	s.mu.Lock()
	if s.state == Firing {
		s.state = Idle
	}
	s.mu.Unlock()

	s.evaluate(s.store.Get())
}

// stopTimer invalidates the armed timer. The caller holds s.mu.
func (s *Scheduler) stopTimer() {
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
