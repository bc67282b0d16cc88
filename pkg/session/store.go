package session

import (
	"slices"
	"sync"

	"github.com/openkcm/session-client/pkg/credential"
)

// Listener observes the session after every mutation. Listeners are called
// synchronously and must not mutate the store from within the call.
type Listener func(Session)

type subscription struct {
	listener Listener
}

// Store holds the single session of a client. Each mutation is followed by
// a notification of all listeners, in subscription order, before the next
// mutation starts.
//
// The generation changes whenever a session starts or ends (Login, Restore,
// Clear). Work begun for one session can use it to avoid writing into the
// next one.
type Store struct {
	notifyMu sync.Mutex

	mu         sync.RWMutex
	session    Session
	generation uint64
	listeners  []*subscription
}

func NewStore() *Store {
	return &Store{}
}

// Get returns a snapshot of the current session.
func (s *Store) Get() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.session
}

// Snapshot returns the current session together with its generation.
func (s *Store) Snapshot() (Session, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.session, s.generation
}

func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.generation
}

// Login starts an authenticated session.
func (s *Store) Login(identity Identity, cred credential.Credential) {
	s.replace(Session{
		Credential:    cred,
		Authenticated: true,
		Identity:      identity,
	})
}

// Restore records a previously logged in identity without a credential.
func (s *Store) Restore(identity Identity) {
	s.replace(Session{Identity: identity})
}

// SetCredential replaces the credential and marks the session authenticated.
// The identity is read from the credential when none is known yet.
func (s *Store) SetCredential(cred credential.Credential) {
	s.mutate(func(sess *Session, _ *uint64) bool {
		sess.setCredential(cred)
		return true
	})
}

// SetCredentialIf is SetCredential applied only while the session is still
// the one of generation gen. It reports whether the credential was stored.
func (s *Store) SetCredentialIf(gen uint64, cred credential.Credential) bool {
	return s.mutate(func(sess *Session, current *uint64) bool {
		if *current != gen {
			return false
		}
		sess.setCredential(cred)

		return true
	})
}

// Clear ends the session.
func (s *Store) Clear() {
	s.replace(Session{})
}

// ClearIf ends the session only while it is still the one of generation gen.
// It reports whether the session was cleared.
func (s *Store) ClearIf(gen uint64) bool {
	return s.mutate(func(sess *Session, current *uint64) bool {
		if *current != gen {
			return false
		}
		*sess = Session{}
		*current++

		return true
	})
}

func (sess *Session) setCredential(cred credential.Credential) {
	sess.Credential = cred
	sess.Authenticated = true
	if sess.Identity.IsZero() {
		if claims, ok := credential.ParseClaims(cred.Token); ok {
			sess.Identity = IdentityFromClaims(claims)
		}
	}
}

// Subscribe registers a listener and returns a function removing it.
func (s *Store) Subscribe(listener Listener) (unsubscribe func()) {
	sub := &subscription{listener: listener}

	s.mu.Lock()
	s.listeners = append(s.listeners, sub)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.listeners = slices.DeleteFunc(s.listeners, func(l *subscription) bool {
				return l == sub
			})
		})
	}
}

// replace starts a new generation holding next.
func (s *Store) replace(next Session) {
	s.mutate(func(sess *Session, gen *uint64) bool {
		*sess = next
		*gen++

		return true
	})
}

// mutate applies fn and notifies the listeners when fn reports a change.
func (s *Store) mutate(fn func(sess *Session, gen *uint64) bool) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if !fn(&s.session, &s.generation) {
		s.mu.Unlock()
		return false
	}
	snapshot := s.session
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, sub := range listeners {
		sub.listener(snapshot)
	}

	return true
}
