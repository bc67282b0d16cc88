package cmdutils

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/openkcm/common-sdk/pkg/health"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/config"
)

// Session states reported by the running command.
const (
	SessionStarting      = "starting"
	SessionAuthenticated = "authenticated"
	SessionRestored      = "restored"
	SessionEnded         = "ended"
)

type sessionStatusKey struct{}

// sessionStatus is the session state shown next to readiness changes.
type sessionStatus struct {
	marker config.MarkerType

	mu      sync.Mutex
	state   string
	changed time.Time
}

func newSessionStatus(marker config.MarkerType) *sessionStatus {
	if marker == "" {
		marker = config.MarkerTypeMemory
	}

	return &sessionStatus{marker: marker, state: SessionStarting, changed: time.Now()}
}

func withSessionStatus(ctx context.Context, s *sessionStatus) context.Context {
	return context.WithValue(ctx, sessionStatusKey{}, s)
}

// ReportSession records the session state of the command running under ctx.
// It is a no-op outside RunAsService and RunAsJob.
func ReportSession(ctx context.Context, state string) {
	s, ok := ctx.Value(sessionStatusKey{}).(*sessionStatus)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == state {
		return
	}
	s.state = state
	s.changed = time.Now()
}

func (s *sessionStatus) snapshot() (string, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state, s.changed
}

func (s *sessionStatus) statusListener(ctx context.Context, state health.State) {
	failing := make([]string, 0, len(state.CheckState))
	for name, check := range state.CheckState {
		if check.Result != nil {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)

	session, since := s.snapshot()
	slogctx.Info(ctx, "readiness status changed",
		"status", state.Status,
		"failing", failing,
		"session", session,
		"sessionSince", since,
		"marker", s.marker,
	)
}
