package gate_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openkcm/session-client/internal/tokentest"
	"github.com/openkcm/session-client/pkg/credential"
	"github.com/openkcm/session-client/pkg/gate"
	"github.com/openkcm/session-client/pkg/renewal"
	renewalmock "github.com/openkcm/session-client/pkg/renewal/mock"
	"github.com/openkcm/session-client/pkg/session"
)

var alice = session.Identity{UserID: "u-1", Username: "alice", TenantID: "t-1"}

const loginPath = "/api/v1/auth/login"

type fixture struct {
	store       *session.Store
	renewer     *renewalmock.Renewer
	ender       *renewalmock.Ender
	coordinator *renewal.Coordinator
	outbound    *gate.Outbound
	inbound     *gate.Inbound
	transport   *gate.Transport
	client      *http.Client
}

func newFixture(t *testing.T, renewer *renewalmock.Renewer, inboundOpts ...gate.InboundOption) *fixture {
	t.Helper()

	store := session.NewStore()
	ender := renewalmock.NewEnder()
	coordinator := renewal.NewCoordinator(store, renewer, ender)
	t.Cleanup(coordinator.Close)

	outbound := gate.NewOutbound(store, coordinator, gate.WithDefaultTenant("default-tenant"))
	inbound := gate.NewInbound(store, coordinator, inboundOpts...)
	transport := &gate.Transport{
		Base:     http.DefaultTransport,
		Outbound: outbound,
		Inbound:  inbound,
		Exempt:   gate.ExemptPaths(loginPath),
	}

	return &fixture{
		store:       store,
		renewer:     renewer,
		ender:       ender,
		coordinator: coordinator,
		outbound:    outbound,
		inbound:     inbound,
		transport:   transport,
		client:      &http.Client{Transport: transport, Timeout: 5 * time.Second},
	}
}

func mint(t *testing.T, in time.Duration, tag string) string {
	t.Helper()
	return tokentest.Mint(t, time.Now().Add(in), map[string]any{"tag": tag})
}

func cred(t *testing.T, in time.Duration, tag string) credential.Credential {
	t.Helper()
	return credential.New(mint(t, in, tag))
}

// api accepts only the bearer token held in valid and records what it saw.
type api struct {
	mu       sync.Mutex
	valid    string
	seen     []string
	bodies   []string
	rejected atomic.Int32
	accepted atomic.Int32
}

func newAPI(valid string) *api {
	return &api{valid: valid}
}

func (a *api) setValid(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.valid = token
}

func (a *api) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	valid := a.valid
	a.seen = append(a.seen, r.Header.Get(gate.HeaderAuthorization))
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		a.bodies = append(a.bodies, string(data))
	}
	a.mu.Unlock()

	if r.Header.Get(gate.HeaderAuthorization) != "Bearer "+valid {
		a.rejected.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"UNAUTHORIZED","message":"invalid token"}}`))
		return
	}

	a.accepted.Add(1)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"success":true}`))
}

func (a *api) authorizations() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.seen...)
}

func (a *api) requestBodies() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.bodies...)
}

func startAPI(t *testing.T, a *api) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(a)
	t.Cleanup(srv.Close)

	return srv
}
