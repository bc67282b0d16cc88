package gate

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/credential"
	"github.com/openkcm/session-client/pkg/session"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderTenantID      = "X-Tenant-ID"
	HeaderRequestID     = "X-Request-ID"
)

// Coordinator is the renewal surface the gates depend on. It is satisfied
// by *renewal.Coordinator.
type Coordinator interface {
	Renew(ctx context.Context) (credential.Credential, error)
	IsRefreshing() bool
	WaitForOngoing(ctx context.Context) (credential.Credential, error)
}

// Outbound picks the credential for a request before it is sent.
type Outbound struct {
	store         *session.Store
	coordinator   Coordinator
	clock         credential.Clock
	defaultTenant string
	propagator    propagation.TextMapPropagator
}

type OutboundOption func(*Outbound)

func WithClock(clock credential.Clock) OutboundOption {
	return func(o *Outbound) {
		o.clock = clock
	}
}

// WithDefaultTenant sets the tenant sent when the session carries none.
func WithDefaultTenant(tenantID string) OutboundOption {
	return func(o *Outbound) {
		o.defaultTenant = tenantID
	}
}

func WithPropagator(p propagation.TextMapPropagator) OutboundOption {
	return func(o *Outbound) {
		o.propagator = p
	}
}

func NewOutbound(store *session.Store, coordinator Coordinator, opts ...OutboundOption) *Outbound {
	o := &Outbound{
		store:       store,
		coordinator: coordinator,
		clock:       credential.NewClock(credential.DefaultExpiryBuffer),
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Credential returns the credential to send with a request. A credential
// near expiry is renewed first, joining a renewal in flight. A session that
// lost its credential but is restorable gets one renewal attempt. Renewal
// errors are logged and the request proceeds with whatever the store holds.
func (o *Outbound) Credential(ctx context.Context) credential.Credential {
	s := o.store.Get()

	switch {
	case !s.Credential.IsZero() && o.clock.IsNearExpiry(s.Credential):
		slogctx.Debug(ctx, "Credential near expiry, renewing before send")
		o.logRenewal(ctx, o.awaitRenewal(ctx))
	case s.Restorable():
		slogctx.Debug(ctx, "No credential held for a known session, renewing before send")
		_, err := o.coordinator.Renew(ctx)
		o.logRenewal(ctx, err)
	default:
		return s.Credential
	}

	// The store holds the credential the awaited episode produced.
	return o.store.Get().Credential
}

func (o *Outbound) awaitRenewal(ctx context.Context) error {
	if o.coordinator.IsRefreshing() {
		_, err := o.coordinator.WaitForOngoing(ctx)
		if !errors.Is(err, serviceerr.ErrNoRenewalInProgress) {
			return err
		}
	}

	_, err := o.coordinator.Renew(ctx)
	return err
}

func (o *Outbound) logRenewal(ctx context.Context, err error) {
	if err != nil {
		slogctx.Warn(ctx, "Pre-send renewal failed, sending without a fresh credential", "error", err)
	}
}

// Headers returns the headers a request carries for cred: the bearer
// credential when present, the tenant, a request ID and the trace context.
func (o *Outbound) Headers(ctx context.Context, cred credential.Credential) http.Header {
	h := make(http.Header)
	o.apply(ctx, h, cred)

	return h
}

// PreSend returns a copy of req carrying the credential chosen by
// Credential, and that credential.
func (o *Outbound) PreSend(req *http.Request) (*http.Request, credential.Credential) {
	cred := o.Credential(req.Context())

	return o.WithCredential(req, cred), cred
}

// WithCredential returns a copy of req carrying cred.
func (o *Outbound) WithCredential(req *http.Request, cred credential.Credential) *http.Request {
	out := req.Clone(req.Context())
	o.apply(req.Context(), out.Header, cred)

	return out
}

func (o *Outbound) apply(ctx context.Context, h http.Header, cred credential.Credential) {
	if cred.IsZero() {
		h.Del(HeaderAuthorization)
	} else {
		h.Set(HeaderAuthorization, "Bearer "+cred.Token)
	}

	tenant := o.store.Get().Identity.TenantID
	if tenant == "" {
		tenant = o.defaultTenant
	}
	if tenant != "" {
		h.Set(HeaderTenantID, tenant)
	}

	if h.Get(HeaderRequestID) == "" {
		h.Set(HeaderRequestID, uuid.NewString())
	}

	propagator := o.propagator
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	propagator.Inject(ctx, propagation.HeaderCarrier(h))
}
