package gate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/credential"
	"github.com/openkcm/session-client/pkg/gate"
	renewalmock "github.com/openkcm/session-client/pkg/renewal/mock"
)

type recovered struct {
	cred credential.Credential
	err  error
}

func recoverAsync(ctx context.Context, in *gate.Inbound, sentWith credential.Credential) <-chan recovered {
	out := make(chan recovered, 1)
	go func() {
		c, err := in.Recover(ctx, sentWith)
		out <- recovered{cred: c, err: err}
	}()

	return out
}

func TestInbound_CancelledEntryIsSkipped(t *testing.T) {
	newToken := mint(t, time.Hour, "new")
	renewGate := make(chan struct{})
	f := newFixture(t, renewalmock.NewRenewer(renewalmock.WithToken(newToken), renewalmock.WithGate(renewGate)))
	old := cred(t, time.Hour, "old")
	f.store.Login(alice, old)

	leader := recoverAsync(t.Context(), f.inbound, old)
	<-f.renewer.Started()

	first := recoverAsync(t.Context(), f.inbound, old)
	cancelCtx, cancel := context.WithCancel(t.Context())
	second := recoverAsync(cancelCtx, f.inbound, old)
	third := recoverAsync(t.Context(), f.inbound, old)

	time.Sleep(20 * time.Millisecond)
	cancel()
	got := <-second
	assert.ErrorIs(t, got.err, context.Canceled)

	close(renewGate)

	for _, ch := range []<-chan recovered{leader, first, third} {
		r := <-ch
		require.NoError(t, r.err)
		assert.Equal(t, newToken, r.cred.Token)
	}
	assert.Equal(t, 1, f.renewer.Calls())
	assert.False(t, f.inbound.IsRecovering())
}

func TestInbound_FailureRejectsQueue(t *testing.T) {
	renewGate := make(chan struct{})
	f := newFixture(t, renewalmock.NewRenewer(renewalmock.WithError(errors.New("revoked")), renewalmock.WithGate(renewGate)))
	old := cred(t, time.Hour, "old")
	f.store.Login(alice, old)

	leader := recoverAsync(t.Context(), f.inbound, old)
	<-f.renewer.Started()
	queued := []<-chan recovered{
		recoverAsync(t.Context(), f.inbound, old),
		recoverAsync(t.Context(), f.inbound, old),
	}
	time.Sleep(20 * time.Millisecond)
	close(renewGate)

	r := <-leader
	assert.ErrorIs(t, r.err, serviceerr.ErrRenewalFailed)
	for _, ch := range queued {
		r := <-ch
		assert.ErrorIs(t, r.err, serviceerr.ErrQueueRejected)
		assert.ErrorIs(t, r.err, serviceerr.ErrRenewalFailed)
	}
	assert.Equal(t, 1, f.ender.Calls())
}

func TestInbound_QueueFull(t *testing.T) {
	renewGate := make(chan struct{})
	f := newFixture(t,
		renewalmock.NewRenewer(renewalmock.WithToken(mint(t, time.Hour, "new")), renewalmock.WithGate(renewGate)),
		gate.WithMaxQueued(1),
	)
	old := cred(t, time.Hour, "old")
	f.store.Login(alice, old)

	leader := recoverAsync(t.Context(), f.inbound, old)
	<-f.renewer.Started()
	queued := recoverAsync(t.Context(), f.inbound, old)
	time.Sleep(20 * time.Millisecond)

	_, err := f.inbound.Recover(t.Context(), old)
	assert.ErrorIs(t, err, serviceerr.ErrQueueFull)

	close(renewGate)
	require.NoError(t, (<-leader).err)
	require.NoError(t, (<-queued).err)
}

func TestInbound_StaleCredentialSkipsRenewal(t *testing.T) {
	f := newFixture(t, renewalmock.NewRenewer(renewalmock.WithToken("unused")))
	current := cred(t, time.Hour, "current")
	f.store.Login(alice, current)

	got, err := f.inbound.Recover(t.Context(), cred(t, time.Hour, "older"))

	require.NoError(t, err)
	assert.Equal(t, current, got)
	assert.Zero(t, f.renewer.Calls())
}
