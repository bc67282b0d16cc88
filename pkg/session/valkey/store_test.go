package sessionvalkey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/session-client/internal/dbtest/valkeytest"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   string
	}{
		{name: "keeps prefix", prefix: "test-prefix", want: "test-prefix"},
		{name: "trims trailing colon", prefix: "test-prefix:", want: "test-prefix"},
		{name: "trims only last trailing colon", prefix: "test:prefix:", want: "test:prefix"},
		{name: "handles empty prefix", prefix: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(nil, tt.prefix)
			assert.Equal(t, tt.want, s.prefix)
		})
	}
}

func TestStoreKey(t *testing.T) {
	s := newStore(nil, "prefix")

	assert.Equal(t, "prefix:marker:id-1", s.key(objectTypeMarker, "id-1"))
	assert.Equal(t, "prefix:other:id-2", s.key("other", "id-2"))
}

func TestStore_SetGetDestroy(t *testing.T) {
	ctx := t.Context()
	valkeyClient, _, terminate := valkeytest.Start(ctx)
	defer terminate(ctx)

	s := newStore(valkeyClient, "store-test")

	type payload struct {
		Value string `json:"value"`
	}

	require.NoError(t, s.Set(ctx, objectTypeMarker, "no-ttl", payload{Value: "a"}, 0))
	require.NoError(t, s.Set(ctx, objectTypeMarker, "ttl", payload{Value: "b"}, 1500*time.Millisecond))

	var got payload
	require.NoError(t, s.Get(ctx, objectTypeMarker, "no-ttl", &got))
	assert.Equal(t, "a", got.Value)

	ttl, err := valkeyClient.Do(ctx, valkeyClient.B().Ttl().Key(s.key(objectTypeMarker, "ttl")).Build()).AsInt64()
	require.NoError(t, err)
	assert.Positive(t, ttl)
	assert.LessOrEqual(t, ttl, int64(2))

	noTTL, err := valkeyClient.Do(ctx, valkeyClient.B().Ttl().Key(s.key(objectTypeMarker, "no-ttl")).Build()).AsInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), noTTL)

	require.NoError(t, s.Destroy(ctx, objectTypeMarker, "no-ttl"))
	assert.Error(t, s.Get(ctx, objectTypeMarker, "no-ttl", &got))
}
