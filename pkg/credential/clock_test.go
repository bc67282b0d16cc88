package credential_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/session-client/internal/tokentest"
	"github.com/openkcm/session-client/pkg/credential"
)

func fixedClock(now time.Time, buffer time.Duration) credential.Clock {
	return credential.Clock{Buffer: buffer, Now: func() time.Time { return now }}
}

func TestDecodeExpiry(t *testing.T) {
	exp := time.Unix(1_900_000_000, 0)

	t.Run("valid token", func(t *testing.T) {
		got, ok := credential.DecodeExpiry(tokentest.Mint(t, exp, nil))

		require.True(t, ok)
		assert.True(t, exp.Equal(got))
	})

	payloadOnly := []struct {
		name   string
		header string
	}{
		{name: "unknown alg", header: `{"alg":"XX999","typ":"JWT"}`},
		{name: "non json header", header: "nope"},
		{name: "empty header", header: ""},
	}

	for _, tt := range payloadOnly {
		t.Run(tt.name+" still decodes payload", func(t *testing.T) {
			got, ok := credential.DecodeExpiry(tokentest.Raw(tt.header, `{"exp":1900000000}`, "sig"))

			require.True(t, ok)
			assert.True(t, exp.Equal(got))
		})
	}

	malformed := []struct {
		name  string
		token string
	}{
		{name: "empty string", token: ""},
		{name: "one segment", token: "abc"},
		{name: "two segments", token: "abc.def"},
		{name: "four segments", token: "a.b.c.d"},
		{name: "non base64 payload", token: base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256"}`)) + ".%%%.sig"},
		{name: "non json payload", token: tokentest.Raw(`{"alg":"HS256"}`, "not json", "sig")},
		{name: "missing exp", token: tokentest.MintClaims(t, map[string]any{"sub": "u1"})},
		{name: "non numeric exp", token: tokentest.MintClaims(t, map[string]any{"exp": "tomorrow"})},
		{name: "boolean exp", token: tokentest.MintClaims(t, map[string]any{"exp": true})},
	}

	for _, tt := range malformed {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := credential.DecodeExpiry(tt.token)
			assert.False(t, ok)

			clock := fixedClock(time.Unix(0, 0), credential.DefaultExpiryBuffer)
			cred := credential.New(tt.token)
			assert.True(t, clock.IsNearExpiry(cred))
			assert.True(t, clock.IsPastExpiry(cred))
			assert.Zero(t, clock.TimeUntilExpiry(cred))
		})
	}
}

func TestClock_Scenario(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	clock := fixedClock(now, 60*time.Second)
	cred := credential.New(tokentest.Mint(t, now.Add(30*time.Second), nil))

	assert.True(t, clock.IsNearExpiry(cred))
	assert.False(t, clock.IsPastExpiry(cred))
	assert.Equal(t, 30000*time.Millisecond, clock.TimeUntilExpiry(cred))
}

func TestClock_IsNearExpiry(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	buffer := 60 * time.Second

	tests := []struct {
		name     string
		exp      time.Time
		wantNear bool
		wantPast bool
	}{
		{name: "far future", exp: now.Add(time.Hour), wantNear: false, wantPast: false},
		{name: "just outside buffer", exp: now.Add(buffer + time.Second), wantNear: false, wantPast: false},
		{name: "exactly at buffer", exp: now.Add(buffer), wantNear: true, wantPast: false},
		{name: "inside buffer", exp: now.Add(time.Second), wantNear: true, wantPast: false},
		{name: "exactly expired", exp: now, wantNear: true, wantPast: true},
		{name: "long expired", exp: now.Add(-time.Hour), wantNear: true, wantPast: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := fixedClock(now, buffer)
			cred := credential.New(tokentest.Mint(t, tt.exp, nil))

			assert.Equal(t, tt.wantNear, clock.IsNearExpiry(cred))
			assert.Equal(t, tt.wantPast, clock.IsPastExpiry(cred))
		})
	}
}

func TestClock_AbsentCredential(t *testing.T) {
	clock := credential.NewClock(credential.DefaultExpiryBuffer)

	assert.True(t, clock.IsNearExpiry(credential.Credential{}))
	assert.True(t, clock.IsPastExpiry(credential.Credential{}))
	assert.Zero(t, clock.TimeUntilExpiry(credential.Credential{}))
}

func TestClock_TimeUntilExpiryMonotonic(t *testing.T) {
	start := time.Unix(1_800_000_000, 0)
	cred := credential.New(tokentest.Mint(t, start.Add(5*time.Minute), nil))

	prev := time.Duration(1<<63 - 1)
	for step := range 20 {
		now := start.Add(time.Duration(step) * 20 * time.Second)
		got := fixedClock(now, credential.DefaultExpiryBuffer).TimeUntilExpiry(cred)

		assert.LessOrEqual(t, got, prev)
		assert.GreaterOrEqual(t, got, time.Duration(0))
		prev = got
	}
	assert.Zero(t, prev)
}

func TestTokenFunctions(t *testing.T) {
	fresh := tokentest.Mint(t, time.Now().Add(time.Hour), nil)
	due := tokentest.Mint(t, time.Now().Add(10*time.Second), nil)

	assert.False(t, credential.IsNearExpiry(fresh))
	assert.True(t, credential.IsNearExpiry(due))
	assert.False(t, credential.IsPastExpiry(due))
	assert.True(t, credential.IsPastExpiry("garbage"))
	assert.Greater(t, credential.TimeUntilExpiry(fresh), 59*time.Minute)
	assert.Zero(t, credential.TimeUntilExpiry(""))
}

func TestParseClaims(t *testing.T) {
	token := tokentest.ForUser(t, time.Now().Add(time.Hour), "user-1", "alice", "tenant-1")

	claims, ok := credential.ParseClaims(token)

	require.True(t, ok)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, "user-1", claims.Subject)
}
