// Package tokentest mints access tokens for tests.
package tokentest

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var signingKey = []byte("tokentest-signing-key-0123456789abcdef") // NOSONAR

// Mint returns an HS256 token expiring at exp carrying the given extra claims.
func Mint(tb testing.TB, exp time.Time, extra map[string]any) string {
	tb.Helper()

	claims := map[string]any{
		"exp":        exp.Unix(),
		"iat":        time.Now().Unix(),
		"token_type": "access",
	}
	for k, v := range extra {
		claims[k] = v
	}

	return MintClaims(tb, claims)
}

// MintClaims signs an arbitrary claim set, including malformed ones.
func MintClaims(tb testing.TB, claims map[string]any) string {
	tb.Helper()

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		tb.Fatalf("creating signer: %v", err)
	}

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		tb.Fatalf("signing token: %v", err)
	}

	return token
}

// ForUser mints a token for a user of a tenant.
func ForUser(tb testing.TB, exp time.Time, userID, username, tenantID string) string {
	tb.Helper()

	return Mint(tb, exp, map[string]any{
		"sub":       userID,
		"user_id":   userID,
		"username":  username,
		"tenant_id": tenantID,
	})
}

// Raw joins base64url encoded segments without signing.
func Raw(header, payload, signature string) string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(header)) + "." + enc.EncodeToString([]byte(payload)) + "." + enc.EncodeToString([]byte(signature))
}
