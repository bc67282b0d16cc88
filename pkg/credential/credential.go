// Package credential decodes bearer access tokens and answers expiry questions
// about them. Nothing in this package verifies signatures: the expiry is read so
// the client can renew early, the server stays the authority on validity.
package credential

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is an access token paired with the expiry decoded from it.
// ExpiresAt is zero when the token could not be decoded.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// New decodes the expiry of token once. The result is never mutated.
func New(token string) Credential {
	if token == "" {
		return Credential{}
	}

	exp, _ := DecodeExpiry(token)

	return Credential{Token: token, ExpiresAt: exp}
}

func (c Credential) IsZero() bool {
	return c.Token == ""
}

// Decoded reports whether an expiry could be read from the token.
func (c Credential) Decoded() bool {
	return !c.ExpiresAt.IsZero()
}

// Claims is the claim set issued by the ERP auth API.
type Claims struct {
	jwt.RegisteredClaims

	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

var parser = jwt.NewParser()

// ParseClaims decodes the payload segment of a compact JWT. The header and
// signature segments are not inspected.
func ParseClaims(token string) (Claims, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, false
	}

	payload, err := parser.DecodeSegment(parts[1])
	if err != nil {
		return Claims{}, false
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, false
	}

	return claims, true
}

// DecodeExpiry returns the exp claim of token. It returns false for a token
// that does not have three segments, whose payload is not base64url JSON, or
// whose exp claim is missing or not numeric.
func DecodeExpiry(token string) (time.Time, bool) {
	claims, ok := ParseClaims(token)
	if !ok || claims.ExpiresAt == nil {
		return time.Time{}, false
	}

	return claims.ExpiresAt.Time, true
}
