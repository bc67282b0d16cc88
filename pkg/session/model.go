package session

import (
	"time"

	"github.com/openkcm/session-client/pkg/credential"
)

// Identity is who the session belongs to.
type Identity struct {
	UserID   string `json:"userID"`
	Username string `json:"username"`
	TenantID string `json:"tenantID"`
}

func (i Identity) IsZero() bool {
	return i == Identity{}
}

// IdentityFromClaims reads the identity carried by an access token.
func IdentityFromClaims(claims credential.Claims) Identity {
	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}

	return Identity{
		UserID:   userID,
		Username: claims.Username,
		TenantID: claims.TenantID,
	}
}

// Session is a snapshot of the client's authentication state.
type Session struct {
	Credential    credential.Credential // Short-lived access credential, held in memory only
	Authenticated bool                  // Whether a credential was issued for this session
	Identity      Identity              // Identity of the user, kept across credential renewals
}

// Restorable reports whether a previous login is known but no credential is
// held, so a renewal may bring the session back.
func (s Session) Restorable() bool {
	return s.Credential.IsZero() && !s.Identity.IsZero()
}

// Marker records that a user logged in on this client. It outlives the
// in-memory session so a restarted process can restore it with a renewal.
type Marker struct {
	ID       string    `json:"id"`       // Marker ID, one per client installation
	Identity Identity  `json:"identity"` // Identity of the last login
	Expiry   time.Time `json:"expiry"`   // Expiry of the refresh credential backing the marker
}
