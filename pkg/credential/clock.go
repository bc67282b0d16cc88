package credential

import "time"

// DefaultExpiryBuffer is how long before expiry a credential counts as near expiry.
const DefaultExpiryBuffer = 60 * time.Second

// Clock answers expiry questions against a buffer and a time source.
// An absent or undecodable credential is always treated as expired.
type Clock struct {
	Buffer time.Duration
	Now    func() time.Time
}

func NewClock(buffer time.Duration) Clock {
	return Clock{Buffer: buffer, Now: time.Now}
}

func (c Clock) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}

	return c.Now()
}

// IsNearExpiry reports whether now >= expiresAt - buffer.
func (c Clock) IsNearExpiry(cred Credential) bool {
	if cred.IsZero() || !cred.Decoded() {
		return true
	}

	return !c.now().Before(cred.ExpiresAt.Add(-c.Buffer))
}

// IsPastExpiry reports whether now >= expiresAt.
func (c Clock) IsPastExpiry(cred Credential) bool {
	if cred.IsZero() || !cred.Decoded() {
		return true
	}

	return !c.now().Before(cred.ExpiresAt)
}

// TimeUntilExpiry returns the remaining lifetime, never negative.
func (c Clock) TimeUntilExpiry(cred Credential) time.Duration {
	if cred.IsZero() || !cred.Decoded() {
		return 0
	}

	return max(0, cred.ExpiresAt.Sub(c.now()))
}

var defaultClock = NewClock(DefaultExpiryBuffer)

func IsNearExpiry(token string) bool {
	return defaultClock.IsNearExpiry(New(token))
}

func IsPastExpiry(token string) bool {
	return defaultClock.IsPastExpiry(New(token))
}

func TimeUntilExpiry(token string) time.Duration {
	return defaultClock.TimeUntilExpiry(New(token))
}
