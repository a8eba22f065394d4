package security

import "time"

const (
	// DefaultClockSkewGracePeriod is the grace period applied to expiry
	// checks so that minor clock drift between the server and its storage
	// backend does not produce false expirations. 5 seconds covers typical
	// NTP drift; tokens may be honored up to that long past their nominal
	// expiry.
	DefaultClockSkewGracePeriod = 5 * time.Second
)

// IsExpired checks expiry with the default clock skew grace period.
func IsExpired(expiresAt time.Time) bool {
	return IsExpiredWithGracePeriod(expiresAt, DefaultClockSkewGracePeriod)
}

// IsExpiredWithGracePeriod checks expiry with a custom grace period.
// A zero time means no expiration.
func IsExpiredWithGracePeriod(expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().After(expiresAt.Add(gracePeriod))
}

// ExpiringSoon reports whether expiresAt falls within the given threshold.
func ExpiringSoon(expiresAt time.Time, threshold time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().Add(threshold).After(expiresAt)
}
