package security

import "time"

// IsExpiredAt reports whether a record that expires at expiresAt is expired at now.
// A record is still valid at exactly its expiry instant. The grace period extends
// validity to tolerate clock skew between the server and its clients; zero keeps
// the comparison strict.
func IsExpiredAt(expiresAt, now time.Time, grace time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return now.After(expiresAt.Add(grace))
}
