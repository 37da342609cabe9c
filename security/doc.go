// Package security provides the security plumbing shared by the HTTP handler
// and the server: audit logging, per-IP rate limiting, request ids, response
// headers, client IP extraction and expiry checks.
//
// # Audit Logging
//
// The Auditor writes structured slog records for token issuance, refresh,
// revocation and authentication failures. User ids and usernames are hashed
// before they are logged.
//
//	auditor := security.NewAuditor(logger, true)
//	auditor.LogTokenIssued(userID, clientID, clientIP, scope)
//
// # Rate Limiting
//
// The RateLimiter keeps one token bucket per identifier (usually the client IP)
// and evicts the least recently used bucket once the entry limit is reached.
//
//	limiter := security.NewRateLimiter(10, 20, logger)
//	if !limiter.Allow(clientIP) {
//		// reply 429
//	}
//
// # Expiry
//
// IsExpiredAt compares a record's expiry against an explicit clock reading so
// that tests can drive time deterministically.
package security
