package security

// Event type constants for security audit logging.
const (
	// EventAuthorizationCodeIssued is logged when a login succeeds and a code is minted
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventTokenIssued is logged when an authorization code is exchanged for tokens
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when a refresh token mints a new access token
	EventTokenRefreshed = "token_refreshed"

	// EventTokenRevoked is logged when a live token is removed by the revocation endpoint
	EventTokenRevoked = "token_revoked"

	// EventAuthFailure is logged when client credentials or a bearer token are rejected
	EventAuthFailure = "auth_failure"

	// EventLoginFailure is logged when an end user submits a wrong username or password
	EventLoginFailure = "login_failure"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"
)
