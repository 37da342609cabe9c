package server

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeInvalidToken            = "invalid_token"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeUserNotFound            = "user_not_found"
	ErrorCodeRateLimitExceeded       = "rate_limit_exceeded"
	ErrorCodeServerError             = "server_error"
)

// OAuthError represents an OAuth 2.0 error response
type OAuthError struct {
	Code        string // OAuth error code (e.g., "invalid_request", "invalid_grant")
	Description string // Human-readable error description
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewOAuthError creates a new OAuth error
func NewOAuthError(code, description string, status int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// ErrInvalidRequest indicates the request is malformed or missing required parameters
func ErrInvalidRequest(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
}

// ErrInvalidClient indicates client authentication failed
func ErrInvalidClient(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidClient, desc, http.StatusUnauthorized)
}

// ErrClientNotFound is returned by the authorization endpoint for an unknown client_id.
// It is a 400 because no client authentication was attempted.
func ErrClientNotFound() *OAuthError {
	return NewOAuthError(ErrorCodeInvalidClient, "Client not found", http.StatusBadRequest)
}

// ErrInvalidGrant indicates the authorization code or refresh token is invalid or expired
func ErrInvalidGrant(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidGrant, desc, http.StatusBadRequest)
}

// ErrInvalidToken indicates the access token is missing, unknown or expired
func ErrInvalidToken(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidToken, desc, http.StatusUnauthorized)
}

// ErrUnauthorizedClient indicates the client is not allowed to use the requested grant
func ErrUnauthorizedClient(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeUnauthorizedClient, desc, http.StatusBadRequest)
}

// ErrUnsupportedGrantType indicates the grant type is not supported
func ErrUnsupportedGrantType(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeUnsupportedGrantType, desc, http.StatusBadRequest)
}

// ErrUnsupportedResponseType indicates a response_type other than "code"
func ErrUnsupportedResponseType(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeUnsupportedResponseType, desc, http.StatusBadRequest)
}

// ErrLoginFailed indicates the end user's username or password was wrong.
// The description deliberately does not say which.
func ErrLoginFailed() *OAuthError {
	return NewOAuthError(ErrorCodeAccessDenied, "Invalid username or password", http.StatusUnauthorized)
}

// ErrMissingBearerToken indicates a protected resource request without a Bearer authorization header
func ErrMissingBearerToken() *OAuthError {
	return ErrInvalidToken("Missing or invalid authorization header")
}

// ErrUserNotFound indicates a token refers to a user missing from the credential store
func ErrUserNotFound() *OAuthError {
	return NewOAuthError(ErrorCodeUserNotFound, "User not found", http.StatusNotFound)
}

// ErrRateLimitExceeded indicates the caller sent too many requests
func ErrRateLimitExceeded() *OAuthError {
	return NewOAuthError(ErrorCodeRateLimitExceeded, "Too many requests", http.StatusTooManyRequests)
}

// ErrServerError indicates an internal failure such as a storage error
func ErrServerError(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeServerError, desc, http.StatusInternalServerError)
}

// AsOAuthError returns err as an *OAuthError, mapping anything else to server_error.
// The original error text is not exposed to clients.
func AsOAuthError(err error) *OAuthError {
	if err == nil {
		return nil
	}
	var oauthErr *OAuthError
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return ErrServerError("Internal server error")
}

// IsLoginFailure reports whether err is a rejected end-user login
func IsLoginFailure(err error) bool {
	var oauthErr *OAuthError
	return errors.As(err, &oauthErr) && oauthErr.Code == ErrorCodeAccessDenied
}
