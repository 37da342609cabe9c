package oauth

import "github.com/giantswarm/oauth-test-server/server"

// OAuthError is the error type returned by every server operation
type OAuthError = server.OAuthError

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest          = server.ErrorCodeInvalidRequest
	ErrorCodeInvalidClient           = server.ErrorCodeInvalidClient
	ErrorCodeInvalidGrant            = server.ErrorCodeInvalidGrant
	ErrorCodeInvalidToken            = server.ErrorCodeInvalidToken
	ErrorCodeUnauthorizedClient      = server.ErrorCodeUnauthorizedClient
	ErrorCodeUnsupportedGrantType    = server.ErrorCodeUnsupportedGrantType
	ErrorCodeUnsupportedResponseType = server.ErrorCodeUnsupportedResponseType
	ErrorCodeAccessDenied            = server.ErrorCodeAccessDenied
	ErrorCodeUserNotFound            = server.ErrorCodeUserNotFound
	ErrorCodeRateLimitExceeded       = server.ErrorCodeRateLimitExceeded
	ErrorCodeServerError             = server.ErrorCodeServerError
)

// ErrorResponse is the JSON body of every error response
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// newErrorResponse converts err to its wire form. Non-OAuth errors become server_error.
func newErrorResponse(err error) (*ErrorResponse, int) {
	oauthErr := server.AsOAuthError(err)
	return &ErrorResponse{
		Error:            oauthErr.Code,
		ErrorDescription: oauthErr.Description,
	}, oauthErr.Status
}
