package oauth

import (
	"strings"
	"time"
)

// Endpoint paths served by the Handler
const (
	PathAuthorize        = "/oauth/authorize"
	PathLogin            = "/login"
	PathLoginSubmit      = "/authorize"
	PathToken            = "/oauth/token"
	PathUserInfo         = "/oauth/userinfo"
	PathIntrospect       = "/oauth/introspect"
	PathRevoke           = "/oauth/revoke"
	PathAuthServerConfig = "/.well-known/oauth-authorization-server"
	PathOpenIDConfig     = "/.well-known/openid-configuration"
	PathHealth           = "/health"
	PathMetrics          = "/metrics"
)

var (
	supportedScopes         = []string{"openid", "profile", "email"}
	supportedResponseTypes  = []string{"code"}
	supportedGrantTypes     = []string{"authorization_code", "refresh_token"}
	supportedAuthMethods    = []string{"client_secret_post", "client_secret_basic"}
	supportedClaims         = []string{"sub", "name", "email", "username"}
	supportedSubjectTypes   = []string{"public"}
	supportedIDTokenSigning = []string{"none"}
)

// AuthorizationServerMetadata represents OAuth 2.0 Authorization Server Metadata (RFC 8414)
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserInfoEndpoint                  string   `json:"userinfo_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
}

// OpenIDConfiguration represents an OpenID Connect Discovery 1.0 document.
// No ID tokens are issued, hence the "none" signing algorithm.
type OpenIDConfiguration struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserInfoEndpoint                  string   `json:"userinfo_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
}

// NewAuthorizationServerMetadata builds the RFC 8414 document for issuer
func NewAuthorizationServerMetadata(issuer string) *AuthorizationServerMetadata {
	base := strings.TrimSuffix(issuer, "/")
	return &AuthorizationServerMetadata{
		Issuer:                            base,
		AuthorizationEndpoint:             base + PathAuthorize,
		TokenEndpoint:                     base + PathToken,
		UserInfoEndpoint:                  base + PathUserInfo,
		IntrospectionEndpoint:             base + PathIntrospect,
		RevocationEndpoint:                base + PathRevoke,
		ResponseTypesSupported:            supportedResponseTypes,
		GrantTypesSupported:               supportedGrantTypes,
		TokenEndpointAuthMethodsSupported: supportedAuthMethods,
		ScopesSupported:                   supportedScopes,
	}
}

// NewOpenIDConfiguration builds the OIDC discovery document for issuer
func NewOpenIDConfiguration(issuer string) *OpenIDConfiguration {
	base := strings.TrimSuffix(issuer, "/")
	return &OpenIDConfiguration{
		Issuer:                            base,
		AuthorizationEndpoint:             base + PathAuthorize,
		TokenEndpoint:                     base + PathToken,
		UserInfoEndpoint:                  base + PathUserInfo,
		IntrospectionEndpoint:             base + PathIntrospect,
		RevocationEndpoint:                base + PathRevoke,
		ResponseTypesSupported:            supportedResponseTypes,
		SubjectTypesSupported:             supportedSubjectTypes,
		IDTokenSigningAlgValuesSupported:  supportedIDTokenSigning,
		ScopesSupported:                   supportedScopes,
		TokenEndpointAuthMethodsSupported: supportedAuthMethods,
		ClaimsSupported:                   supportedClaims,
	}
}

// Health status values
const (
	HealthStatusOK          = "ok"
	HealthStatusUnavailable = "unavailable"
)

// HealthResponse is the /health body
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

func newHealthResponse(status string, now time.Time) *HealthResponse {
	return &HealthResponse{
		Status:    status,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}
