package oauth

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/giantswarm/oauth-test-server/security"
)

// Routes returns a router with every endpoint registered. Callers may mount
// further routes, such as /metrics, on the returned router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(security.RequestIDMiddleware)

	h.OAuthRoutes(r)
	h.WellKnownRoutes(r)

	r.Get(PathHealth, h.observe("health", h.ServeHealth))
	r.Get("/", h.observe("home", h.ServeHome))
	r.NotFound(h.serveNotFound)

	return r
}

// OAuthRoutes registers the authorization, login, token and token-management endpoints
func (h *Handler) OAuthRoutes(r chi.Router) {
	r.Get(PathAuthorize, h.observe("authorize", h.ServeAuthorization))
	r.Get(PathLogin, h.observe("login", h.ServeLogin))
	r.Post(PathLoginSubmit, h.observe("login_submit", h.ServeLoginSubmit))
	r.Post(PathToken, h.observe("token", h.ServeToken))
	r.Get(PathUserInfo, h.observe("userinfo", h.ServeUserInfo))
	r.Post(PathIntrospect, h.observe("introspect", h.ServeTokenIntrospection))
	r.Post(PathRevoke, h.observe("revoke", h.ServeTokenRevocation))
}

// WellKnownRoutes registers both discovery documents. They are identical apart
// from the OIDC-only fields, so OAuth-only and OIDC clients both work.
func (h *Handler) WellKnownRoutes(r chi.Router) {
	r.Get(PathAuthServerConfig, h.observe("discovery", h.ServeAuthorizationServerMetadata))
	r.Get(PathOpenIDConfig, h.observe("openid_configuration", h.ServeOpenIDConfiguration))
}
