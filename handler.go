package oauth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/oauth-test-server/instrumentation"
	"github.com/giantswarm/oauth-test-server/security"
	"github.com/giantswarm/oauth-test-server/server"
	"github.com/giantswarm/oauth-test-server/storage"
)

const (
	// maxBodyBytes bounds form and JSON request bodies
	maxBodyBytes = 1 << 20

	bearerPrefix = "Bearer "
)

// Handler is a thin HTTP adapter for the OAuth Server.
// It handles HTTP requests and delegates to the Server for business logic.
type Handler struct {
	server *server.Server
	logger *slog.Logger
	tracer trace.Tracer // OpenTelemetry tracer for HTTP layer
	now    func() time.Time
}

// NewHandler creates a new HTTP handler
func NewHandler(srv *server.Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server: srv,
		logger: logger,
		tracer: noop.NewTracerProvider().Tracer(""),
		now:    time.Now,
	}

	if srv.Instrumentation != nil {
		h.tracer = srv.Instrumentation.Tracer("http")
	}

	return h
}

// observe wraps an endpoint with a span and the HTTP request metrics
func (h *Handler) observe(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx, span := h.tracer.Start(r.Context(), "oauth.http."+endpoint)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		instrumentation.AddHTTPAttributes(span, r.Method, endpoint, status)
		if inst := h.server.Instrumentation; inst != nil && inst.ShouldLogClientIPs() {
			instrumentation.AddSecurityAttributes(span, h.clientIP(r))
		}
		if status >= http.StatusInternalServerError {
			instrumentation.SetSpanError(span, http.StatusText(status))
		}

		if inst := h.server.Instrumentation; inst != nil {
			inst.Metrics().RecordHTTPRequest(ctx, r.Method, endpoint, status, float64(time.Since(start).Microseconds())/1000)
		}
	}
}

// ServeAuthorization validates an authorization request and redirects to the login page
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	req := authorizationRequestFrom(r.URL.Query())

	location, err := h.server.StartAuthorization(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	http.Redirect(w, r, location, http.StatusFound)
}

// ServeLogin renders the login form for a valid authorization request
func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	req := authorizationRequestFrom(r.URL.Query())

	if _, err := h.server.ValidateAuthorizationRequest(r.Context(), req); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.renderPage(w, r, "login.html", http.StatusOK, loginPageData{
		Request: req,
		Users:   userHints(h.server.Credentials().Users()),
	})
}

// ServeLoginSubmit authenticates the login form and redirects to the client with a code
func (h *Handler) ServeLoginSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientIP := h.clientIP(r)

	if !h.server.AllowRequest(ctx, clientIP, PathLoginSubmit) {
		h.writeError(w, r, server.ErrRateLimitExceeded())
		return
	}

	params, err := parseRequestParams(w, r)
	if err != nil {
		h.writeError(w, r, server.ErrInvalidRequest("Failed to parse request"))
		return
	}
	req := authorizationRequestFrom(params)

	location, err := h.server.Login(ctx, req, params.Get("username"), params.Get("password"), clientIP)
	if server.IsLoginFailure(err) {
		h.renderPage(w, r, "login_error.html", http.StatusUnauthorized, loginErrorPageData{
			Message:  server.AsOAuthError(err).Description,
			RetryURL: PathLogin + "?" + req.Query().Encode(),
		})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	http.Redirect(w, r, location, http.StatusFound)
}

// ServeToken handles the OAuth token endpoint
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientIP := h.clientIP(r)

	if !h.server.AllowRequest(ctx, clientIP, PathToken) {
		h.writeError(w, r, server.ErrRateLimitExceeded())
		return
	}

	params, err := parseRequestParams(w, r)
	if err != nil {
		h.writeError(w, r, server.ErrInvalidRequest("Failed to parse request"))
		return
	}

	req := &server.TokenRequest{
		GrantType:    params.Get("grant_type"),
		Code:         params.Get("code"),
		RedirectURI:  params.Get("redirect_uri"),
		RefreshToken: params.Get("refresh_token"),
		ClientID:     params.Get("client_id"),
		ClientSecret: params.Get("client_secret"),
	}

	// client_secret_basic takes precedence over client_secret_post
	if id, secret, ok := parseBasicAuth(r); ok {
		req.ClientID = id
		req.ClientSecret = secret
	}

	resp, err := h.server.Token(ctx, req, clientIP)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ServeUserInfo returns the claims of the user owning the bearer token
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	token, ok := extractBearerToken(r)
	if !ok {
		h.writeError(w, r, server.ErrMissingBearerToken())
		return
	}

	info, err := h.server.UserInfo(r.Context(), token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, info)
}

// ServeTokenIntrospection handles the RFC 7662 token introspection endpoint
func (h *Handler) ServeTokenIntrospection(w http.ResponseWriter, r *http.Request) {
	params, err := parseRequestParams(w, r)
	if err != nil {
		h.writeError(w, r, server.ErrInvalidRequest("Failed to parse request"))
		return
	}

	result, err := h.server.Introspect(r.Context(), params.Get("token"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// ServeTokenRevocation handles the RFC 7009 token revocation endpoint
func (h *Handler) ServeTokenRevocation(w http.ResponseWriter, r *http.Request) {
	clientIP := h.clientIP(r)

	// Per RFC 7009, an unparseable request or unknown token still gets 200
	logger := h.requestLogger(r)
	params, err := parseRequestParams(w, r)
	if err != nil {
		logger.Debug("Failed to parse revocation request", "error", err)
	}

	if err := h.server.Revoke(r.Context(), params.Get("token"), clientIP); err != nil {
		logger.Error("Failed to revoke token", "ip", clientIP, "error", err)
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.WriteHeader(http.StatusOK)
}

// ServeAuthorizationServerMetadata serves the RFC 8414 discovery document
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, NewAuthorizationServerMetadata(h.server.Config.Issuer))
}

// ServeOpenIDConfiguration serves the OpenID Connect discovery document
func (h *Handler) ServeOpenIDConfiguration(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, NewOpenIDConfiguration(h.server.Config.Issuer))
}

// ServeHealth reports liveness. Networked token stores are pinged; a failed ping is a 503.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	if pinger, ok := h.server.TokenStore().(storage.Pinger); ok {
		if err := pinger.Ping(r.Context()); err != nil {
			h.requestLogger(r).Warn("Health check failed", "error", err)
			resp := newHealthResponse(HealthStatusUnavailable, h.now())
			resp.Error = "token store unreachable"
			h.writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	h.writeJSON(w, http.StatusOK, newHealthResponse(HealthStatusOK, h.now()))
}

// ServeHome renders the info page listing endpoints and fixture credentials
func (h *Handler) ServeHome(w http.ResponseWriter, r *http.Request) {
	base := strings.TrimSuffix(h.server.Config.Issuer, "/")
	creds := h.server.Credentials()

	quickStart := url.Values{}
	quickStart.Set("response_type", "code")
	quickStart.Set("state", "xyz")
	if clients := creds.Clients(); len(clients) > 0 {
		quickStart.Set("client_id", clients[0].ID)
	}

	h.renderPage(w, r, "home.html", http.StatusOK, homePageData{
		Endpoints: []endpointInfo{
			{Name: "Authorization", URL: base + PathAuthorize},
			{Name: "Token", URL: base + PathToken},
			{Name: "UserInfo", URL: base + PathUserInfo},
			{Name: "Introspection", URL: base + PathIntrospect},
			{Name: "Revocation", URL: base + PathRevoke},
			{Name: "Discovery", URL: base + PathAuthServerConfig},
		},
		Clients:       clientHints(creds.Clients()),
		Users:         userHints(creds.Users()),
		QuickStartURL: base + PathAuthorize + "?" + quickStart.Encode() + "&redirect_uri=YOUR_CALLBACK_URL",
	})
}

// Helper methods

func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
}

// requestLogger returns the handler logger tagged with the request id, if any
func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return security.LoggerWithRequestID(r.Context(), h.logger)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug("Failed to write response", "error", err)
	}
}

// writeError renders err as {error, error_description}. A 401 carries a
// WWW-Authenticate challenge: Basic for client authentication, Bearer otherwise.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body, status := newErrorResponse(err)

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", formatWWWAuthenticate(body))
	}
	if status >= http.StatusInternalServerError {
		h.requestLogger(r).Error("Request failed", "error", err)
	}

	h.writeJSON(w, status, body)
}

func formatWWWAuthenticate(body *ErrorResponse) string {
	scheme := "Bearer"
	if body.Error == ErrorCodeInvalidClient {
		scheme = "Basic"
	}

	challenge := fmt.Sprintf(`%s realm="oauth-test-server", error=%q`, scheme, body.Error)
	if body.ErrorDescription != "" {
		challenge += fmt.Sprintf(`, error_description=%q`, body.ErrorDescription)
	}
	return challenge
}

func authorizationRequestFrom(values url.Values) *server.AuthorizationRequest {
	return &server.AuthorizationRequest{
		ClientID:     values.Get("client_id"),
		RedirectURI:  values.Get("redirect_uri"),
		ResponseType: values.Get("response_type"),
		State:        values.Get("state"),
		Scope:        values.Get("scope"),
	}
}

// parseRequestParams reads a form-encoded or JSON request body. Non-string
// JSON values are rendered with fmt so that numbers and booleans survive.
// The returned values are never nil.
func parseRequestParams(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		if err := r.ParseForm(); err != nil {
			return url.Values{}, err
		}
		return r.PostForm, nil
	}

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return url.Values{}, fmt.Errorf("invalid JSON body: %w", err)
	}

	values := make(url.Values, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
		case string:
			values.Set(key, v)
		default:
			values.Set(key, fmt.Sprint(v))
		}
	}
	return values, nil
}

// parseBasicAuth returns client credentials from an HTTP Basic header.
// Per RFC 6749 section 2.3.1 both parts are form-urlencoded before encoding.
func parseBasicAuth(r *http.Request) (clientID, clientSecret string, ok bool) {
	clientID, clientSecret, ok = r.BasicAuth()
	if !ok {
		return "", "", false
	}
	if id, err := url.QueryUnescape(clientID); err == nil {
		clientID = id
	}
	if secret, err := url.QueryUnescape(clientSecret); err == nil {
		clientSecret = secret
	}
	return clientID, clientSecret, true
}

// extractBearerToken returns the token from an "Authorization: Bearer <token>" header.
// ok is false when the header is missing or uses another scheme; a Bearer header with
// nothing after it yields ("", true).
func extractBearerToken(r *http.Request) (token string, ok bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(bearerPrefix):]), true
}

// serveNotFound answers unknown routes with a JSON error rather than chi's plain text
func (h *Handler) serveNotFound(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusNotFound, &ErrorResponse{Error: "not_found", ErrorDescription: "Not found"})
}
