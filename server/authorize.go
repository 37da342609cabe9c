package server

import (
	"context"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/oauth-test-server/credentials"
	"github.com/giantswarm/oauth-test-server/instrumentation"
	"github.com/giantswarm/oauth-test-server/internal/util"
	"github.com/giantswarm/oauth-test-server/storage"
)

// ResponseTypeCode is the only supported response_type
const ResponseTypeCode = "code"

// AuthorizationRequest carries the parameters of an authorization request.
// They travel unchanged from /oauth/authorize through the login form.
type AuthorizationRequest struct {
	ClientID     string
	RedirectURI  string
	ResponseType string
	State        string
	Scope        string
}

// Query encodes the request as URL query parameters, omitting empty values
func (r *AuthorizationRequest) Query() url.Values {
	q := url.Values{}
	for name, value := range map[string]string{
		"client_id":     r.ClientID,
		"redirect_uri":  r.RedirectURI,
		"response_type": r.ResponseType,
		"state":         r.State,
		"scope":         r.Scope,
	} {
		if value != "" {
			q.Set(name, value)
		}
	}
	return q
}

// ValidateAuthorizationRequest checks an authorization request in order:
// required parameters, client, redirect URI, then response type.
func (s *Server) ValidateAuthorizationRequest(ctx context.Context, req *AuthorizationRequest) (*credentials.Client, error) {
	_, span := s.tracer.Start(ctx, "server.ValidateAuthorizationRequest")
	defer span.End()
	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, "", req.Scope)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrResponseType, req.ResponseType))

	client, err := s.validateAuthorizationRequest(req)
	if err != nil {
		instrumentation.RecordError(span, err)
		instrumentation.AddErrorCode(span, AsOAuthError(err).Code)
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	return client, nil
}

func (s *Server) validateAuthorizationRequest(req *AuthorizationRequest) (*credentials.Client, error) {
	if req.ClientID == "" || req.RedirectURI == "" || req.ResponseType == "" {
		return nil, ErrInvalidRequest("Missing required parameters")
	}

	client, ok := s.credentials.GetClient(req.ClientID)
	if !ok {
		return nil, ErrClientNotFound()
	}

	if !client.ValidRedirectURI(req.RedirectURI) {
		return nil, ErrInvalidRequest("Invalid redirect_uri")
	}

	if req.ResponseType != ResponseTypeCode {
		return nil, ErrUnsupportedResponseType("Only authorization_code flow is supported")
	}

	return client, nil
}

// StartAuthorization validates the request and returns the login page location
// carrying the same parameters.
func (s *Server) StartAuthorization(ctx context.Context, req *AuthorizationRequest) (string, error) {
	if _, err := s.ValidateAuthorizationRequest(ctx, req); err != nil {
		return "", err
	}

	if s.metrics != nil {
		s.metrics.RecordAuthorizationStarted(ctx, req.ClientID)
	}
	return "/login?" + req.Query().Encode(), nil
}

// Login authenticates the end user and, on success, mints an authorization code
// and returns the client redirect URL carrying it.
//
// The request is validated again because the login form fields are client-controlled.
// A wrong username or password returns an error for which IsLoginFailure is true.
func (s *Server) Login(ctx context.Context, req *AuthorizationRequest, username, password, clientIP string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "server.Login")
	defer span.End()
	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, "", req.Scope)

	client, err := s.validateAuthorizationRequest(req)
	if err != nil {
		instrumentation.RecordError(span, err)
		return "", err
	}

	user, ok := s.credentials.AuthenticateUser(username, password)
	if !ok {
		s.log(ctx).Info("Login failed", "client_id", client.ID)
		s.Auditor.LogLoginFailure(username, client.ID, clientIP)
		if s.metrics != nil {
			s.metrics.RecordLoginFailed(ctx, client.ID)
		}
		err := ErrLoginFailed()
		instrumentation.RecordError(span, err)
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	// Opportunistic cleanup. A failed sweep never blocks a login.
	if removed, err := s.tokenStore.Sweep(ctx, now.Add(-s.Config.GracePeriod())); err != nil {
		s.log(ctx).Warn("Failed to sweep expired records", "error", err)
	} else if removed > 0 {
		s.log(ctx).Debug("Swept expired records", "removed", removed)
	}

	code := storage.GenerateKey()
	if err := s.tokenStore.Put(ctx, storage.KindAuthorizationCode, code, &storage.Record{
		ClientID:    client.ID,
		RedirectURI: req.RedirectURI,
		UserID:      user.ID,
		Scope:       req.Scope,
		ExpiresAt:   now.Add(s.Config.AuthorizationCodeLifetime()),
	}); err != nil {
		instrumentation.RecordError(span, err)
		return "", s.storageError(ctx, "save_authorization_code", err)
	}

	s.log(ctx).Info("Authorization code issued",
		"client_id", client.ID,
		"user_id", user.ID,
		"code_prefix", util.SafeTruncate(code, tokenIDLogLength))
	s.Auditor.LogAuthorizationCodeIssued(user.ID, client.ID, clientIP, req.Scope)
	if s.metrics != nil {
		s.metrics.RecordCodeIssued(ctx, client.ID)
	}
	instrumentation.AddOAuthFlowAttributes(span, "", user.ID, "")
	instrumentation.SetSpanSuccess(span)

	return buildRedirect(req.RedirectURI, code, req.State), nil
}

// buildRedirect appends code and, when present, state to the registered redirect URI.
// The URI is used verbatim; "?" or "&" is chosen by whether it already has a query.
func buildRedirect(redirectURI, code, state string) string {
	sep := "?"
	if strings.Contains(redirectURI, "?") {
		sep = "&"
	}

	var b strings.Builder
	b.WriteString(redirectURI)
	b.WriteString(sep)
	b.WriteString("code=")
	b.WriteString(url.QueryEscape(code))
	if state != "" {
		b.WriteString("&state=")
		b.WriteString(url.QueryEscape(state))
	}
	return b.String()
}
