package server

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/oauth-test-server/credentials"
	"github.com/giantswarm/oauth-test-server/instrumentation"
	"github.com/giantswarm/oauth-test-server/internal/util"
	"github.com/giantswarm/oauth-test-server/storage"
)

// TokenTypeBearer is the only token type issued
const TokenTypeBearer = "Bearer"

// TokenRequest carries the parameters of a token endpoint request.
// Client credentials come from the body or from HTTP Basic auth.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	RefreshToken string
	ClientID     string
	ClientSecret string
}

// TokenResponse is the token endpoint success body. Scope is always present,
// even when empty; refresh_token only accompanies an authorization_code grant.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}

// Token authenticates the client and dispatches on grant_type
func (s *Server) Token(ctx context.Context, req *TokenRequest, clientIP string) (*TokenResponse, error) {
	ctx, span := s.tracer.Start(ctx, "server.Token")
	defer span.End()
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrGrantType, req.GrantType))

	resp, err := s.token(ctx, req, clientIP)
	if err != nil {
		code := AsOAuthError(err).Code
		instrumentation.RecordError(span, err)
		instrumentation.AddErrorCode(span, code)
		if s.metrics != nil {
			s.metrics.RecordGrantRejected(ctx, req.GrantType, code)
		}
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	return resp, nil
}

func (s *Server) token(ctx context.Context, req *TokenRequest, clientIP string) (*TokenResponse, error) {
	client, err := s.AuthenticateClient(ctx, req.ClientID, req.ClientSecret, clientIP)
	if err != nil {
		return nil, err
	}

	switch req.GrantType {
	case credentials.GrantAuthorizationCode:
		if !client.AllowsGrant(req.GrantType) {
			return nil, ErrUnauthorizedClient("Client is not allowed to use this grant type")
		}
		return s.ExchangeAuthorizationCode(ctx, client, req.Code, req.RedirectURI, clientIP)
	case credentials.GrantRefreshToken:
		if !client.AllowsGrant(req.GrantType) {
			return nil, ErrUnauthorizedClient("Client is not allowed to use this grant type")
		}
		return s.RefreshAccessToken(ctx, client, req.RefreshToken, clientIP)
	default:
		return nil, ErrUnsupportedGrantType("Grant type not supported")
	}
}

// AuthenticateClient returns the client whose id and secret both match
func (s *Server) AuthenticateClient(ctx context.Context, clientID, clientSecret, clientIP string) (*credentials.Client, error) {
	client, ok := s.credentials.AuthenticateClient(clientID, clientSecret)
	if !ok {
		s.log(ctx).Info("Client authentication failed", "client_id", clientID)
		s.Auditor.LogAuthFailure("", clientID, clientIP, ErrorCodeInvalidClient)
		return nil, ErrInvalidClient("Invalid client credentials")
	}
	return client, nil
}

// ExchangeAuthorizationCode redeems a code for an access token and a refresh token.
//
// An expired code is deleted. A client or redirect URI mismatch leaves the code
// in place so that the legitimate client can still redeem it.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, client *credentials.Client, code, redirectURI, clientIP string) (*TokenResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	rec, err := s.lookup(ctx, storage.KindAuthorizationCode, code)
	if err != nil {
		return nil, s.storageError(ctx, "get_authorization_code", err)
	}
	if rec == nil {
		s.Auditor.LogAuthFailure("", client.ID, clientIP, "invalid_authorization_code")
		return nil, ErrInvalidGrant("Invalid authorization code")
	}

	if s.expired(rec, now) {
		s.discard(ctx, storage.KindAuthorizationCode, code)
		s.Auditor.LogAuthFailure(rec.UserID, client.ID, clientIP, "expired_authorization_code")
		return nil, ErrInvalidGrant("Authorization code expired")
	}

	if rec.ClientID != client.ID || rec.RedirectURI != redirectURI {
		s.log(ctx).Warn("Authorization code presented with mismatched client or redirect_uri",
			"client_id", client.ID,
			"code_prefix", util.SafeTruncate(code, tokenIDLogLength))
		s.Auditor.LogAuthFailure(rec.UserID, client.ID, clientIP, "code_binding_mismatch")
		return nil, ErrInvalidGrant("Invalid redirect_uri or client_id")
	}

	accessToken := storage.GenerateKey()
	refreshToken := storage.GenerateKey()

	access := &storage.Record{
		ClientID:  rec.ClientID,
		UserID:    rec.UserID,
		Scope:     rec.Scope,
		ExpiresAt: now.Add(s.Config.AccessTokenLifetime()),
	}
	refresh := &storage.Record{
		ClientID:  rec.ClientID,
		UserID:    rec.UserID,
		Scope:     rec.Scope,
		ExpiresAt: now.Add(s.Config.RefreshTokenLifetime()),
	}

	if err := s.tokenStore.Put(ctx, storage.KindAccessToken, accessToken, access); err != nil {
		return nil, s.storageError(ctx, "save_access_token", err)
	}
	if err := s.tokenStore.Put(ctx, storage.KindRefreshToken, refreshToken, refresh); err != nil {
		s.discard(ctx, storage.KindAccessToken, accessToken)
		return nil, s.storageError(ctx, "save_refresh_token", err)
	}
	if err := s.tokenStore.Delete(ctx, storage.KindAuthorizationCode, code); err != nil {
		// The code must not remain redeemable alongside the tokens it produced.
		s.discard(ctx, storage.KindAccessToken, accessToken)
		s.discard(ctx, storage.KindRefreshToken, refreshToken)
		return nil, s.storageError(ctx, "delete_authorization_code", err)
	}

	s.log(ctx).Info("Authorization code exchanged",
		"client_id", client.ID,
		"user_id", rec.UserID,
		"access_token_prefix", util.SafeTruncate(accessToken, tokenIDLogLength))
	s.Auditor.LogTokenIssued(rec.UserID, client.ID, clientIP, rec.Scope)
	if s.metrics != nil {
		s.metrics.RecordCodeExchange(ctx, client.ID)
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    s.Config.AccessTokenTTL,
		RefreshToken: refreshToken,
		Scope:        rec.Scope,
	}, nil
}

// RefreshAccessToken mints a new access token from a refresh token.
// The refresh token itself is not rotated and keeps its original expiry.
func (s *Server) RefreshAccessToken(ctx context.Context, client *credentials.Client, refreshToken, clientIP string) (*TokenResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	rec, err := s.lookup(ctx, storage.KindRefreshToken, refreshToken)
	if err != nil {
		return nil, s.storageError(ctx, "get_refresh_token", err)
	}
	if rec == nil {
		s.Auditor.LogAuthFailure("", client.ID, clientIP, "invalid_refresh_token")
		return nil, ErrInvalidGrant("Invalid refresh token")
	}

	if s.expired(rec, now) {
		s.discard(ctx, storage.KindRefreshToken, refreshToken)
		s.Auditor.LogAuthFailure(rec.UserID, client.ID, clientIP, "expired_refresh_token")
		return nil, ErrInvalidGrant("Refresh token expired")
	}

	if rec.ClientID != client.ID {
		s.Auditor.LogAuthFailure(rec.UserID, client.ID, clientIP, "refresh_token_client_mismatch")
		return nil, ErrInvalidGrant("Invalid client_id")
	}

	accessToken := storage.GenerateKey()
	if err := s.tokenStore.Put(ctx, storage.KindAccessToken, accessToken, &storage.Record{
		ClientID:  rec.ClientID,
		UserID:    rec.UserID,
		Scope:     rec.Scope,
		ExpiresAt: now.Add(s.Config.AccessTokenLifetime()),
	}); err != nil {
		return nil, s.storageError(ctx, "save_access_token", err)
	}

	s.log(ctx).Info("Access token refreshed",
		"client_id", client.ID,
		"user_id", rec.UserID,
		"access_token_prefix", util.SafeTruncate(accessToken, tokenIDLogLength))
	s.Auditor.LogTokenRefreshed(rec.UserID, client.ID, clientIP)
	if s.metrics != nil {
		s.metrics.RecordTokenRefresh(ctx, client.ID)
	}

	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   s.Config.AccessTokenTTL,
		Scope:       rec.Scope,
	}, nil
}
