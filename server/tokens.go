package server

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/oauth-test-server/instrumentation"
	"github.com/giantswarm/oauth-test-server/storage"
)

// UserInfo is the userinfo response: the user's claims plus sub. The password is never included.
type UserInfo struct {
	Sub       string `json:"sub"`
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role,omitempty"`
}

// Introspection is the RFC 7662 response. Inactive tokens carry only active=false;
// an active token always carries scope, even when it is empty.
type Introspection struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope"`
	ClientID  string `json:"client_id,omitempty"`
	Username  string `json:"username,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Sub       string `json:"sub,omitempty"`
}

// MarshalJSON encodes an inactive result as {"active":false} alone
func (i Introspection) MarshalJSON() ([]byte, error) {
	if !i.Active {
		return []byte(`{"active":false}`), nil
	}
	type activeIntrospection Introspection
	return json.Marshal(activeIntrospection(i))
}

// UserInfo resolves a bearer access token to the claims of its user.
// An expired token is deleted as it is rejected. An empty token is an invalid one;
// callers report a missing Authorization header with ErrMissingBearerToken.
func (s *Server) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	ctx, span := s.tracer.Start(ctx, "server.UserInfo")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(ctx, storage.KindAccessToken, accessToken)
	if err != nil {
		return nil, s.storageError(ctx, "get_access_token", err)
	}
	if rec == nil {
		err := ErrInvalidToken("Invalid access token")
		instrumentation.RecordError(span, err)
		return nil, err
	}

	if s.expired(rec, s.now()) {
		s.discard(ctx, storage.KindAccessToken, accessToken)
		err := ErrInvalidToken("Access token expired")
		instrumentation.RecordError(span, err)
		return nil, err
	}

	user, ok := s.credentials.GetUser(rec.UserID)
	if !ok {
		err := ErrUserNotFound()
		instrumentation.RecordError(span, err)
		return nil, err
	}

	instrumentation.AddOAuthFlowAttributes(span, rec.ClientID, user.ID, rec.Scope)
	instrumentation.SetSpanSuccess(span)

	return &UserInfo{
		Sub:       user.ID,
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Name:      user.Name,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
	}, nil
}

// Introspect reports whether an access token is active. Only access tokens are
// considered; refresh tokens introspect as inactive. Expired tokens are deleted.
func (s *Server) Introspect(ctx context.Context, token string) (*Introspection, error) {
	ctx, span := s.tracer.Start(ctx, "server.Introspect")
	defer span.End()

	if token == "" {
		err := ErrInvalidRequest("Token parameter is required")
		instrumentation.RecordError(span, err)
		return nil, err
	}

	result, err := s.introspect(ctx, token)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	instrumentation.SetSpanAttributes(span, attribute.Bool(instrumentation.AttrTokenActive, result.Active))
	instrumentation.SetSpanSuccess(span)
	if s.metrics != nil {
		s.metrics.RecordTokenIntrospection(ctx, result.Active)
	}
	return result, nil
}

func (s *Server) introspect(ctx context.Context, token string) (*Introspection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(ctx, storage.KindAccessToken, token)
	if err != nil {
		return nil, s.storageError(ctx, "get_access_token", err)
	}
	if rec == nil {
		return &Introspection{Active: false}, nil
	}

	if s.expired(rec, s.now()) {
		s.discard(ctx, storage.KindAccessToken, token)
		return &Introspection{Active: false}, nil
	}

	var username string
	if user, ok := s.credentials.GetUser(rec.UserID); ok {
		username = user.Username
	}

	return &Introspection{
		Active:    true,
		Scope:     rec.Scope,
		ClientID:  rec.ClientID,
		Username:  username,
		TokenType: TokenTypeBearer,
		Exp:       rec.ExpiresAt.Unix(),
		Sub:       rec.UserID,
	}, nil
}

// Revoke deletes token from both the access and refresh collections.
// Unknown tokens are not an error, so callers cannot probe for valid tokens.
func (s *Server) Revoke(ctx context.Context, token, clientIP string) error {
	ctx, span := s.tracer.Start(ctx, "server.Revoke")
	defer span.End()

	if token == "" {
		instrumentation.SetSpanSuccess(span)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	revoked := false
	for _, kind := range []storage.Kind{storage.KindAccessToken, storage.KindRefreshToken} {
		rec, err := s.lookup(ctx, kind, token)
		if err != nil {
			instrumentation.RecordError(span, err)
			return s.storageError(ctx, "get_"+string(kind), err)
		}
		if rec == nil {
			continue
		}

		if err := s.tokenStore.Delete(ctx, kind, token); err != nil {
			instrumentation.RecordError(span, err)
			return s.storageError(ctx, "delete_"+string(kind), err)
		}
		revoked = true

		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrTokenKind, string(kind)))
		s.Auditor.LogTokenRevoked(rec.UserID, rec.ClientID, clientIP, string(kind))
		s.log(ctx).Info("Token revoked", "kind", kind, "client_id", rec.ClientID)
	}

	if s.metrics != nil {
		s.metrics.RecordTokenRevocation(ctx, revoked)
	}
	instrumentation.SetSpanSuccess(span)
	return nil
}
