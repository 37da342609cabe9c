package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/oauth-test-server/credentials"
	"github.com/giantswarm/oauth-test-server/internal/testutil"
	"github.com/giantswarm/oauth-test-server/storage"
	"github.com/giantswarm/oauth-test-server/storage/mock"
)

func TestUserInfo(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	tokens := issueTokens(t, srv)

	info, err := srv.UserInfo(context.Background(), tokens.AccessToken)
	if err != nil {
		t.Fatalf("UserInfo() error = %v", err)
	}

	want := UserInfo{
		Sub:       "1",
		ID:        "1",
		Username:  "testuser",
		Email:     "testuser@example.com",
		Name:      "Test User",
		FirstName: "Test",
		LastName:  "User",
	}
	if *info != want {
		t.Errorf("UserInfo() = %+v, want %+v", *info, want)
	}

	body, err := json.Marshal(info)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(body), "password") {
		t.Errorf("userinfo must not expose the password: %s", body)
	}
	if strings.Contains(string(body), "role") {
		t.Errorf("empty role should be omitted: %s", body)
	}
}

func TestUserInfo_Role(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	ctx := context.Background()

	location, err := srv.Login(ctx, testAuthRequest(), "admin", "admin", testClientIP)
	if err != nil {
		t.Fatal(err)
	}
	code := location[strings.Index(location, "code=")+len("code=") : strings.Index(location, "&state=")]

	tokens, err := srv.Token(ctx, exchangeRequest(code), testClientIP)
	if err != nil {
		t.Fatal(err)
	}

	info, err := srv.UserInfo(ctx, tokens.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if info.Role != "admin" || info.Sub != "3" {
		t.Errorf("UserInfo() = %+v, want admin with sub 3", info)
	}
}

func TestUserInfo_Errors(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	tokens := issueTokens(t, srv)

	tests := []struct {
		name     string
		token    string
		wantDesc string
	}{
		{"empty token", "", "Invalid access token"},
		{"unknown token", "nope", "Invalid access token"},
		{"refresh token", tokens.RefreshToken, "Invalid access token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.UserInfo(context.Background(), tt.token)
			assertOAuthError(t, err, ErrorCodeInvalidToken, tt.wantDesc, 401)
		})
	}
}

func TestUserInfo_Expired(t *testing.T) {
	srv, store, clock := setupTestServer(t)
	ctx := context.Background()
	tokens := issueTokens(t, srv)

	clock.Advance(time.Hour)
	if _, err := srv.UserInfo(ctx, tokens.AccessToken); err != nil {
		t.Fatalf("token should be valid at its expiry instant: %v", err)
	}

	clock.Advance(time.Second)
	_, err := srv.UserInfo(ctx, tokens.AccessToken)
	assertOAuthError(t, err, ErrorCodeInvalidToken, "Access token expired", 401)

	if _, err := store.Get(ctx, storage.KindAccessToken, tokens.AccessToken); !storage.IsNotFound(err) {
		t.Errorf("expired token should be deleted, Get() error = %v", err)
	}

	_, err = srv.UserInfo(ctx, tokens.AccessToken)
	assertOAuthError(t, err, ErrorCodeInvalidToken, "Invalid access token", 401)
}

func TestUserInfo_UserNotFound(t *testing.T) {
	srv, store, _ := setupTestServer(t)
	ctx := context.Background()

	rec := testutil.GenerateTestRecord(testStart, time.Hour)
	rec.UserID = "999"
	testutil.AssertNoError(t, store.Put(ctx, storage.KindAccessToken, "orphan", rec))

	_, err := srv.UserInfo(ctx, "orphan")
	assertOAuthError(t, err, ErrorCodeUserNotFound, "User not found", 404)
}

func TestIntrospect(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	tokens := issueTokens(t, srv)

	result, err := srv.Introspect(context.Background(), tokens.AccessToken)
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}

	want := Introspection{
		Active:    true,
		Scope:     "openid profile",
		ClientID:  testClientID,
		Username:  "testuser",
		TokenType: "Bearer",
		Exp:       testStart.Add(time.Hour).Unix(),
		Sub:       "1",
	}
	if *result != want {
		t.Errorf("Introspect() = %+v, want %+v", *result, want)
	}
}

func TestIntrospect_EmptyScope(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	ctx := context.Background()

	req := testAuthRequest()
	req.Scope = ""
	resp, err := srv.Token(ctx, &TokenRequest{
		GrantType:    "authorization_code",
		Code:         issueCode(t, srv, req),
		RedirectURI:  testRedirectURI,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
	}, testClientIP)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	result, err := srv.Introspect(ctx, resp.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	body, err := json.Marshal(result)
	if err != nil {
		t.Fatal(err)
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		t.Fatal(err)
	}
	scope, ok := fields["scope"]
	if !ok {
		t.Fatalf("active introspection %s lacks the scope key", body)
	}
	if scope != "" {
		t.Errorf("scope = %v, want empty string", scope)
	}
}

func TestIntrospect_Inactive(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	tokens := issueTokens(t, srv)

	for name, token := range map[string]string{
		"unknown":       "nope",
		"refresh token": tokens.RefreshToken,
	} {
		t.Run(name, func(t *testing.T) {
			result, err := srv.Introspect(context.Background(), token)
			if err != nil {
				t.Fatal(err)
			}
			body, _ := json.Marshal(result)
			if string(body) != `{"active":false}` {
				t.Errorf("Introspect() = %s, want only active=false", body)
			}
		})
	}
}

func TestIntrospect_MissingToken(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	_, err := srv.Introspect(context.Background(), "")
	assertOAuthError(t, err, ErrorCodeInvalidRequest, "Token parameter is required", 400)
}

func TestIntrospect_ExpiredThenUserInfo(t *testing.T) {
	srv, store, clock := setupTestServer(t)
	ctx := context.Background()
	tokens := issueTokens(t, srv)

	clock.Advance(time.Hour + time.Second)

	result, err := srv.Introspect(ctx, tokens.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if result.Active {
		t.Error("expired token should be inactive")
	}
	if store.Len(storage.KindAccessToken) != 0 {
		t.Error("introspection should delete the expired token")
	}

	// Already deleted, so userinfo reports an unknown token rather than an expired one.
	_, err = srv.UserInfo(ctx, tokens.AccessToken)
	assertOAuthError(t, err, ErrorCodeInvalidToken, "Invalid access token", 401)
}

func TestRevoke(t *testing.T) {
	srv, store, _ := setupTestServer(t)
	ctx := context.Background()
	tokens := issueTokens(t, srv)

	if err := srv.Revoke(ctx, tokens.AccessToken, testClientIP); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, err := store.Get(ctx, storage.KindAccessToken, tokens.AccessToken); !storage.IsNotFound(err) {
		t.Error("access token should be revoked")
	}
	if _, err := store.Get(ctx, storage.KindRefreshToken, tokens.RefreshToken); err != nil {
		t.Error("revoking the access token must not touch the refresh token")
	}

	if err := srv.Revoke(ctx, tokens.RefreshToken, testClientIP); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	_, err := srv.Token(ctx, refreshRequest(tokens.RefreshToken), testClientIP)
	assertOAuthError(t, err, ErrorCodeInvalidGrant, "Invalid refresh token", 400)
}

func TestRevoke_UnknownAndEmptyTokens(t *testing.T) {
	srv, store, _ := setupTestServer(t)
	tokens := issueTokens(t, srv)

	for _, token := range []string{"", "nope", "nope"} {
		if err := srv.Revoke(context.Background(), token, testClientIP); err != nil {
			t.Errorf("Revoke(%q) error = %v, want nil", token, err)
		}
	}

	if store.Len(storage.KindAccessToken) != 1 || store.Len(storage.KindRefreshToken) != 1 {
		t.Error("revoking unknown tokens must not touch existing ones")
	}
	if _, err := srv.UserInfo(context.Background(), tokens.AccessToken); err != nil {
		t.Errorf("access token should still work: %v", err)
	}
}

func TestRevoke_StorageFailure(t *testing.T) {
	store := mock.NewMockTokenStore()
	srv, err := New(store, credentials.Defaults(), nil, testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	tokens := issueTokens(t, srv)

	store.DeleteFunc = func(ctx context.Context, kind storage.Kind, key string) error {
		return errors.New("read-only")
	}

	err = srv.Revoke(context.Background(), tokens.AccessToken, testClientIP)
	assertOAuthError(t, err, ErrorCodeServerError, "Storage failure", 500)
}
