package server

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/oauth-test-server/credentials"
	"github.com/giantswarm/oauth-test-server/internal/testutil"
	"github.com/giantswarm/oauth-test-server/security"
	"github.com/giantswarm/oauth-test-server/storage/memory"
)

const (
	testClientID     = "test-client"
	testClientSecret = "test-secret"
	testRedirectURI  = "http://localhost:8080/callback"
	testClientIP     = "127.0.0.1"
)

var testStart = time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)

func setupTestServer(t *testing.T) (*Server, *memory.Store, *testutil.MockTime) {
	t.Helper()

	store := memory.New()
	store.SetLogger(testutil.DiscardLogger())

	srv, err := New(store, credentials.Defaults(), &Config{
		Issuer:     "http://localhost:3000",
		ListenHost: "localhost",
	}, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	clock := testutil.NewMockTime(testStart)
	srv.SetClock(clock.Now)
	return srv, store, clock
}

func testAuthRequest() *AuthorizationRequest {
	return &AuthorizationRequest{
		ClientID:     testClientID,
		RedirectURI:  testRedirectURI,
		ResponseType: ResponseTypeCode,
		State:        "xyz",
		Scope:        "openid profile",
	}
}

// issueCode logs in as testuser and returns the minted code
func issueCode(t *testing.T, srv *Server, req *AuthorizationRequest) string {
	t.Helper()

	location, err := srv.Login(context.Background(), req, "testuser", "password", testClientIP)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	u, err := url.Parse(location)
	if err != nil {
		t.Fatalf("redirect %q is not a URL: %v", location, err)
	}
	code := u.Query().Get("code")
	if code == "" {
		t.Fatalf("redirect %q carries no code", location)
	}
	return code
}

// issueTokens runs the full login and code exchange for test-client
func issueTokens(t *testing.T, srv *Server) *TokenResponse {
	t.Helper()

	code := issueCode(t, srv, testAuthRequest())
	resp, err := srv.Token(context.Background(), &TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  testRedirectURI,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
	}, testClientIP)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	return resp
}

func assertOAuthError(t *testing.T, err error, code, description string, status int) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	oauthErr, ok := err.(*OAuthError)
	if !ok {
		t.Fatalf("error %v (%T) is not an *OAuthError", err, err)
	}
	if oauthErr.Code != code {
		t.Errorf("Code = %q, want %q", oauthErr.Code, code)
	}
	if description != "" && oauthErr.Description != description {
		t.Errorf("Description = %q, want %q", oauthErr.Description, description)
	}
	if oauthErr.Status != status {
		t.Errorf("Status = %d, want %d", oauthErr.Status, status)
	}
}

func TestNew(t *testing.T) {
	store := memory.New()
	creds := credentials.Defaults()

	tests := []struct {
		name    string
		store   *memory.Store
		creds   *credentials.Store
		wantErr string
	}{
		{name: "valid", store: store, creds: creds},
		{name: "nil store", store: nil, creds: creds, wantErr: "token store is required"},
		{name: "nil credentials", store: store, creds: nil, wantErr: "credential store is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.store == nil {
				_, err = New(nil, tt.creds, nil, nil)
			} else {
				_, err = New(tt.store, tt.creds, nil, nil)
			}

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("New() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	srv, err := New(memory.New(), credentials.Defaults(), nil, testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}

	if srv.Config.AuthorizationCodeTTL != 600 {
		t.Errorf("AuthorizationCodeTTL = %d, want 600", srv.Config.AuthorizationCodeTTL)
	}
	if srv.Config.AccessTokenTTL != 3600 {
		t.Errorf("AccessTokenTTL = %d, want 3600", srv.Config.AccessTokenTTL)
	}
	if srv.Config.RefreshTokenTTL != 86400 {
		t.Errorf("RefreshTokenTTL = %d, want 86400", srv.Config.RefreshTokenTTL)
	}
	if srv.Logger == nil {
		t.Error("Logger should default to slog.Default()")
	}
	if srv.RateLimiter != nil {
		t.Error("RateLimiter should be nil when RateLimit is 0")
	}
}

func TestNew_RateLimiter(t *testing.T) {
	srv, err := New(memory.New(), credentials.Defaults(), &Config{RateLimit: 1, RateLimitBurst: 2}, testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if srv.RateLimiter == nil {
		t.Fatal("RateLimiter should be created when RateLimit > 0")
	}

	ctx := context.Background()
	if !srv.AllowRequest(ctx, "10.0.0.1", "/oauth/token") || !srv.AllowRequest(ctx, "10.0.0.1", "/oauth/token") {
		t.Error("requests within burst should be allowed")
	}
	if srv.AllowRequest(ctx, "10.0.0.1", "/oauth/token") {
		t.Error("request beyond burst should be rejected")
	}
	if !srv.AllowRequest(ctx, "10.0.0.2", "/oauth/token") {
		t.Error("other IPs should have their own bucket")
	}
}

func TestAllowRequest_DropsIdleIdentifiers(t *testing.T) {
	srv, err := New(memory.New(), credentials.Defaults(), &Config{RateLimit: 1, RateLimitBurst: 1}, testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	clock := testutil.NewMockTime(testStart)
	srv.SetClock(clock.Now)

	ctx := context.Background()
	srv.AllowRequest(ctx, "10.0.0.1", "/oauth/token")
	srv.AllowRequest(ctx, "10.0.0.2", "/oauth/token")
	if got := srv.RateLimiter.Len(); got != 2 {
		t.Fatalf("tracked identifiers = %d, want 2", got)
	}

	clock.Advance(security.DefaultIdleTimeout + time.Minute)
	if !srv.AllowRequest(ctx, "10.0.0.3", "/oauth/token") {
		t.Error("first request from a new IP should be allowed")
	}
	if got := srv.RateLimiter.Len(); got != 1 {
		t.Errorf("tracked identifiers after idle timeout = %d, want 1", got)
	}
}

func TestServer_LogsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	srv, err := New(memory.New(), credentials.Defaults(), &Config{
		Issuer:     "http://localhost:3000",
		ListenHost: "localhost",
	}, logger)
	if err != nil {
		t.Fatal(err)
	}
	buf.Reset()

	ctx := security.WithRequestID(context.Background(), "req-abc123")
	if _, err := srv.Login(ctx, testAuthRequest(), "testuser", "wrong", testClientIP); err == nil {
		t.Fatal("Login() with a wrong password should fail")
	}
	if !strings.Contains(buf.String(), `"request_id":"req-abc123"`) {
		t.Errorf("log output lacks the request id: %s", buf.String())
	}

	buf.Reset()
	if _, err := srv.Login(context.Background(), testAuthRequest(), "testuser", "wrong", testClientIP); err == nil {
		t.Fatal("Login() with a wrong password should fail")
	}
	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("log output has a request id without one in the context: %s", buf.String())
	}
}

func TestNew_AuditLogging(t *testing.T) {
	srv, err := New(memory.New(), credentials.Defaults(), &Config{}, testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if srv.Auditor != nil {
		t.Error("Auditor should be nil when audit logging is disabled")
	}

	srv, err = New(memory.New(), credentials.Defaults(), &Config{EnableAuditLogging: true}, testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if srv.Auditor == nil {
		t.Error("Auditor should be created when EnableAuditLogging is set")
	}
}

func TestNew_WarnsWhenExposed(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	if _, err := New(memory.New(), credentials.Defaults(), &Config{ListenHost: "0.0.0.0"}, logger); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "reachable beyond localhost") {
		t.Errorf("expected exposure warning, got: %s", buf.String())
	}

	buf.Reset()
	if _, err := New(memory.New(), credentials.Defaults(), &Config{ListenHost: "localhost"}, logger); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "reachable beyond localhost") {
		t.Errorf("unexpected exposure warning for localhost: %s", buf.String())
	}
}
