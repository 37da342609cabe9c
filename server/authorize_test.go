package server

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/oauth-test-server/credentials"
	"github.com/giantswarm/oauth-test-server/internal/testutil"
	"github.com/giantswarm/oauth-test-server/storage"
	"github.com/giantswarm/oauth-test-server/storage/memory"
	"github.com/giantswarm/oauth-test-server/storage/mock"
)

func TestValidateAuthorizationRequest(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	tests := []struct {
		name      string
		modify    func(r *AuthorizationRequest)
		wantCode  string
		wantDesc  string
		wantState int
	}{
		{
			name:   "valid",
			modify: func(r *AuthorizationRequest) {},
		},
		{
			name:      "missing client_id",
			modify:    func(r *AuthorizationRequest) { r.ClientID = "" },
			wantCode:  ErrorCodeInvalidRequest,
			wantDesc:  "Missing required parameters",
			wantState: 400,
		},
		{
			name:      "missing redirect_uri",
			modify:    func(r *AuthorizationRequest) { r.RedirectURI = "" },
			wantCode:  ErrorCodeInvalidRequest,
			wantDesc:  "Missing required parameters",
			wantState: 400,
		},
		{
			name:      "missing response_type",
			modify:    func(r *AuthorizationRequest) { r.ResponseType = "" },
			wantCode:  ErrorCodeInvalidRequest,
			wantDesc:  "Missing required parameters",
			wantState: 400,
		},
		{
			name:      "unknown client",
			modify:    func(r *AuthorizationRequest) { r.ClientID = "nope" },
			wantCode:  ErrorCodeInvalidClient,
			wantDesc:  "Client not found",
			wantState: 400,
		},
		{
			name:      "unregistered redirect_uri",
			modify:    func(r *AuthorizationRequest) { r.RedirectURI = "http://evil.example/callback" },
			wantCode:  ErrorCodeInvalidRequest,
			wantDesc:  "Invalid redirect_uri",
			wantState: 400,
		},
		{
			name:      "redirect_uri must match exactly",
			modify:    func(r *AuthorizationRequest) { r.RedirectURI = testRedirectURI + "/" },
			wantCode:  ErrorCodeInvalidRequest,
			wantDesc:  "Invalid redirect_uri",
			wantState: 400,
		},
		{
			name:      "unsupported response_type",
			modify:    func(r *AuthorizationRequest) { r.ResponseType = "token" },
			wantCode:  ErrorCodeUnsupportedResponseType,
			wantState: 400,
		},
		{
			name: "redirect checked before response_type",
			modify: func(r *AuthorizationRequest) {
				r.RedirectURI = "http://evil.example/callback"
				r.ResponseType = "token"
			},
			wantCode:  ErrorCodeInvalidRequest,
			wantDesc:  "Invalid redirect_uri",
			wantState: 400,
		},
		{
			name: "client checked before redirect_uri",
			modify: func(r *AuthorizationRequest) {
				r.ClientID = "nope"
				r.RedirectURI = "http://evil.example/callback"
			},
			wantCode:  ErrorCodeInvalidClient,
			wantDesc:  "Client not found",
			wantState: 400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testAuthRequest()
			tt.modify(req)

			client, err := srv.ValidateAuthorizationRequest(context.Background(), req)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("ValidateAuthorizationRequest() error = %v", err)
				}
				if client.ID != testClientID {
					t.Errorf("client = %q, want %q", client.ID, testClientID)
				}
				return
			}
			assertOAuthError(t, err, tt.wantCode, tt.wantDesc, tt.wantState)
		})
	}
}

func TestStartAuthorization(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	location, err := srv.StartAuthorization(context.Background(), testAuthRequest())
	if err != nil {
		t.Fatalf("StartAuthorization() error = %v", err)
	}
	if !strings.HasPrefix(location, "/login?") {
		t.Fatalf("location = %q, want /login?...", location)
	}

	u, err := url.Parse(location)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	for name, want := range map[string]string{
		"client_id":     testClientID,
		"redirect_uri":  testRedirectURI,
		"response_type": "code",
		"state":         "xyz",
		"scope":         "openid profile",
	} {
		if got := q.Get(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestStartAuthorization_OmitsEmptyParameters(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	req := testAuthRequest()
	req.State = ""
	req.Scope = ""

	location, err := srv.StartAuthorization(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(location, "state=") || strings.Contains(location, "scope=") {
		t.Errorf("location %q should not carry empty state or scope", location)
	}
}

func TestLogin_IssuesCode(t *testing.T) {
	srv, store, _ := setupTestServer(t)

	location, err := srv.Login(context.Background(), testAuthRequest(), "testuser", "password", testClientIP)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !strings.HasPrefix(location, testRedirectURI+"?code=") {
		t.Fatalf("location = %q, want redirect to %s", location, testRedirectURI)
	}
	if !strings.HasSuffix(location, "&state=xyz") {
		t.Errorf("location = %q, want state appended", location)
	}

	u, _ := url.Parse(location)
	code := u.Query().Get("code")
	rec, err := store.Get(context.Background(), storage.KindAuthorizationCode, code)
	if err != nil {
		t.Fatalf("code not stored: %v", err)
	}
	if rec.ClientID != testClientID || rec.RedirectURI != testRedirectURI || rec.UserID != "1" {
		t.Errorf("stored record = %+v", rec)
	}
	if rec.Scope != "openid profile" {
		t.Errorf("Scope = %q", rec.Scope)
	}
	if want := testStart.Add(10 * time.Minute); !rec.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", rec.ExpiresAt, want)
	}
}

func TestLogin_WrongCredentials(t *testing.T) {
	srv, store, _ := setupTestServer(t)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "testuser", "wrong"},
		{"unknown user", "nobody", "password"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.Login(context.Background(), testAuthRequest(), tt.username, tt.password, testClientIP)
			if !IsLoginFailure(err) {
				t.Fatalf("Login() error = %v, want login failure", err)
			}
			assertOAuthError(t, err, ErrorCodeAccessDenied, "Invalid username or password", 401)
		})
	}

	if n := store.Len(storage.KindAuthorizationCode); n != 0 {
		t.Errorf("failed logins stored %d codes", n)
	}
}

func TestLogin_RevalidatesRequest(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	req := testAuthRequest()
	req.RedirectURI = "http://evil.example/callback"

	_, err := srv.Login(context.Background(), req, "testuser", "password", testClientIP)
	assertOAuthError(t, err, ErrorCodeInvalidRequest, "Invalid redirect_uri", 400)
	if IsLoginFailure(err) {
		t.Error("a tampered request is not a login failure")
	}
}

func TestLogin_CodesAreUnique(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		code := issueCode(t, srv, testAuthRequest())
		if seen[code] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = true
	}
}

func TestLogin_SweepsExpiredRecords(t *testing.T) {
	srv, store, clock := setupTestServer(t)
	ctx := context.Background()

	stale := testutil.GenerateTestRecord(testStart, time.Minute)
	fresh := testutil.GenerateTestRecord(testStart, 2*time.Hour)
	testutil.AssertNoError(t, store.Put(ctx, storage.KindAccessToken, "stale", stale))
	testutil.AssertNoError(t, store.Put(ctx, storage.KindRefreshToken, "fresh", fresh))

	clock.Advance(time.Hour)
	issueCode(t, srv, testAuthRequest())

	if _, err := store.Get(ctx, storage.KindAccessToken, "stale"); !storage.IsNotFound(err) {
		t.Errorf("stale access token survived the sweep: %v", err)
	}
	if _, err := store.Get(ctx, storage.KindRefreshToken, "fresh"); err != nil {
		t.Errorf("fresh refresh token was swept: %v", err)
	}
}

func TestLogin_SweepFailureDoesNotBlockLogin(t *testing.T) {
	store := mock.NewMockTokenStore()
	store.SweepFunc = func(ctx context.Context, now time.Time) (int, error) {
		return 0, context.DeadlineExceeded
	}

	srv, err := New(store, credentials.Defaults(), nil, testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}

	issueCode(t, srv, testAuthRequest())
	if store.CallCount("Sweep") != 1 {
		t.Errorf("Sweep called %d times, want 1", store.CallCount("Sweep"))
	}
	if store.Backing.Len(storage.KindAuthorizationCode) != 1 {
		t.Error("code should be stored despite the failed sweep")
	}
}

func TestLogin_StorageFailure(t *testing.T) {
	store := mock.NewMockTokenStore()
	store.PutFunc = func(ctx context.Context, kind storage.Kind, key string, record *storage.Record) error {
		return context.DeadlineExceeded
	}

	srv, err := New(store, credentials.Defaults(), nil, testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}

	_, err = srv.Login(context.Background(), testAuthRequest(), "testuser", "password", testClientIP)
	assertOAuthError(t, err, ErrorCodeServerError, "", 500)
}

func TestBuildRedirect(t *testing.T) {
	tests := []struct {
		name        string
		redirectURI string
		code        string
		state       string
		want        string
	}{
		{
			name:        "no query",
			redirectURI: "http://localhost:8080/callback",
			code:        "abc",
			state:       "xyz",
			want:        "http://localhost:8080/callback?code=abc&state=xyz",
		},
		{
			name:        "existing query",
			redirectURI: "http://localhost:8080/callback?tenant=1",
			code:        "abc",
			state:       "xyz",
			want:        "http://localhost:8080/callback?tenant=1&code=abc&state=xyz",
		},
		{
			name:        "no state",
			redirectURI: "http://localhost:8080/callback",
			code:        "abc",
			want:        "http://localhost:8080/callback?code=abc",
		},
		{
			name:        "state is escaped",
			redirectURI: "http://localhost:8080/callback",
			code:        "abc",
			state:       "a b&c=d",
			want:        "http://localhost:8080/callback?code=abc&state=a+b%26c%3Dd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildRedirect(tt.redirectURI, tt.code, tt.state); got != tt.want {
				t.Errorf("buildRedirect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogin_RedirectURIWithQuery(t *testing.T) {
	const redirect = "http://localhost:9000/cb?tenant=acme"
	creds, err := credentials.NewStore(
		[]credentials.Client{{ID: "q-client", Secret: "s", RedirectURIs: []string{redirect}}},
		credentials.DefaultUsers(),
	)
	if err != nil {
		t.Fatal(err)
	}

	srv, err := New(memory.New(), creds, nil, testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}

	location, err := srv.Login(context.Background(), &AuthorizationRequest{
		ClientID:     "q-client",
		RedirectURI:  redirect,
		ResponseType: ResponseTypeCode,
	}, "demo", "demo", testClientIP)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(location, redirect+"&code=") {
		t.Errorf("location = %q, want code appended with &", location)
	}
	if strings.Contains(location, "state=") {
		t.Errorf("location = %q should not carry an empty state", location)
	}
}
