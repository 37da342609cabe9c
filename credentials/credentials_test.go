package credentials

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestDefaults(t *testing.T) {
	s := Defaults()

	if got := len(s.Clients()); got != 2 {
		t.Errorf("len(Clients()) = %d, want 2", got)
	}
	if got := len(s.Users()); got != 3 {
		t.Errorf("len(Users()) = %d, want 3", got)
	}

	c, ok := s.GetClient("test-client")
	if !ok {
		t.Fatal("test-client not registered")
	}
	for _, uri := range []string{
		"http://localhost:8080/callback",
		"http://127.0.0.1:3001/callback",
		"http://test-app.local/callback",
	} {
		if !c.ValidRedirectURI(uri) {
			t.Errorf("test-client should accept %s", uri)
		}
	}
	if !c.AllowsGrant(GrantAuthorizationCode) || !c.AllowsGrant(GrantRefreshToken) {
		t.Error("test-client should allow both grants")
	}

	admin, ok := s.GetUser("3")
	if !ok || admin.Role != "admin" {
		t.Errorf("admin user = %+v", admin)
	}
}

func TestClient_ValidRedirectURI_ExactMatch(t *testing.T) {
	c := Client{RedirectURIs: []string{"http://localhost:8080/callback"}}

	tests := []struct {
		uri  string
		want bool
	}{
		{"http://localhost:8080/callback", true},
		{"http://localhost:8080/callback/", false},
		{"http://localhost:8080/callback?x=1", false},
		{"HTTP://localhost:8080/callback", false},
		{"http://localhost:8080", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := c.ValidRedirectURI(tt.uri); got != tt.want {
			t.Errorf("ValidRedirectURI(%q) = %v, want %v", tt.uri, got, tt.want)
		}
	}
}

func TestStore_AuthenticateClient(t *testing.T) {
	s := Defaults()

	tests := []struct {
		name     string
		clientID string
		secret   string
		want     bool
	}{
		{name: "valid", clientID: "test-client", secret: "test-secret", want: true},
		{name: "wrong secret", clientID: "test-client", secret: "demo-secret", want: false},
		{name: "unknown client", clientID: "nobody", secret: "test-secret", want: false},
		{name: "empty secret", clientID: "test-client", secret: "", want: false},
		{name: "secret prefix", clientID: "test-client", secret: "test-secre", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := s.AuthenticateClient(tt.clientID, tt.secret)
			if ok != tt.want {
				t.Errorf("AuthenticateClient() ok = %v, want %v", ok, tt.want)
			}
			if ok && c.ID != tt.clientID {
				t.Errorf("client id = %q", c.ID)
			}
		})
	}
}

func TestStore_AuthenticateUser(t *testing.T) {
	s := Defaults()

	if u, ok := s.AuthenticateUser("testuser", "password"); !ok || u.ID != "1" {
		t.Errorf("AuthenticateUser(testuser) = %+v, %v", u, ok)
	}
	if _, ok := s.AuthenticateUser("testuser", "wrong"); ok {
		t.Error("wrong password should fail")
	}
	if _, ok := s.AuthenticateUser("ghost", "password"); ok {
		t.Error("unknown user should fail")
	}
}

func TestStore_BcryptHashes(t *testing.T) {
	secretHash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	pwHash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	s, err := NewStore(
		[]Client{{ID: "hashed", SecretHash: string(secretHash), RedirectURIs: []string{"http://x/cb"}}},
		[]User{{ID: "9", Username: "alice", PasswordHash: string(pwHash)}},
	)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	if _, ok := s.AuthenticateClient("hashed", "s3cret"); !ok {
		t.Error("hashed client secret should verify")
	}
	if _, ok := s.AuthenticateClient("hashed", string(secretHash)); ok {
		t.Error("the hash itself must not be accepted as the secret")
	}
	if _, ok := s.AuthenticateUser("alice", "hunter2"); !ok {
		t.Error("hashed password should verify")
	}
}

func TestNewStore_Validation(t *testing.T) {
	tests := []struct {
		name    string
		clients []Client
		users   []User
		wantErr string
	}{
		{
			name:    "missing client id",
			clients: []Client{{Secret: "s", RedirectURIs: []string{"http://x"}}},
			wantErr: "clientId is required",
		},
		{
			name:    "missing secret",
			clients: []Client{{ID: "a", RedirectURIs: []string{"http://x"}}},
			wantErr: "clientSecret or clientSecretHash is required",
		},
		{
			name:    "missing redirect",
			clients: []Client{{ID: "a", Secret: "s"}},
			wantErr: "redirect URI is required",
		},
		{
			name: "duplicate client",
			clients: []Client{
				{ID: "a", Secret: "s", RedirectURIs: []string{"http://x"}},
				{ID: "a", Secret: "t", RedirectURIs: []string{"http://y"}},
			},
			wantErr: "duplicate clientId",
		},
		{
			name:    "duplicate username",
			users:   []User{{ID: "1", Username: "u", Password: "p"}, {ID: "2", Username: "u", Password: "p"}},
			wantErr: "duplicate username",
		},
		{
			name:    "user without password",
			users:   []User{{ID: "1", Username: "u"}},
			wantErr: "password or passwordHash is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStore(tt.clients, tt.users)
			if err == nil {
				t.Fatal("NewStore() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
clients:
  - clientId: my-app
    clientSecret: my-secret
    redirectUris: ["http://localhost:9000/callback"]
users:
  - id: "42"
    username: alice
    password: wonderland
    email: alice@example.com
    name: Alice Liddell
`)

	s, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	c, ok := s.GetClient("my-app")
	if !ok {
		t.Fatal("my-app not loaded")
	}
	if !c.AllowsGrant(GrantAuthorizationCode) || !c.AllowsGrant(GrantRefreshToken) {
		t.Error("clients without grants should default to both grants")
	}
	if _, ok := s.GetClient("test-client"); ok {
		t.Error("defaults should not be included unless requested")
	}
	if u, ok := s.AuthenticateUser("alice", "wonderland"); !ok || u.Name != "Alice Liddell" {
		t.Errorf("alice = %+v, %v", u, ok)
	}
}

func TestParse_IncludeDefaultsAndGrants(t *testing.T) {
	s, err := Parse([]byte(`
includeDefaults: true
clients:
  - clientId: code-only
    clientSecret: x
    redirectUris: ["http://localhost:9000/cb"]
    grants: [authorization_code]
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if _, ok := s.GetClient("test-client"); !ok {
		t.Error("includeDefaults should add test-client")
	}
	c, _ := s.GetClient("code-only")
	if c.AllowsGrant(GrantRefreshToken) {
		t.Error("explicit grants should be kept as given")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "unknown field", data: "clients:\n  - clientID: typo\n"},
		{name: "not yaml", data: "clients: [unterminated"},
		{name: "invalid fixture", data: "users:\n  - id: \"1\"\n    username: x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Error("Parse() should fail")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	if err := os.WriteFile(path, []byte("includeDefaults: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(s.Users()) != 3 {
		t.Errorf("len(Users()) = %d, want 3", len(s.Users()))
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile() of missing file should fail")
	}
}
