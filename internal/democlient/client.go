package democlient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth-test-server/internal/util"
)

const (
	sessionCookie = "session_id"

	// DefaultListenAddr is where the demo client listens unless told otherwise
	DefaultListenAddr = "localhost:8080"
)

// Config configures the demo client
type Config struct {
	// ServerURL is the base URL of the authorization server (default: http://localhost:3000)
	ServerURL string

	ClientID     string // default: test-client
	ClientSecret string // default: test-secret

	// RedirectURL must be registered for the client (default: http://localhost:8080/callback)
	RedirectURL string

	Scopes []string // default: openid profile email

	// HTTPClient is used for the token and userinfo requests
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.ServerURL == "" {
		c.ServerURL = "http://localhost:3000"
	}
	c.ServerURL = strings.TrimSuffix(c.ServerURL, "/")
	if c.ClientID == "" {
		c.ClientID = "test-client"
	}
	if c.ClientSecret == "" {
		c.ClientSecret = "test-secret"
	}
	if c.RedirectURL == "" {
		c.RedirectURL = "http://" + DefaultListenAddr + "/callback"
	}
	if len(c.Scopes) == 0 {
		c.Scopes = []string{"openid", "profile", "email"}
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// session is one browser's login state
type session struct {
	State       string
	AccessToken string
	User        map[string]any
}

// Client is the demo relying party
type Client struct {
	serverURL   string
	oauth       *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates a demo client
func New(cfg Config, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		serverURL: cfg.ServerURL,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.ServerURL + "/oauth/authorize",
				TokenURL:  cfg.ServerURL + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		userInfoURL: cfg.ServerURL + "/oauth/userinfo",
		httpClient:  cfg.HTTPClient,
		logger:      logger,
		sessions:    make(map[string]*session),
	}
}

// Routes returns the demo client's router
func (c *Client) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", c.serveHome)
	r.Get("/login", c.serveLogin)
	r.Get("/callback", c.serveCallback)
	r.Get("/logout", c.serveLogout)
	return r
}

func (c *Client) serveHome(w http.ResponseWriter, r *http.Request) {
	var data homeData
	if s := c.session(r); s != nil && s.AccessToken != "" {
		user, _ := json.MarshalIndent(s.User, "", "  ")
		data = homeData{
			LoggedIn:    true,
			User:        string(user),
			TokenPrefix: util.SafeTruncate(s.AccessToken, 20),
		}
	}
	c.render(w, http.StatusOK, data)
}

// serveLogin starts a new session and redirects to the authorization server
func (c *Client) serveLogin(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	state := oauth2.GenerateVerifier()

	c.mu.Lock()
	c.sessions[id] = &session{State: state}
	c.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, c.oauth.AuthCodeURL(state), http.StatusFound)
}

// serveCallback checks state, exchanges the code and fetches the user's claims
func (c *Client) serveCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		c.renderError(w, http.StatusBadRequest, fmt.Sprintf("Authorization failed: %s", e))
		return
	}

	s := c.session(r)
	if s == nil || s.State == "" || q.Get("state") != s.State {
		c.renderError(w, http.StatusBadRequest, "Invalid state parameter")
		return
	}

	ctx := context.WithValue(r.Context(), oauth2.HTTPClient, c.httpClient)
	token, err := c.oauth.Exchange(ctx, q.Get("code"))
	if err != nil {
		c.logger.Warn("Code exchange failed", "error", err)
		c.renderError(w, http.StatusBadGateway, "Failed to exchange authorization code")
		return
	}

	user, err := c.fetchUserInfo(ctx, token)
	if err != nil {
		c.logger.Warn("Userinfo request failed", "error", err)
		c.renderError(w, http.StatusBadGateway, "Failed to fetch user information")
		return
	}

	c.mu.Lock()
	s.State = ""
	s.AccessToken = token.AccessToken
	s.User = user
	c.mu.Unlock()

	c.logger.Info("Demo client login completed", "sub", user["sub"])
	http.Redirect(w, r, "/", http.StatusFound)
}

func (c *Client) serveLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		c.mu.Lock()
		delete(c.sessions, cookie.Value)
		c.mu.Unlock()
	}

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (c *Client) fetchUserInfo(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	resp, err := c.oauth.Client(ctx, token).Get(c.userInfoURL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, body)
	}

	var user map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}
	return user, nil
}

func (c *Client) session(r *http.Request) *session {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[cookie.Value]
}

type homeData struct {
	LoggedIn    bool
	User        string
	TokenPrefix string
	Error       string
}

var homeTemplate = template.Must(template.New("home").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>OAuth2 Example Client</title>
  <style>
    body { font-family: Arial, sans-serif; max-width: 800px; margin: 50px auto; padding: 20px; background-color: #f5f5f5; }
    .container { background: white; padding: 30px; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
    .login-btn { display: inline-block; padding: 12px 24px; background-color: #007bff; color: white; text-decoration: none; border-radius: 4px; font-weight: bold; }
    .user-info { background-color: #e7f3ff; padding: 20px; border-radius: 4px; margin-top: 20px; }
    .logout-btn { display: inline-block; padding: 8px 16px; background-color: #dc3545; color: white; text-decoration: none; border-radius: 4px; margin-top: 10px; }
    .error { background-color: #f8d7da; color: #721c24; padding: 15px; border-radius: 4px; }
    pre { background-color: #f8f9fa; padding: 15px; border-radius: 4px; overflow-x: auto; }
  </style>
</head>
<body>
  <div class="container">
    <h1>OAuth2 Example Client</h1>
    {{- if .Error}}
    <div class="error">{{.Error}}</div>
    <p><a href="/">Back</a></p>
    {{- else if .LoggedIn}}
    <div class="user-info">
      <h2>Logged In</h2>
      <p><strong>User Information:</strong></p>
      <pre>{{.User}}</pre>
      <p><strong>Access Token:</strong> {{.TokenPrefix}}...</p>
      <a href="/logout" class="logout-btn">Logout</a>
    </div>
    {{- else}}
    <p>Welcome! This is an example OAuth2 client application.</p>
    <p>Click the button below to login using the test OAuth2 server.</p>
    <a href="/login" class="login-btn">Login with OAuth2</a>
    {{- end}}
  </div>
</body>
</html>
`))

func (c *Client) render(w http.ResponseWriter, status int, data homeData) {
	var buf bytes.Buffer
	if err := homeTemplate.Execute(&buf, data); err != nil {
		c.logger.Error("Failed to render page", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (c *Client) renderError(w http.ResponseWriter, status int, message string) {
	c.render(w, status, homeData{Error: message})
}
