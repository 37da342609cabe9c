package oauth

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/giantswarm/oauth-test-server/credentials"
	"github.com/giantswarm/oauth-test-server/security"
	"github.com/giantswarm/oauth-test-server/server"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// credentialHint is a fixture credential shown on the info and login pages.
// Hashed fixtures have no plaintext to show, so Password or Secret is empty.
type credentialHint struct {
	ID       string
	Secret   string
	Username string
	Password string
}

type endpointInfo struct {
	Name string
	URL  string
}

type homePageData struct {
	Endpoints     []endpointInfo
	Clients       []credentialHint
	Users         []credentialHint
	QuickStartURL string
}

type loginPageData struct {
	Request *server.AuthorizationRequest
	Users   []credentialHint
}

type loginErrorPageData struct {
	Message  string
	RetryURL string
}

func clientHints(clients []credentials.Client) []credentialHint {
	hints := make([]credentialHint, 0, len(clients))
	for _, c := range clients {
		hints = append(hints, credentialHint{ID: c.ID, Secret: c.Secret})
	}
	return hints
}

func userHints(users []credentials.User) []credentialHint {
	hints := make([]credentialHint, 0, len(users))
	for _, u := range users {
		hints = append(hints, credentialHint{Username: u.Username, Password: u.Password})
	}
	return hints
}

// renderPage executes the named template into a buffer first so that a template
// failure still produces a clean 500 instead of a truncated page.
func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, name string, status int, data any) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		h.requestLogger(r).Error("Failed to render page", "template", name, "error", err)
		h.writeError(w, r, server.ErrServerError("Failed to render page"))
		return
	}

	security.SetPageSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
