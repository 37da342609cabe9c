package credentials

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/crypto/bcrypt"
)

// Grant types a client may be allowed to use
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

// Client is a registered relying party.
type Client struct {
	ID     string `yaml:"clientId"`
	Secret string `yaml:"clientSecret,omitempty"`

	// SecretHash is a bcrypt hash used instead of Secret when set
	SecretHash   string   `yaml:"clientSecretHash,omitempty"`
	RedirectURIs []string `yaml:"redirectUris"`
	Grants       []string `yaml:"grants"`
}

// User is a fixture end user. Password is never exposed through UserInfo.
type User struct {
	ID       string `yaml:"id"`
	Username string `yaml:"username"`
	Password string `yaml:"password,omitempty"`

	// PasswordHash is a bcrypt hash used instead of Password when set
	PasswordHash string `yaml:"passwordHash,omitempty"`
	Email        string `yaml:"email"`
	Name         string `yaml:"name"`
	FirstName    string `yaml:"firstName"`
	LastName     string `yaml:"lastName"`
	Role         string `yaml:"role,omitempty"`
}

// AllowsGrant reports whether the client may use grantType
func (c *Client) AllowsGrant(grantType string) bool {
	return slices.Contains(c.Grants, grantType)
}

// ValidRedirectURI reports whether uri exactly matches a registered redirect URI
func (c *Client) ValidRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

func (c *Client) secretMatches(secret string) bool {
	if c.SecretHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(c.Secret), []byte(secret)) == 1
}

func (u *User) passwordMatches(password string) bool {
	if u.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(u.Password), []byte(password)) == 1
}

// Store is an immutable registry of clients and users, indexed for lookup.
// It is safe for concurrent use.
type Store struct {
	clients    []Client
	users      []User
	byClientID map[string]*Client
	byUserID   map[string]*User
	byUsername map[string]*User
}

// NewStore validates and indexes the given fixtures
func NewStore(clients []Client, users []User) (*Store, error) {
	s := &Store{
		clients:    slices.Clone(clients),
		users:      slices.Clone(users),
		byClientID: make(map[string]*Client, len(clients)),
		byUserID:   make(map[string]*User, len(users)),
		byUsername: make(map[string]*User, len(users)),
	}

	var errs []error
	for i := range s.clients {
		c := &s.clients[i]
		switch {
		case c.ID == "":
			errs = append(errs, fmt.Errorf("client %d: clientId is required", i))
			continue
		case c.Secret == "" && c.SecretHash == "":
			errs = append(errs, fmt.Errorf("client %q: clientSecret or clientSecretHash is required", c.ID))
		case len(c.RedirectURIs) == 0:
			errs = append(errs, fmt.Errorf("client %q: at least one redirect URI is required", c.ID))
		}
		if _, dup := s.byClientID[c.ID]; dup {
			errs = append(errs, fmt.Errorf("client %q: duplicate clientId", c.ID))
		}
		s.byClientID[c.ID] = c
	}

	for i := range s.users {
		u := &s.users[i]
		switch {
		case u.ID == "" || u.Username == "":
			errs = append(errs, fmt.Errorf("user %d: id and username are required", i))
			continue
		case u.Password == "" && u.PasswordHash == "":
			errs = append(errs, fmt.Errorf("user %q: password or passwordHash is required", u.Username))
		}
		if _, dup := s.byUserID[u.ID]; dup {
			errs = append(errs, fmt.Errorf("user %q: duplicate id %q", u.Username, u.ID))
		}
		if _, dup := s.byUsername[u.Username]; dup {
			errs = append(errs, fmt.Errorf("user %q: duplicate username", u.Username))
		}
		s.byUserID[u.ID] = u
		s.byUsername[u.Username] = u
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return s, nil
}

// GetClient returns the client registered under clientID
func (s *Store) GetClient(clientID string) (*Client, bool) {
	c, ok := s.byClientID[clientID]
	return c, ok
}

// AuthenticateClient returns the client only if clientID and secret both match
func (s *Store) AuthenticateClient(clientID, secret string) (*Client, bool) {
	c, ok := s.byClientID[clientID]
	if !ok || !c.secretMatches(secret) {
		return nil, false
	}
	return c, true
}

// AuthenticateUser returns the user only if username and password both match
func (s *Store) AuthenticateUser(username, password string) (*User, bool) {
	u, ok := s.byUsername[username]
	if !ok || !u.passwordMatches(password) {
		return nil, false
	}
	return u, true
}

// GetUser returns the user with the given id
func (s *Store) GetUser(userID string) (*User, bool) {
	u, ok := s.byUserID[userID]
	return u, ok
}

// Clients returns the registered clients in load order
func (s *Store) Clients() []Client {
	return slices.Clone(s.clients)
}

// Users returns the registered users in load order
func (s *Store) Users() []User {
	return slices.Clone(s.users)
}
