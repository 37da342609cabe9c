package credentials

var defaultGrants = []string{GrantAuthorizationCode, GrantRefreshToken}

// DefaultClients returns the built-in test clients
func DefaultClients() []Client {
	return []Client{
		{
			ID:     "test-client",
			Secret: "test-secret",
			RedirectURIs: []string{
				"http://localhost:8080/callback",
				"http://localhost:3001/callback",
				"http://127.0.0.1:8080/callback",
				"http://127.0.0.1:3001/callback",
				"http://localhost/callback",
				"http://test-app.local/callback",
			},
			Grants: defaultGrants,
		},
		{
			ID:     "demo-app",
			Secret: "demo-secret",
			RedirectURIs: []string{
				"http://localhost:4200/callback",
				"http://localhost:5000/callback",
				"http://demo-app.local/callback",
			},
			Grants: defaultGrants,
		},
	}
}

// DefaultUsers returns the built-in test users
func DefaultUsers() []User {
	return []User{
		{
			ID:        "1",
			Username:  "testuser",
			Password:  "password",
			Email:     "testuser@example.com",
			Name:      "Test User",
			FirstName: "Test",
			LastName:  "User",
		},
		{
			ID:        "2",
			Username:  "demo",
			Password:  "demo",
			Email:     "demo@example.com",
			Name:      "Demo User",
			FirstName: "Demo",
			LastName:  "User",
		},
		{
			ID:        "3",
			Username:  "admin",
			Password:  "admin",
			Email:     "admin@example.com",
			Name:      "Admin User",
			FirstName: "Admin",
			LastName:  "User",
			Role:      "admin",
		},
	}
}

// Defaults returns a store holding the built-in clients and users
func Defaults() *Store {
	s, err := NewStore(DefaultClients(), DefaultUsers())
	if err != nil {
		panic("invalid built-in credentials: " + err.Error())
	}
	return s
}
