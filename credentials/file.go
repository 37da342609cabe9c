package credentials

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a credentials fixture
//
//	clients:
//	  - clientId: my-app
//	    clientSecret: my-secret
//	    redirectUris: [http://localhost:9000/callback]
//	    grants: [authorization_code, refresh_token]
//	users:
//	  - id: "42"
//	    username: alice
//	    password: wonderland
//	    email: alice@example.com
type File struct {
	Clients []Client `yaml:"clients"`
	Users   []User   `yaml:"users"`

	// IncludeDefaults appends the built-in fixtures to the ones listed here
	IncludeDefaults bool `yaml:"includeDefaults"`
}

// LoadFile reads a YAML fixture. Unknown keys are rejected so typos surface early.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	return Parse(data)
}

// Parse builds a store from YAML fixture data
func Parse(data []byte) (*Store, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	clients, users := f.Clients, f.Users
	if f.IncludeDefaults {
		clients = append(clients, DefaultClients()...)
		users = append(users, DefaultUsers()...)
	}

	for i := range clients {
		if len(clients[i].Grants) == 0 {
			clients[i].Grants = defaultGrants
		}
	}

	store, err := NewStore(clients, users)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}
	return store, nil
}
