package democlient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const openIDConfigPath = "/.well-known/openid-configuration"

// discoveryDocument is the part of the server metadata the demo client uses
type discoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserInfoEndpoint      string `json:"userinfo_endpoint"`
}

// Discover replaces the configured endpoints with the ones the server
// advertises. Call it before serving requests.
func (c *Client) Discover(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+openIDConfigPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create discovery request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discovery failed with status %d", resp.StatusCode)
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode discovery document: %w", err)
	}
	if err := c.validateDocument(&doc); err != nil {
		return fmt.Errorf("invalid discovery document: %w", err)
	}

	c.oauth.Endpoint.AuthURL = doc.AuthorizationEndpoint
	c.oauth.Endpoint.TokenURL = doc.TokenEndpoint
	c.userInfoURL = doc.UserInfoEndpoint

	c.logger.Info("Discovery successful",
		"issuer", doc.Issuer,
		"authorization_endpoint", doc.AuthorizationEndpoint,
		"token_endpoint", doc.TokenEndpoint)
	return nil
}

// validateDocument requires every endpoint the flow needs and an issuer that
// matches the server URL. Plain HTTP is accepted for local servers.
func (c *Client) validateDocument(doc *discoveryDocument) error {
	endpoints := []struct {
		name string
		url  string
	}{
		{"issuer", doc.Issuer},
		{"authorization_endpoint", doc.AuthorizationEndpoint},
		{"token_endpoint", doc.TokenEndpoint},
		{"userinfo_endpoint", doc.UserInfoEndpoint},
	}
	for _, endpoint := range endpoints {
		if endpoint.url == "" {
			return fmt.Errorf("%s is required but missing", endpoint.name)
		}
	}

	if strings.TrimSuffix(doc.Issuer, "/") != c.serverURL {
		return fmt.Errorf("issuer %q does not match server %q", doc.Issuer, c.serverURL)
	}
	return nil
}
