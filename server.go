// Package oauth is a minimal OAuth2 authorization server for local development
// and integration testing. It serves the authorization code and refresh token
// grants against a fixed set of clients and users.
//
// The HTTP layer in this package is a thin adapter over the server package,
// which owns the token lifecycle:
//
//	store := memory.New()
//	srv, err := oauth.NewServer(store, credentials.Defaults(), &oauth.ServerConfig{
//		Issuer: "http://localhost:3000",
//	}, logger)
//	if err != nil {
//		return err
//	}
//	http.ListenAndServe("localhost:3000", oauth.NewHandler(srv, logger).Routes())
package oauth

import (
	"log/slog"

	"github.com/giantswarm/oauth-test-server/credentials"
	"github.com/giantswarm/oauth-test-server/server"
	"github.com/giantswarm/oauth-test-server/storage"
)

// Server is the token lifecycle engine the Handler delegates to
type Server = server.Server

// ServerConfig holds token lifetimes, proxy and rate limit settings
type ServerConfig = server.Config

// NewServer creates a Server backed by store and creds
func NewServer(store storage.TokenStore, creds *credentials.Store, config *ServerConfig, logger *slog.Logger) (*Server, error) {
	return server.New(store, creds, config, logger)
}
