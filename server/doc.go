// Package server implements the token lifecycle of the test authorization server.
//
// It validates authorization requests, authenticates end-user logins against
// the credential store, and mints single-use authorization codes. It runs the
// authorization_code and refresh_token grants and answers userinfo,
// introspection and revocation requests. Tokens are opaque random strings held
// in a storage.TokenStore.
//
// Expiry is enforced when a record is read: an expired code or token is
// deleted and reported as expired. Expired records are also swept from the
// store each time a new authorization code is minted. There is no background
// goroutine.
//
// Failures are returned as *OAuthError values carrying the OAuth error code,
// a description and the HTTP status to reply with.
//
// Example usage:
//
//	store := memory.New()
//	srv, err := server.New(store, credentials.Defaults(), &server.Config{
//		Issuer: "http://localhost:3000",
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	srv.SetAuditor(security.NewAuditor(logger, true))
package server
