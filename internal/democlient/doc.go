// Package democlient is an example OAuth2 relying party for trying the test
// server from a browser. It runs the authorization code flow with
// golang.org/x/oauth2, shows the userinfo claims, and keeps sessions in memory.
package democlient
