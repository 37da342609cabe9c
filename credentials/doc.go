// Package credentials holds the fixed set of clients and users the server
// authenticates against.
//
// Secrets and passwords are plaintext by default, matching the throwaway
// nature of a test server. A fixture may instead give a bcrypt hash in
// clientSecretHash or passwordHash.
package credentials
