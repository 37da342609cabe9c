// Package storage defines the token store used by the authorization server.
//
// A TokenStore holds three keyed collections (authorization codes, access tokens
// and refresh tokens). Each key is an opaque random string produced by GenerateKey
// and each value is a Record carrying the owning client, user, scope and expiry.
//
// Implementations are provided in subpackages:
//   - storage/memory: in-memory maps, the default
//   - storage/file: a JSON snapshot on disk, compatible with the tokens.json layout
//   - storage/valkey: Valkey-backed storage
//   - storage/redis: Redis-backed storage
//   - storage/mock: a configurable store for failure injection in tests
package storage
