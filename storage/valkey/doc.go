// Package valkey provides a Valkey-backed storage.TokenStore.
//
// Valkey is wire-compatible with Redis. Pointing several server instances at the
// same Valkey database lets them share tokens.
//
// # Key Schema
//
// All keys use a configurable prefix (default "oauth-test:"):
//
//	{prefix}authorization_code:{code}    -> JSON(record)
//	{prefix}access_token:{token}         -> JSON(record)
//	{prefix}refresh_token:{token}        -> JSON(record)
//
// A record's JSON carries clientId, redirectUri (codes only), userId, scope and
// expiresAt in Unix seconds.
//
// # Expiry
//
// Keys are given a TTL of the record's expiry plus a retention window, so Get
// still returns a record shortly after it expires. The server decides whether a
// record is expired and reports "expired" rather than "invalid". Sweep removes
// expired records early by scanning the prefix.
//
// # Usage
//
//	store, err := valkey.New(valkey.Config{
//		Address:   "localhost:6379",
//		KeyPrefix: "oauth-test:",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
package valkey
