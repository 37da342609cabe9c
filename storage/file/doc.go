// Package file provides a storage.TokenStore persisted to a JSON file.
//
// The file holds three objects, authorizationCodes, accessTokens and
// refreshTokens, each mapping a token string to its record. Expiry times are
// Unix seconds. The whole file is rewritten after every change.
//
//	store, err := file.New(ctx, "./data/tokens.json", logger)
package file
