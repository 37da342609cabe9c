package storage

import (
	"context"
	"errors"
	"time"
)

// Kind identifies one of the three keyed record collections held by a TokenStore.
type Kind string

const (
	// KindAuthorizationCode holds single-use authorization codes.
	KindAuthorizationCode Kind = "authorization_code"

	// KindAccessToken holds bearer access tokens.
	KindAccessToken Kind = "access_token" //nolint:gosec // collection name, not a credential

	// KindRefreshToken holds refresh tokens.
	KindRefreshToken Kind = "refresh_token" //nolint:gosec // collection name, not a credential
)

// Kinds lists every record kind in a stable order.
var Kinds = []Kind{KindAuthorizationCode, KindAccessToken, KindRefreshToken}

// Valid reports whether k is one of the known record kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindAuthorizationCode, KindAccessToken, KindRefreshToken:
		return true
	}
	return false
}

// Sentinel errors returned by TokenStore implementations.
// Implementations wrap them with additional context; use errors.Is to test.
var (
	// ErrNotFound is returned by Get when no record exists for the key.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidKind is returned when an operation names an unknown record kind.
	ErrInvalidKind = errors.New("invalid record kind")

	// ErrInvalidRecord is returned when Put is called with a nil record, an empty key
	// or a record without an expiry.
	ErrInvalidRecord = errors.New("invalid record")
)

// Record is the attribute set stored for every authorization code, access token
// and refresh token. RedirectURI is only populated for authorization codes.
type Record struct {
	ClientID    string
	RedirectURI string
	UserID      string
	Scope       string
	ExpiresAt   time.Time
}

// Sweepable reports whether Sweep should purge the record at now.
func (r *Record) Sweepable(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

// Clone returns a copy of the record so callers never share mutable state with a store.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// TokenStore owns the authorization code, access token and refresh token collections.
//
// Get never filters on expiry: callers compare ExpiresAt with their clock and delete
// expired records themselves.
// Every Put and Delete must be visible to the next Get before it returns.
type TokenStore interface {
	// Put inserts or overwrites the record stored under key.
	Put(ctx context.Context, kind Kind, key string, record *Record) error

	// Get returns the record stored under key, or an error wrapping ErrNotFound.
	Get(ctx context.Context, kind Kind, key string) (*Record, error)

	// Delete removes the record stored under key. Deleting an absent key is not an error.
	Delete(ctx context.Context, kind Kind, key string) error

	// Sweep removes every record, across all kinds, that expired before now.
	// It returns the number of records removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// ValidatePut checks the arguments common to every Put implementation.
func ValidatePut(kind Kind, key string, record *Record) error {
	if !kind.Valid() {
		return ErrInvalidKind
	}
	if key == "" || record == nil || record.ExpiresAt.IsZero() {
		return ErrInvalidRecord
	}
	return nil
}

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Pinger is implemented by stores backed by a remote server.
// The health endpoint reports unavailable when Ping fails.
type Pinger interface {
	Ping(ctx context.Context) error
}
