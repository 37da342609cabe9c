package storage

import (
	"time"

	"golang.org/x/oauth2"
)

// GenerateKey returns a new opaque token key.
// It is an alias for oauth2.GenerateVerifier, which reads 32 bytes from crypto/rand
// and encodes them as unpadded base64url. Uniqueness is trusted to the entropy
// source; stores never retry on collision.
func GenerateKey() string {
	return oauth2.GenerateVerifier()
}

// RecordJSON is the at-rest form of a Record shared by the file, valkey and redis
// backends. ExpiresAt is stored as Unix seconds, rounded up so a persisted token
// never expires before the lifetime it was issued with.
type RecordJSON struct {
	ClientID    string `json:"clientId"`
	RedirectURI string `json:"redirectUri,omitempty"`
	UserID      string `json:"userId"`
	Scope       string `json:"scope"`
	ExpiresAt   int64  `json:"expiresAt"`
}

// ToRecordJSON converts a record to its at-rest form.
func ToRecordJSON(r *Record) *RecordJSON {
	return &RecordJSON{
		ClientID:    r.ClientID,
		RedirectURI: r.RedirectURI,
		UserID:      r.UserID,
		Scope:       r.Scope,
		ExpiresAt:   unixCeil(r.ExpiresAt),
	}
}

// unixCeil returns t as Unix seconds, rounding any fractional second up
func unixCeil(t time.Time) int64 {
	secs := t.Unix()
	if t.Nanosecond() > 0 {
		secs++
	}
	return secs
}

// FromRecordJSON converts an at-rest record back into a Record.
func FromRecordJSON(j *RecordJSON) *Record {
	return &Record{
		ClientID:    j.ClientID,
		RedirectURI: j.RedirectURI,
		UserID:      j.UserID,
		Scope:       j.Scope,
		ExpiresAt:   time.Unix(j.ExpiresAt, 0),
	}
}
