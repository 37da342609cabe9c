package testutil

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/giantswarm/oauth-test-server/storage"
)

// MockTime provides a controllable time source for deterministic testing.
// Pass its Now method wherever a func() time.Time clock is accepted.
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// DiscardLogger returns a logger that drops everything
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// GenerateTestRecord creates a record for test-client and user 1 expiring after ttl from now
func GenerateTestRecord(now time.Time, ttl time.Duration) *storage.Record {
	return &storage.Record{
		ClientID:    "test-client",
		RedirectURI: "http://localhost:8080/callback",
		UserID:      "1",
		Scope:       "openid profile email",
		ExpiresAt:   now.Add(ttl),
	}
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}
