// Package mock provides a TokenStore for tests that need to inject failures
// or count calls.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/giantswarm/oauth-test-server/storage"
	"github.com/giantswarm/oauth-test-server/storage/memory"
)

// MockTokenStore delegates to an in-memory store by default. Replace any of
// the Func fields to change behaviour for a single test.
type MockTokenStore struct {
	PutFunc    func(ctx context.Context, kind storage.Kind, key string, record *storage.Record) error
	GetFunc    func(ctx context.Context, kind storage.Kind, key string) (*storage.Record, error)
	DeleteFunc func(ctx context.Context, kind storage.Kind, key string) error
	SweepFunc  func(ctx context.Context, now time.Time) (int, error)

	// Backing is the store used by the default Func implementations
	Backing *memory.Store

	mu         sync.Mutex
	callCounts map[string]int
}

var _ storage.TokenStore = (*MockTokenStore)(nil)

// NewMockTokenStore creates a new mock token store backed by memory
func NewMockTokenStore() *MockTokenStore {
	backing := memory.New()
	return &MockTokenStore{
		PutFunc:    backing.Put,
		GetFunc:    backing.Get,
		DeleteFunc: backing.Delete,
		SweepFunc:  backing.Sweep,
		Backing:    backing,
		callCounts: make(map[string]int),
	}
}

func (m *MockTokenStore) count(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCounts[method]++
}

// CallCount returns how many times method ("Put", "Get", "Delete", "Sweep") was called
func (m *MockTokenStore) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCounts[method]
}

// Put records the call and invokes PutFunc
func (m *MockTokenStore) Put(ctx context.Context, kind storage.Kind, key string, record *storage.Record) error {
	m.count("Put")
	return m.PutFunc(ctx, kind, key, record)
}

// Get records the call and invokes GetFunc
func (m *MockTokenStore) Get(ctx context.Context, kind storage.Kind, key string) (*storage.Record, error) {
	m.count("Get")
	return m.GetFunc(ctx, kind, key)
}

// Delete records the call and invokes DeleteFunc
func (m *MockTokenStore) Delete(ctx context.Context, kind storage.Kind, key string) error {
	m.count("Delete")
	return m.DeleteFunc(ctx, kind, key)
}

// Sweep records the call and invokes SweepFunc
func (m *MockTokenStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	m.count("Sweep")
	return m.SweepFunc(ctx, now)
}
