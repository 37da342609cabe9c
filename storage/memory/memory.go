package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giantswarm/oauth-test-server/instrumentation"
	"github.com/giantswarm/oauth-test-server/internal/util"
	"github.com/giantswarm/oauth-test-server/storage"
)

// tokenIDLogLength is the number of characters of a key included in debug logs
const tokenIDLogLength = 8

// Store keeps authorization codes, access tokens and refresh tokens in maps
// guarded by a single RWMutex. Records are cloned on the way in and out.
type Store struct {
	storage.Observer

	mu      sync.RWMutex
	records map[storage.Kind]map[string]*storage.Record

	// Per-kind sizes for the storage gauges, readable without the lock
	counts map[storage.Kind]*atomic.Int64

	logger *slog.Logger
}

var _ storage.TokenStore = (*Store)(nil)

// New creates an empty in-memory store
func New() *Store {
	s := &Store{
		Observer: storage.Observer{Backend: "memory"},
		records:  make(map[storage.Kind]map[string]*storage.Record, len(storage.Kinds)),
		counts:   make(map[storage.Kind]*atomic.Int64, len(storage.Kinds)),
		logger:   slog.Default(),
	}
	for _, kind := range storage.Kinds {
		s.records[kind] = make(map[string]*storage.Record)
		s.counts[kind] = &atomic.Int64{}
	}
	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// SetInstrumentation enables tracing and metrics, and registers the per-kind size gauges
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Observer.SetInstrumentation(inst)
	if inst == nil {
		return
	}

	err := inst.RegisterStorageSizeCallbacks(
		s.counts[storage.KindAuthorizationCode].Load,
		s.counts[storage.KindAccessToken].Load,
		s.counts[storage.KindRefreshToken].Load,
	)
	if err != nil {
		s.logger.Warn("Failed to register storage size metrics", "error", err)
	}
}

// Put stores a copy of record under key, replacing any previous record
func (s *Store) Put(ctx context.Context, kind storage.Kind, key string, record *storage.Record) (err error) {
	_, done := s.Observe(ctx, "put_"+string(kind))
	defer func() { done(err) }()

	if err := storage.ValidatePut(kind, key, record); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[kind][key]; !exists {
		s.counts[kind].Add(1)
	}
	s.records[kind][key] = record.Clone()

	s.logger.Debug("Stored record",
		"kind", kind,
		"key_prefix", util.SafeTruncate(key, tokenIDLogLength),
		"expires_at", record.ExpiresAt)
	return nil
}

// Get returns a copy of the record stored under key
func (s *Store) Get(ctx context.Context, kind storage.Kind, key string) (record *storage.Record, err error) {
	_, done := s.Observe(ctx, "get_"+string(kind))
	defer func() { done(err) }()

	if !kind.Valid() {
		return nil, storage.ErrInvalidKind
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[kind][key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", kind, storage.ErrNotFound)
	}
	return r.Clone(), nil
}

// Delete removes the record stored under key. Absent keys are ignored.
func (s *Store) Delete(ctx context.Context, kind storage.Kind, key string) (err error) {
	_, done := s.Observe(ctx, "delete_"+string(kind))
	defer func() { done(err) }()

	if !kind.Valid() {
		return storage.ErrInvalidKind
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[kind][key]; ok {
		delete(s.records[kind], key)
		s.counts[kind].Add(-1)
	}
	return nil
}

// Sweep removes every record that expired before now
func (s *Store) Sweep(ctx context.Context, now time.Time) (removed int, err error) {
	ctx, done := s.Observe(ctx, "sweep")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, kind := range storage.Kinds {
		for key, r := range s.records[kind] {
			if r.Sweepable(now) {
				delete(s.records[kind], key)
				s.counts[kind].Add(-1)
				removed++
			}
		}
	}

	if removed > 0 {
		s.logger.Debug("Swept expired records", "removed", removed)
	}
	s.RecordSweep(ctx, removed)
	return removed, nil
}

// Len returns the number of records of the given kind
func (s *Store) Len(kind storage.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[kind])
}

// Snapshot returns a deep copy of every record, keyed by kind and then by key
func (s *Store) Snapshot() map[storage.Kind]map[string]*storage.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[storage.Kind]map[string]*storage.Record, len(s.records))
	for kind, records := range s.records {
		copied := make(map[string]*storage.Record, len(records))
		for key, r := range records {
			copied[key] = r.Clone()
		}
		out[kind] = copied
	}
	return out
}
