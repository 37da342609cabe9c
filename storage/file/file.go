package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/giantswarm/oauth-test-server/instrumentation"
	"github.com/giantswarm/oauth-test-server/storage"
	"github.com/giantswarm/oauth-test-server/storage/memory"
)

const (
	// DefaultFileName is the snapshot file created inside the data directory
	DefaultFileName = "tokens.json"

	lockTimeout       = 5 * time.Second
	lockRetryInterval = 50 * time.Millisecond
)

// snapshot is the on-disk layout of the token file
type snapshot struct {
	AuthorizationCodes map[string]*storage.RecordJSON `json:"authorizationCodes"`
	AccessTokens       map[string]*storage.RecordJSON `json:"accessTokens"`
	RefreshTokens      map[string]*storage.RecordJSON `json:"refreshTokens"`
}

func (s *snapshot) collection(kind storage.Kind) map[string]*storage.RecordJSON {
	switch kind {
	case storage.KindAuthorizationCode:
		return s.AuthorizationCodes
	case storage.KindAccessToken:
		return s.AccessTokens
	case storage.KindRefreshToken:
		return s.RefreshTokens
	}
	return nil
}

// Store is a TokenStore that keeps records in memory and rewrites a JSON
// snapshot after every mutation, so tokens survive a restart of the server.
//
// Writes go to a temporary file that is renamed over the snapshot while an
// exclusive lock is held on a sibling ".lock" file.
type Store struct {
	mu     sync.Mutex // serializes snapshot writes
	mem    *memory.Store
	path   string
	lock   *flock.Flock
	logger *slog.Logger
}

var _ storage.TokenStore = (*Store)(nil)

// New opens the snapshot at path, creating its directory if needed, and loads
// any records it contains. Records already expired at load time are swept.
func New(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("file path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	mem := memory.New()
	mem.SetLogger(logger)

	s := &Store{
		mem:    mem,
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
	}

	loaded, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	removed, err := s.Sweep(ctx, time.Now())
	if err != nil {
		logger.Warn("Failed to sweep expired records on load", "path", path, "error", err)
	}
	logger.Info("Loaded token file", "path", path, "records", loaded-removed, "expired", removed)

	return s, nil
}

// SetInstrumentation enables tracing and metrics on the underlying memory store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mem.Backend = "file"
	s.mem.SetInstrumentation(inst)
}

// Path returns the snapshot file location
func (s *Store) Path() string {
	return s.path
}

// Put stores the record and persists the snapshot
func (s *Store) Put(ctx context.Context, kind storage.Kind, key string, record *storage.Record) error {
	if err := s.mem.Put(ctx, kind, key, record); err != nil {
		return err
	}
	return s.persist(ctx)
}

// Get returns the record stored under key
func (s *Store) Get(ctx context.Context, kind storage.Kind, key string) (*storage.Record, error) {
	return s.mem.Get(ctx, kind, key)
}

// Delete removes the record and persists the snapshot
func (s *Store) Delete(ctx context.Context, kind storage.Kind, key string) error {
	if err := s.mem.Delete(ctx, kind, key); err != nil {
		return err
	}
	return s.persist(ctx)
}

// Sweep removes expired records and persists the snapshot if anything changed
func (s *Store) Sweep(ctx context.Context, now time.Time) (int, error) {
	removed, err := s.mem.Sweep(ctx, now)
	if err != nil || removed == 0 {
		return removed, err
	}
	return removed, s.persist(ctx)
}

func (s *Store) load(ctx context.Context) (int, error) {
	unlock, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read token file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return 0, fmt.Errorf("failed to parse token file %s: %w", s.path, err)
	}

	loaded := 0
	for _, kind := range storage.Kinds {
		for key, rec := range snap.collection(kind) {
			if rec == nil {
				continue
			}
			if err := s.mem.Put(ctx, kind, key, storage.FromRecordJSON(rec)); err != nil {
				return loaded, fmt.Errorf("failed to load %s: %w", kind, err)
			}
			loaded++
		}
	}
	return loaded, nil
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		AuthorizationCodes: map[string]*storage.RecordJSON{},
		AccessTokens:       map[string]*storage.RecordJSON{},
		RefreshTokens:      map[string]*storage.RecordJSON{},
	}
	for kind, records := range s.mem.Snapshot() {
		target := snap.collection(kind)
		for key, r := range records {
			target[key] = storage.ToRecordJSON(r)
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token file: %w", err)
	}

	unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

// acquire takes the exclusive file lock, giving up after lockTimeout
func (s *Store) acquire(ctx context.Context) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(lockCtx, lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock on %s: %w", s.path, err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to acquire lock on %s: timeout after %v", s.path, lockTimeout)
	}

	return func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("Failed to release token file lock", "path", s.path, "error", err)
		}
	}, nil
}
