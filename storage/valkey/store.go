package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/giantswarm/oauth-test-server/internal/util"
	"github.com/giantswarm/oauth-test-server/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "oauth-test:"

	// DefaultRetention is how long a record is kept after it expires so that
	// callers still see it and can report it as expired rather than unknown.
	DefaultRetention = time.Hour

	// tokenIDLogLength is the number of characters to include when logging token keys
	tokenIDLogLength = 8

	// scanBatchSize is the number of keys to fetch per SCAN iteration
	scanBatchSize = 100

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "oauth-test:")
	KeyPrefix string

	// Retention extends each key's TTL past the record's expiry (default 1h)
	Retention time.Duration

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed storage.TokenStore. Each record is a JSON string
// under "<prefix><kind>:<token>" with a TTL of expiry plus Retention.
type Store struct {
	storage.Observer

	client    valkeygo.Client
	prefix    string
	retention time.Duration
	logger    *slog.Logger
}

var _ storage.TokenStore = (*Store)(nil)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
		Password:    cfg.Password,
		TLSConfig:   cfg.TLS,
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	s := newStore(client, cfg)
	s.logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", s.prefix)
	return s, nil
}

func newStore(client valkeygo.Client, cfg Config) *Store {
	s := &Store{
		Observer:  storage.Observer{Backend: "valkey"},
		client:    client,
		prefix:    cfg.KeyPrefix,
		retention: cfg.Retention,
		logger:    cfg.Logger,
	}
	if s.prefix == "" {
		s.prefix = DefaultKeyPrefix
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// Put stores the record as JSON with a TTL covering its expiry plus the retention window
func (s *Store) Put(ctx context.Context, kind storage.Kind, key string, record *storage.Record) (err error) {
	ctx, done := s.Observe(ctx, "put_"+string(kind))
	defer func() { done(err) }()

	if err := storage.ValidatePut(kind, key, record); err != nil {
		return err
	}

	data, err := json.Marshal(storage.ToRecordJSON(record))
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	ttl := max(time.Until(record.ExpiresAt)+s.retention, time.Second)

	if err := s.client.Do(ctx,
		s.client.B().Set().Key(s.recordKey(kind, key)).Value(string(data)).Ex(ttl).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save %s: %w", kind, err)
	}

	s.logger.Debug("Saved record",
		"kind", kind,
		"key_prefix", util.SafeTruncate(key, tokenIDLogLength),
		"ttl", ttl)
	return nil
}

// Get returns the record stored under key
func (s *Store) Get(ctx context.Context, kind storage.Kind, key string) (record *storage.Record, err error) {
	ctx, done := s.Observe(ctx, "get_"+string(kind))
	defer func() { done(err) }()

	if !kind.Valid() {
		return nil, storage.ErrInvalidKind
	}

	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.recordKey(kind, key)).Build()).ToString()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return nil, fmt.Errorf("%s: %w", kind, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}

	var j storage.RecordJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", kind, err)
	}
	return storage.FromRecordJSON(&j), nil
}

// Delete removes the record stored under key
func (s *Store) Delete(ctx context.Context, kind storage.Kind, key string) (err error) {
	ctx, done := s.Observe(ctx, "delete_"+string(kind))
	defer func() { done(err) }()

	if !kind.Valid() {
		return storage.ErrInvalidKind
	}

	if err := s.client.Do(ctx, s.client.B().Del().Key(s.recordKey(kind, key)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	return nil
}

// Sweep scans every record key and deletes the ones that expired before now.
// Keys that vanish between SCAN and GET are skipped.
func (s *Store) Sweep(ctx context.Context, now time.Time) (removed int, err error) {
	ctx, done := s.Observe(ctx, "sweep")
	defer func() { done(err) }()

	for _, kind := range storage.Kinds {
		n, err := s.sweepKind(ctx, kind, now)
		removed += n
		if err != nil {
			return removed, err
		}
	}

	s.RecordSweep(ctx, removed)
	return removed, nil
}

func (s *Store) sweepKind(ctx context.Context, kind storage.Kind, now time.Time) (int, error) {
	pattern := s.prefix + string(kind) + ":*"
	removed := 0

	var cursor uint64
	for {
		result, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatchSize).Build(),
		).AsScanEntry()
		if err != nil {
			return removed, fmt.Errorf("failed to scan %s: %w", kind, err)
		}

		for _, key := range result.Elements {
			expired, err := s.isExpired(ctx, key, now)
			if err != nil {
				return removed, err
			}
			if !expired {
				continue
			}
			if err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error(); err != nil {
				return removed, fmt.Errorf("failed to delete %s: %w", key, err)
			}
			removed++
		}

		cursor = result.Cursor
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (s *Store) isExpired(ctx context.Context, key string, now time.Time) (bool, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if valkeygo.IsValkeyNil(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	var j storage.RecordJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		// Unreadable records are treated as expired so a sweep clears them.
		s.logger.Warn("Discarding unreadable record", "key", key, "error", err)
		return true, nil
	}
	return storage.FromRecordJSON(&j).Sweepable(now), nil
}

// recordKey builds "<prefix><kind>:<key>"
func (s *Store) recordKey(kind storage.Kind, key string) string {
	return s.prefix + string(kind) + ":" + key
}

// Ping checks connectivity to the Valkey server
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return errors.Join(errors.New("valkey ping failed"), err)
	}
	return nil
}
