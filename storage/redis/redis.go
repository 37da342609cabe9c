package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/giantswarm/oauth-test-server/internal/util"
	"github.com/giantswarm/oauth-test-server/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Redis keys
	DefaultKeyPrefix = "oauth-test:"

	// DefaultRetention is how long a record outlives its expiry before Redis evicts it
	DefaultRetention = time.Hour

	// DefaultDialTimeout bounds the initial connection attempt
	DefaultDialTimeout = 5 * time.Second

	tokenIDLogLength = 8
	scanBatchSize    = 100
)

// Config holds connection settings for the Redis backend.
type Config struct {
	// Addrs lists one address for a single node, or several for a cluster
	Addrs []string

	// MasterName selects Sentinel failover mode when set
	MasterName string

	Username  string
	Password  string
	DB        int
	KeyPrefix string
	Retention time.Duration

	DialTimeout time.Duration
	Logger      *slog.Logger
}

// Store is a Redis-backed storage.TokenStore sharing its key layout with the
// valkey backend, so either can read what the other wrote.
type Store struct {
	storage.Observer

	client    redis.UniversalClient
	keyPrefix string
	retention time.Duration
	logger    *slog.Logger
}

var _ storage.TokenStore = (*Store)(nil)

// New connects to Redis and verifies the connection with PING
func New(ctx context.Context, cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("at least one redis address is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:       cfg.Addrs,
		MasterName:  cfg.MasterName,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := NewWithClient(client, cfg)
	s.logger.Info("Connected to Redis storage", "addrs", cfg.Addrs, "prefix", s.keyPrefix)
	return s, nil
}

// NewWithClient creates a Store around a pre-configured client.
// This is useful for testing with miniredis.
func NewWithClient(client redis.UniversalClient, cfg Config) *Store {
	s := &Store{
		Observer:  storage.Observer{Backend: "redis"},
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		retention: cfg.Retention,
		logger:    cfg.Logger,
	}
	if s.keyPrefix == "" {
		s.keyPrefix = DefaultKeyPrefix
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Close closes the Redis client connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks Redis connectivity (health check).
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Put stores the record as JSON with a TTL of its remaining lifetime plus retention
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
	if err := s.client.Set(ctx, s.redisKey(kind, key), data, ttl).Err(); err != nil {
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

	data, err := s.client.Get(ctx, s.redisKey(kind, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", kind, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}

	var j storage.RecordJSON
	if err := json.Unmarshal(data, &j); err != nil {
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
	if err := s.client.Del(ctx, s.redisKey(kind, key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	return nil
}

// Sweep walks every record key with SCAN and deletes the ones that expired before now
func (s *Store) Sweep(ctx context.Context, now time.Time) (removed int, err error) {
	ctx, done := s.Observe(ctx, "sweep")
	defer func() { done(err) }()

	for _, kind := range storage.Kinds {
		iter := s.client.Scan(ctx, 0, s.keyPrefix+string(kind)+":*", scanBatchSize).Iterator()
		for iter.Next(ctx) {
			key := iter.Val()

			data, err := s.client.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return removed, fmt.Errorf("failed to get %s: %w", key, err)
			}

			var j storage.RecordJSON
			if err := json.Unmarshal(data, &j); err == nil && !storage.FromRecordJSON(&j).Sweepable(now) {
				continue
			}

			if err := s.client.Del(ctx, key).Err(); err != nil {
				return removed, fmt.Errorf("failed to delete %s: %w", key, err)
			}
			removed++
		}
		if err := iter.Err(); err != nil {
			return removed, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
	}

	s.RecordSweep(ctx, removed)
	return removed, nil
}

func (s *Store) redisKey(kind storage.Kind, key string) string {
	return s.keyPrefix + string(kind) + ":" + key
}
