package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/giantswarm/oauth-test-server/instrumentation"
	"github.com/giantswarm/oauth-test-server/internal/config"
	"github.com/giantswarm/oauth-test-server/storage"
	"github.com/giantswarm/oauth-test-server/storage/file"
	"github.com/giantswarm/oauth-test-server/storage/memory"
	"github.com/giantswarm/oauth-test-server/storage/redis"
	"github.com/giantswarm/oauth-test-server/storage/valkey"
)

// instrumentedStore is implemented by every storage backend
type instrumentedStore interface {
	storage.TokenStore
	SetInstrumentation(inst *instrumentation.Instrumentation)
}

// openStore builds the configured backend. The returned close function is never nil.
func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (instrumentedStore, func(), error) {
	noop := func() {}

	switch cfg.Backend {
	case config.BackendMemory, "":
		store := memory.New()
		store.SetLogger(logger)
		return store, noop, nil

	case config.BackendFile:
		store, err := file.New(ctx, cfg.File.Path, logger)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil

	case config.BackendValkey:
		vc := valkey.Config{
			Address:   cfg.Valkey.Address,
			Password:  cfg.Valkey.Password,
			DB:        cfg.Valkey.DB,
			KeyPrefix: cfg.Valkey.KeyPrefix,
			Logger:    logger,
		}
		if cfg.Valkey.TLS {
			vc.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		store, err := valkey.New(vc)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil

	case config.BackendRedis:
		store, err := redis.New(ctx, redis.Config{
			Addrs:      cfg.Redis.Addrs,
			MasterName: cfg.Redis.MasterName,
			Username:   cfg.Redis.Username,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			KeyPrefix:  cfg.Redis.KeyPrefix,
			Logger:     logger,
		})
		if err != nil {
			return nil, noop, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close Redis connection", "error", err)
			}
		}, nil

	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
