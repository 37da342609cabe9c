package redis

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/oauth-test-server/storage"
	"github.com/giantswarm/oauth-test-server/storage/storagetest"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewWithClient(client, Config{
		KeyPrefix: "test:",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}), mr
}

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.TokenStore {
		s, _ := newTestStore(t)
		return s
	})
}

func TestNew_RequiresAddress(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestNew_ConnectsAndPings(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := New(context.Background(), Config{
		Addrs:  []string{mr.Addr()},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	assert.Equal(t, DefaultKeyPrefix, s.keyPrefix)
	assert.Equal(t, DefaultRetention, s.retention)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestNew_UnreachableServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), Config{Addrs: []string{addr}, DialTimeout: 200 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestStore_KeyLayout(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	exp := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	require.NoError(t, s.Put(ctx, storage.KindRefreshToken, "rt-1", &storage.Record{
		ClientID:  "demo-app",
		UserID:    "2",
		Scope:     "openid",
		ExpiresAt: exp,
	}))

	raw, err := mr.Get("test:refresh_token:rt-1")
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"clientId":"demo-app","userId":"2","scope":"openid","expiresAt":`+strconv.FormatInt(exp.Unix(), 10)+`}`,
		raw)

	ttl := mr.TTL("test:refresh_token:rt-1")
	assert.Greater(t, ttl, 10*time.Minute+DefaultRetention-time.Minute)
}

func TestStore_ExpiredRecordOutlivesExpiry(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, storage.KindAccessToken, "at", &storage.Record{
		ClientID:  "test-client",
		ExpiresAt: time.Now().Add(time.Minute),
	}))

	// Past the record's expiry but inside the retention window
	mr.FastForward(2 * time.Minute)
	_, err := s.Get(ctx, storage.KindAccessToken, "at")
	require.NoError(t, err)

	// Past the retention window Redis evicts the key
	mr.FastForward(DefaultRetention)
	_, err = s.Get(ctx, storage.KindAccessToken, "at")
	assert.True(t, storage.IsNotFound(err), "got %v", err)
}

func TestStore_SweepDiscardsUnreadable(t *testing.T) {
	s, mr := newTestStore(t)

	require.NoError(t, mr.Set("test:authorization_code:bad", "{"))
	removed, err := s.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.False(t, mr.Exists("test:authorization_code:bad"))
}

func TestStore_IgnoresForeignKeys(t *testing.T) {
	s, mr := newTestStore(t)

	require.NoError(t, mr.Set("other:access_token:x", "{}"))
	removed, err := s.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.True(t, mr.Exists("other:access_token:x"))
}
