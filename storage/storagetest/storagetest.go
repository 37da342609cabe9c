// Package storagetest provides a behavioural test suite that every
// storage.TokenStore implementation must pass.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/giantswarm/oauth-test-server/storage"
)

// Factory returns a fresh, empty store for one subtest
type Factory func(t *testing.T) storage.TokenStore

// base is whole-second so backends that persist Unix seconds round-trip exactly
var base = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

func record(expiresAt time.Time) *storage.Record {
	return &storage.Record{
		ClientID:    "test-client",
		RedirectURI: "http://localhost:8080/callback",
		UserID:      "1",
		Scope:       "openid profile",
		ExpiresAt:   expiresAt,
	}
}

// Run executes the suite against stores produced by newStore
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("PutGet", func(t *testing.T) { testPutGet(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, newStore(t)) })
	t.Run("KindsAreSeparate", func(t *testing.T) { testKindsAreSeparate(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("InvalidArguments", func(t *testing.T) { testInvalidArguments(t, newStore(t)) })
	t.Run("GetIgnoresExpiry", func(t *testing.T) { testGetIgnoresExpiry(t, newStore(t)) })
	t.Run("Sweep", func(t *testing.T) { testSweep(t, newStore(t)) })
	t.Run("SubSecondExpiry", func(t *testing.T) { testSubSecondExpiry(t, newStore(t)) })
	t.Run("ReturnedRecordIsACopy", func(t *testing.T) { testReturnedRecordIsACopy(t, newStore(t)) })
	t.Run("Concurrent", func(t *testing.T) { testConcurrent(t, newStore(t)) })
}

func testPutGet(t *testing.T, s storage.TokenStore) {
	ctx := context.Background()
	want := record(base.Add(time.Hour))

	for _, kind := range storage.Kinds {
		if err := s.Put(ctx, kind, "key-"+string(kind), want); err != nil {
			t.Fatalf("Put(%s) error = %v", kind, err)
		}
		got, err := s.Get(ctx, kind, "key-"+string(kind))
		if err != nil {
			t.Fatalf("Get(%s) error = %v", kind, err)
		}
		assertRecord(t, got, want)
	}
}

func testGetMissing(t *testing.T, s storage.TokenStore) {
	_, err := s.Get(context.Background(), storage.KindAccessToken, "does-not-exist")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func testOverwrite(t *testing.T, s storage.TokenStore) {
	ctx := context.Background()
	first := record(base.Add(time.Hour))
	second := record(base.Add(2 * time.Hour))
	second.Scope = "email"

	if err := s.Put(ctx, storage.KindRefreshToken, "k", first); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, storage.KindRefreshToken, "k", second); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, storage.KindRefreshToken, "k")
	if err != nil {
		t.Fatal(err)
	}
	assertRecord(t, got, second)
}

func testKindsAreSeparate(t *testing.T, s storage.TokenStore) {
	ctx := context.Background()
	if err := s.Put(ctx, storage.KindAccessToken, "shared", record(base.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}

	for _, kind := range []storage.Kind{storage.KindAuthorizationCode, storage.KindRefreshToken} {
		if _, err := s.Get(ctx, kind, "shared"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Get(%s) error = %v, want ErrNotFound", kind, err)
		}
	}
}

func testDelete(t *testing.T, s storage.TokenStore) {
	ctx := context.Background()
	if err := s.Put(ctx, storage.KindAuthorizationCode, "code", record(base.Add(time.Minute))); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, storage.KindAuthorizationCode, "code"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, storage.KindAuthorizationCode, "code"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
	}

	if err := s.Delete(ctx, storage.KindAuthorizationCode, "never-existed"); err != nil {
		t.Errorf("Delete() of absent key error = %v, want nil", err)
	}
}

func testInvalidArguments(t *testing.T, s storage.TokenStore) {
	ctx := context.Background()

	if err := s.Put(ctx, storage.Kind("bogus"), "k", record(base)); !errors.Is(err, storage.ErrInvalidKind) {
		t.Errorf("Put(bogus kind) error = %v, want ErrInvalidKind", err)
	}
	if err := s.Put(ctx, storage.KindAccessToken, "", record(base)); !errors.Is(err, storage.ErrInvalidRecord) {
		t.Errorf("Put(empty key) error = %v, want ErrInvalidRecord", err)
	}
	if err := s.Put(ctx, storage.KindAccessToken, "k", nil); !errors.Is(err, storage.ErrInvalidRecord) {
		t.Errorf("Put(nil record) error = %v, want ErrInvalidRecord", err)
	}
	if err := s.Put(ctx, storage.KindAccessToken, "k", record(time.Time{})); !errors.Is(err, storage.ErrInvalidRecord) {
		t.Errorf("Put(zero expiry) error = %v, want ErrInvalidRecord", err)
	}
	if _, err := s.Get(ctx, storage.KindAccessToken, "k"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() after rejected Put error = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, storage.Kind("bogus"), "k"); !errors.Is(err, storage.ErrInvalidKind) {
		t.Errorf("Get(bogus kind) error = %v, want ErrInvalidKind", err)
	}
}

// Expired records stay readable until a caller deletes them or a sweep runs.
func testGetIgnoresExpiry(t *testing.T, s storage.TokenStore) {
	ctx := context.Background()
	past := time.Now().Add(-time.Minute).Truncate(time.Second)
	if err := s.Put(ctx, storage.KindAccessToken, "stale", record(past)); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, storage.KindAccessToken, "stale")
	if err != nil {
		t.Fatalf("Get() of expired record error = %v", err)
	}
	if !got.ExpiresAt.Equal(past) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, past)
	}
}

func testSweep(t *testing.T, s storage.TokenStore) {
	ctx := context.Background()
	now := base

	seed := map[storage.Kind]map[string]time.Time{
		storage.KindAuthorizationCode: {"code-old": now.Add(-time.Minute), "code-new": now.Add(time.Minute)},
		storage.KindAccessToken:       {"at-old": now.Add(-time.Hour), "at-edge": now},
		storage.KindRefreshToken:      {"rt-old": now.Add(-time.Second), "rt-new": now.Add(24 * time.Hour)},
	}
	for kind, entries := range seed {
		for key, exp := range entries {
			if err := s.Put(ctx, kind, key, record(exp)); err != nil {
				t.Fatal(err)
			}
		}
	}

	removed, err := s.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("Sweep() removed = %d, want 3", removed)
	}

	survivors := map[storage.Kind]string{
		storage.KindAuthorizationCode: "code-new",
		storage.KindAccessToken:       "at-edge",
		storage.KindRefreshToken:      "rt-new",
	}
	for kind, key := range survivors {
		if _, err := s.Get(ctx, kind, key); err != nil {
			t.Errorf("Get(%s, %s) after Sweep error = %v", kind, key, err)
		}
	}
	for kind, key := range map[storage.Kind]string{
		storage.KindAuthorizationCode: "code-old",
		storage.KindAccessToken:       "at-old",
		storage.KindRefreshToken:      "rt-old",
	} {
		if _, err := s.Get(ctx, kind, key); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Get(%s, %s) after Sweep error = %v, want ErrNotFound", kind, key, err)
		}
	}

	again, err := s.Sweep(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if again != 0 {
		t.Errorf("second Sweep() removed = %d, want 0", again)
	}
}

// A fractional-second expiry may be widened by a backend, never shortened.
func testSubSecondExpiry(t *testing.T, s storage.TokenStore) {
	ctx := context.Background()
	want := base.Add(time.Hour + 900*time.Millisecond)
	if err := s.Put(ctx, storage.KindAccessToken, "fractional", record(want)); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, storage.KindAccessToken, "fractional")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ExpiresAt.Before(want) {
		t.Errorf("ExpiresAt = %v, earlier than the stored %v", got.ExpiresAt, want)
	}
	if got.ExpiresAt.Sub(want) >= time.Second {
		t.Errorf("ExpiresAt = %v, more than a second past %v", got.ExpiresAt, want)
	}

	removed, err := s.Sweep(ctx, want.Add(-time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Errorf("Sweep() before the expiry removed = %d, want 0", removed)
	}
}

func testReturnedRecordIsACopy(t *testing.T, s storage.TokenStore) {
	ctx := context.Background()
	in := record(base.Add(time.Hour))
	if err := s.Put(ctx, storage.KindAccessToken, "k", in); err != nil {
		t.Fatal(err)
	}
	in.Scope = "mutated after put"

	got, err := s.Get(ctx, storage.KindAccessToken, "k")
	if err != nil {
		t.Fatal(err)
	}
	if got.Scope != "openid profile" {
		t.Errorf("stored record changed through caller's pointer: scope = %q", got.Scope)
	}
	got.Scope = "mutated after get"

	again, err := s.Get(ctx, storage.KindAccessToken, "k")
	if err != nil {
		t.Fatal(err)
	}
	if again.Scope != "openid profile" {
		t.Errorf("stored record changed through returned pointer: scope = %q", again.Scope)
	}
}

func testConcurrent(t *testing.T, s storage.TokenStore) {
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 64)

	for i := range 16 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("token-%d", n)
			if err := s.Put(ctx, storage.KindAccessToken, key, record(base.Add(time.Hour))); err != nil {
				errs <- err
				return
			}
			if _, err := s.Get(ctx, storage.KindAccessToken, key); err != nil {
				errs <- err
				return
			}
			if err := s.Delete(ctx, storage.KindAccessToken, key); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent operation error = %v", err)
	}
}

func assertRecord(t *testing.T, got, want *storage.Record) {
	t.Helper()
	if got.ClientID != want.ClientID {
		t.Errorf("ClientID = %q, want %q", got.ClientID, want.ClientID)
	}
	if got.RedirectURI != want.RedirectURI {
		t.Errorf("RedirectURI = %q, want %q", got.RedirectURI, want.RedirectURI)
	}
	if got.UserID != want.UserID {
		t.Errorf("UserID = %q, want %q", got.UserID, want.UserID)
	}
	if got.Scope != want.Scope {
		t.Errorf("Scope = %q, want %q", got.Scope, want.Scope)
	}
	if !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, want.ExpiresAt)
	}
}
