package testutil

import (
	"testing"
	"time"
)

func TestMockTime(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockTime(start)

	if !clock.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", clock.Now(), start)
	}

	clock.Advance(90 * time.Second)
	if want := start.Add(90 * time.Second); !clock.Now().Equal(want) {
		t.Errorf("after Advance Now() = %v, want %v", clock.Now(), want)
	}

	later := start.Add(24 * time.Hour)
	clock.Set(later)
	if !clock.Now().Equal(later) {
		t.Errorf("after Set Now() = %v, want %v", clock.Now(), later)
	}
}

func TestGenerateTestRecord(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := GenerateTestRecord(now, time.Minute)

	if r.ClientID != "test-client" || r.UserID != "1" {
		t.Errorf("unexpected record %+v", r)
	}
	if !r.ExpiresAt.Equal(now.Add(time.Minute)) {
		t.Errorf("ExpiresAt = %v", r.ExpiresAt)
	}
}
