package auth

import (
	"testing"
	"time"
)

func TestBlacklistAddContains(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	bl := NewBlacklist()
	bl.now = func() time.Time { return now }

	if bl.Contains("tok-1") {
		t.Fatal("empty blacklist should not contain token")
	}
	bl.Add("tok-1", time.Hour)
	if !bl.Contains("tok-1") {
		t.Fatal("token should be revoked after Add")
	}
	if bl.Contains("tok-2") {
		t.Fatal("unrelated token should not be revoked")
	}
}

func TestBlacklistExpiresOnRead(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	bl := NewBlacklist()
	bl.now = func() time.Time { return now }

	bl.Add("tok-1", time.Minute)
	now = now.Add(61 * time.Second)
	if bl.Contains("tok-1") {
		t.Fatal("expired token should not be revoked")
	}
	// expired entry must have been deleted by the read
	if got := bl.Len(); got != 0 {
		t.Fatalf("expected empty blacklist after expiry read, got %d entries", got)
	}
}

func TestBlacklistReAddOverwrites(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	bl := NewBlacklist()
	bl.now = func() time.Time { return now }

	bl.Add("tok-1", time.Minute)
	bl.Add("tok-1", time.Hour)
	now = now.Add(30 * time.Minute)
	if !bl.Contains("tok-1") {
		t.Fatal("re-add should extend the revocation window")
	}
	if got := bl.Len(); got != 1 {
		t.Fatalf("re-add should overwrite, not duplicate: %d entries", got)
	}
}

func TestBlacklistDefaultTTL(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	bl := NewBlacklist()
	bl.now = func() time.Time { return now }

	bl.Add("tok-1", 0)
	now = now.Add(23 * time.Hour)
	if !bl.Contains("tok-1") {
		t.Fatal("default ttl should cover 23h")
	}
	now = now.Add(2 * time.Hour)
	if bl.Contains("tok-1") {
		t.Fatal("default ttl should lapse after 24h")
	}
}

func TestBlacklistSweep(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	bl := NewBlacklist()
	bl.now = func() time.Time { return now }

	bl.Add("tok-1", time.Minute)
	bl.Add("tok-2", time.Hour)
	now = now.Add(2 * time.Minute)
	bl.Sweep()
	if got := bl.Len(); got != 1 {
		t.Fatalf("sweep should drop only expired entries, got %d", got)
	}
	if !bl.Contains("tok-2") {
		t.Fatal("live entry must survive sweep")
	}
}
