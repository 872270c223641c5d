package auth

import (
	"context"
	"sync"
	"time"
)

// Blacklist is an in-process revocation list for bearer credentials.
// Entries expire lazily: an expired entry is dropped the first time it is
// read. Re-adding a credential overwrites its previous expiry.
//
// The list is process-local on purpose. Revocation is best-effort across
// replicas; hard revocation goes through the identity provider's
// tokens_valid_after watermark.
type Blacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewBlacklist constructs an empty blacklist.
func NewBlacklist() *Blacklist {
	return &Blacklist{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Add revokes the credential for ttl. A non-positive ttl falls back to 24h,
// matching the maximum credential age the validator accepts.
func (b *Blacklist) Add(credential string, ttl time.Duration) {
	if credential == "" {
		return
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	b.mu.Lock()
	b.entries[credential] = b.now().Add(ttl)
	b.mu.Unlock()
}

// Contains reports whether the credential is currently revoked. Expired
// entries are removed on read.
func (b *Blacklist) Contains(credential string) bool {
	if credential == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	exp, ok := b.entries[credential]
	if !ok {
		return false
	}
	if b.now().After(exp) {
		delete(b.entries, credential)
		return false
	}
	return true
}

// Len returns the number of entries, expired ones included.
func (b *Blacklist) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Sweep drops all expired entries.
func (b *Blacklist) Sweep() {
	now := b.now()
	b.mu.Lock()
	for cred, exp := range b.entries {
		if now.After(exp) {
			delete(b.entries, cred)
		}
	}
	b.mu.Unlock()
}

// StartSweeper sweeps on the given interval until ctx is cancelled. Bounds
// memory when many credentials are revoked but never re-checked.
func (b *Blacklist) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.Sweep()
			}
		}
	}()
}
