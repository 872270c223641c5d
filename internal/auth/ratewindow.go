package auth

import (
	"context"
	"sync"
	"time"
)

const (
	rateIdentifierLen = 8

	defaultRateLimit  = 5
	defaultRateWindow = time.Minute
)

// RateWindow counts verification attempts per credential over a sliding
// window. Credentials are bucketed by their first 8 characters so the map
// stays bounded while full tokens never sit in memory.
//
// This deliberately is not a token bucket: the contract is "at most N
// attempts in any trailing window", which a refill-based limiter cannot
// guarantee. The per-IP limiter in httpapi uses golang.org/x/time/rate;
// this one stays exact.
type RateWindow struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

// NewRateWindow constructs a window with the default 5-per-60s policy.
func NewRateWindow() *RateWindow {
	return NewRateWindowWith(defaultRateLimit, defaultRateWindow)
}

// NewRateWindowWith constructs a window with an explicit policy.
func NewRateWindowWith(limit int, window time.Duration) *RateWindow {
	if limit <= 0 {
		limit = defaultRateLimit
	}
	if window <= 0 {
		window = defaultRateWindow
	}
	return &RateWindow{
		attempts: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow records an attempt for the credential and reports whether it fits
// the window. A rejected attempt is not recorded, so a caller stuck at the
// limit recovers as soon as old attempts age out.
func (rw *RateWindow) Allow(credential string) bool {
	id := rateIdentifier(credential)
	now := rw.now()
	cutoff := now.Add(-rw.window)

	rw.mu.Lock()
	defer rw.mu.Unlock()

	kept := pruneBefore(rw.attempts[id], cutoff)
	if len(kept) >= rw.limit {
		if len(kept) == 0 {
			delete(rw.attempts, id)
		} else {
			rw.attempts[id] = kept
		}
		return false
	}
	rw.attempts[id] = append(kept, now)
	return true
}

// Sweep drops buckets whose every attempt has aged out of the window.
func (rw *RateWindow) Sweep() {
	cutoff := rw.now().Add(-rw.window)
	rw.mu.Lock()
	for id, ts := range rw.attempts {
		kept := pruneBefore(ts, cutoff)
		if len(kept) == 0 {
			delete(rw.attempts, id)
		} else {
			rw.attempts[id] = kept
		}
	}
	rw.mu.Unlock()
}

// StartSweeper sweeps on the given interval until ctx is cancelled.
func (rw *RateWindow) StartSweeper(ctx context.Context, interval time.Duration) {
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
				rw.Sweep()
			}
		}
	}()
}

func rateIdentifier(credential string) string {
	if len(credential) <= rateIdentifierLen {
		return credential
	}
	return credential[:rateIdentifierLen]
}

func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	// Timestamps are appended in order, so find the first one still inside
	// the window and keep the tail.
	for i, t := range ts {
		if t.After(cutoff) {
			return append([]time.Time(nil), ts[i:]...)
		}
	}
	return nil
}
