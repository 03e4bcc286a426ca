// Package infra provides shared infrastructure components used across
// the application: logging setup, rate limiting and short-lived memoization.
package infra

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// --- TTL memo ---

type memoEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// Memo is a small thread-safe TTL cache. It memoizes volatile upstream
// answers (latest quotes) and is never used for durable data.
type Memo[K comparable, V any] struct {
	mu        sync.RWMutex
	entries   map[K]memoEntry[V]
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

// NewMemo creates a memo with the given TTL. A zero TTL disables it.
func NewMemo[K comparable, V any](ttl time.Duration) *Memo[K, V] {
	return &Memo[K, V]{
		entries: make(map[K]memoEntry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get retrieves a live value.
func (m *Memo[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || m.now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores a value for the memo TTL. Expired entries are swept at most
// once per TTL.
func (m *Memo[K, V]) Set(key K, value V) {
	if m.ttl <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if now.Sub(m.lastSweep) >= m.ttl {
		for k, e := range m.entries {
			if now.After(e.expiresAt) {
				delete(m.entries, k)
			}
		}
		m.lastSweep = now
	}
	m.entries[key] = memoEntry[V]{value: value, expiresAt: now.Add(m.ttl)}
}

// Len returns the number of stored entries, expired ones included.
func (m *Memo[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// --- Rate limiter ---

// NewRateLimiter returns a token-bucket limiter allowing perSecond requests
// per second with bursts of the same size.
func NewRateLimiter(perSecond int) *rate.Limiter {
	if perSecond < 1 {
		perSecond = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), perSecond)
}
