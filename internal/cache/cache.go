// Package cache provides the key-value cache contract used for idempotency
// keys and geolocation results, plus an in-process implementation with TTL
// eviction.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache is a read-mostly key-value store with per-entry TTL. It is not a
// coordination primitive: Get followed by Set is not atomic, and callers that
// need stronger semantics must account for the window between the two calls.
type Cache interface {
	// Get returns the value under key and whether it was present and unexpired.
	Get(ctx context.Context, key string) (string, bool)
	// Set stores value under key for at most ttl. A non-positive ttl stores
	// the entry without expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration)
	// Delete removes the entry under key, if any.
	Delete(ctx context.Context, key string)
}

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is an in-process Cache. Expired entries are dropped lazily on Get
// and swept periodically by a janitor goroutine.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry

	now func() time.Time
}

var _ Cache = (*Memory)(nil)

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string) (string, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return "", false
	}
	if e.expired(m.now()) {
		m.mu.Lock()
		// Re-check under the write lock; another goroutine may have replaced it.
		if cur, still := m.entries[key]; still && cur.expired(m.now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return "", false
	}
	return e.value, true
}

// Set implements Cache.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
}

// Delete implements Cache.
func (m *Memory) Delete(_ context.Context, key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// StartJanitor sweeps expired entries every interval until ctx is cancelled.
func (m *Memory) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *Memory) sweep() {
	now := m.now()
	m.mu.Lock()
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
		}
	}
	m.mu.Unlock()
}
