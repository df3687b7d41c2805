package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClockedMemory(start time.Time) (*Memory, *time.Time) {
	now := start
	m := NewMemory()
	m.now = func() time.Time { return now }
	return m, &now
}

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.Set(ctx, "k", "v", time.Minute)
	got, ok := m.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	_, ok = m.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestMemory_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	m, now := newClockedMemory(time.Unix(1000, 0))

	m.Set(ctx, "k", "v", time.Minute)

	*now = now.Add(59 * time.Second)
	_, ok := m.Get(ctx, "k")
	assert.True(t, ok, "entry must survive within its TTL")

	*now = now.Add(2 * time.Second)
	_, ok = m.Get(ctx, "k")
	assert.False(t, ok, "entry must expire after its TTL")
}

func TestMemory_ZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	m, now := newClockedMemory(time.Unix(1000, 0))

	m.Set(ctx, "k", "v", 0)
	*now = now.Add(1000 * time.Hour)

	_, ok := m.Get(ctx, "k")
	assert.True(t, ok)
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.Set(ctx, "k", "v", time.Minute)
	m.Delete(ctx, "k")

	_, ok := m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemory_SweepDropsExpiredOnly(t *testing.T) {
	ctx := context.Background()
	m, now := newClockedMemory(time.Unix(1000, 0))

	m.Set(ctx, "stale", "v", time.Second)
	m.Set(ctx, "fresh", "v", time.Hour)

	*now = now.Add(time.Minute)
	m.sweep()

	m.mu.RLock()
	_, hasStale := m.entries["stale"]
	_, hasFresh := m.entries["fresh"]
	m.mu.RUnlock()

	assert.False(t, hasStale)
	assert.True(t, hasFresh)
}
