package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	type pos struct {
		Side string `json:"side"`
	}
	require.NoError(t, mc.Set(ctx, Key("position", "BTCUSDT"), pos{Side: "LONG"}, 0))

	var got pos
	require.NoError(t, mc.Get(ctx, "position:BTCUSDT", &got))
	assert.Equal(t, "LONG", got.Side)

	require.NoError(t, mc.Delete(ctx, "position:BTCUSDT"))
	assert.ErrorIs(t, mc.Get(ctx, "position:BTCUSDT", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", 1, time.Minute))
	ok, _ := mc.Exists(ctx, "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = mc.Exists(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCacheLockOwnership(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "lock:BTCUSDT", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "lock:BTCUSDT", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, mc.Unlock(ctx, "lock:BTCUSDT", "b"), ErrLockNotHeld)
	require.NoError(t, mc.Unlock(ctx, "lock:BTCUSDT", "a"))

	ok, _ = mc.TryLock(ctx, "lock:BTCUSDT", "b", time.Minute)
	assert.True(t, ok)
}

func TestMemoryCacheEvictsAtCapacity(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, mc.Set(ctx, "b", 2, time.Hour))
	require.NoError(t, mc.Set(ctx, "c", 3, time.Hour))

	ok, _ := mc.Exists(ctx, "a")
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "c")
	assert.True(t, ok)
}

func TestKeySkipsEmptyParts(t *testing.T) {
	assert.Equal(t, "lock:BTCUSDT", Key("lock", "", "BTCUSDT"))
	assert.Equal(t, "decision:ETHUSDT:3", Key("decision", "ETHUSDT", 3))
	assert.Equal(t, "", Key())
}
