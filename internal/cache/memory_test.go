package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGet(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(0)
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "key", map[string]float64{"price": 100.5}, time.Minute))

	var out map[string]float64
	require.NoError(t, mc.Get(ctx, "key", &out))
	assert.Equal(t, 100.5, out["price"])
}

func TestMemoryCacheMiss(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(0)
	defer mc.Close()

	var out string
	err := mc.Get(ctx, "missing", &out)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheExpiration(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(0)
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "key", "value", 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	var out string
	assert.ErrorIs(t, mc.Get(ctx, "key", &out), ErrCacheMiss)

	exists, err := mc.Exists(ctx, "key")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryCacheDelete(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(0)
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "key", "value", time.Minute))
	require.NoError(t, mc.Delete(ctx, "key"))

	var out string
	assert.ErrorIs(t, mc.Get(ctx, "key", &out), ErrCacheMiss)
}

func TestMemoryCacheLRUEviction(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(2)
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, mc.Set(ctx, "b", 2, time.Minute))

	// Touch "a" so "b" is the LRU candidate.
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))

	require.NoError(t, mc.Set(ctx, "c", 3, time.Minute))

	assert.NoError(t, mc.Get(ctx, "a", &v))
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "c", &v))
}

func TestMemoryCacheLocks(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(0)
	defer mc.Close()

	acquired, err := mc.AcquireLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = mc.AcquireLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, mc.ReleaseLock(ctx, "job"))

	acquired, err = mc.AcquireLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestMemoryCacheExpiredLockReacquirable(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(0)
	defer mc.Close()

	acquired, err := mc.AcquireLock(ctx, "job", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)

	time.Sleep(30 * time.Millisecond)

	acquired, err = mc.AcquireLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}
