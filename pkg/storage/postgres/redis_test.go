package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*EventCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewEventCache(client, ttl), mr
}

func TestEventCacheMarkSeen(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t, time.Hour)

	fresh, err := cache.MarkSeen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, fresh, "first delivery must be fresh")

	fresh, err = cache.MarkSeen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, fresh, "replay must be detected")

	fresh, err = cache.MarkSeen(ctx, "evt_2")
	require.NoError(t, err)
	assert.True(t, fresh, "distinct events do not collide")
}

func TestEventCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t, time.Minute)

	fresh, err := cache.MarkSeen(ctx, "evt_1")
	require.NoError(t, err)
	require.True(t, fresh)

	mr.FastForward(2 * time.Minute)

	fresh, err = cache.MarkSeen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, fresh, "expired event id is treated as fresh again")
}

func TestEventCacheDefaultTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cache := NewEventCache(client, 0)
	assert.Equal(t, DefaultEventTTL, cache.ttl)
}

func TestNewRedisClient(t *testing.T) {
	t.Run("connects", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := NewRedisClient("redis://" + mr.Addr())
		require.NoError(t, err)
		t.Cleanup(func() { client.Close() })
		assert.NoError(t, client.Ping(context.Background()).Err())
	})

	t.Run("invalid URL", func(t *testing.T) {
		_, err := NewRedisClient("not-a-url")
		assert.Error(t, err)
	})

	t.Run("unreachable server", func(t *testing.T) {
		_, err := NewRedisClient("redis://127.0.0.1:1")
		assert.Error(t, err)
	})
}

func TestEventCacheConnectionError(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewEventCache(client, time.Hour)

	mr.Close()
	client.Close()

	_, err := cache.MarkSeen(ctx, "evt_1")
	assert.Error(t, err)
}
