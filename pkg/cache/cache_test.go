package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisFromClient(client), mr
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t)

	t.Run("miss maps to ErrNotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set with ttl", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k", "v", time.Minute))
		v, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", v)

		mr.FastForward(2 * time.Minute)
		_, err = store.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "gone", "v", 0))
		require.NoError(t, store.Delete(ctx, "gone"))
		_, err := store.Get(ctx, "gone")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("incr sets expiry once", func(t *testing.T) {
		n, err := store.Incr(ctx, "rate", time.Minute)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		n, err = store.Incr(ctx, "rate", time.Minute)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
		assert.True(t, mr.TTL("rate") > 0)

		mr.FastForward(time.Minute + time.Second)
		n, err = store.Incr(ctx, "rate", time.Minute)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})
}

func TestNewRedisFailsWithoutServer(t *testing.T) {
	_, err := NewRedis(Config{Host: "127.0.0.1", Port: 1})
	assert.Error(t, err)
}
