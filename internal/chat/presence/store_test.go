package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corelog "chatstate/internal/core/log"
	"chatstate/internal/core/store"
	redisstore "chatstate/internal/core/store/shared/redis"
)

func setupStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewStore(client)
}

func TestStore_AddRemove(t *testing.T) {
	ctx := context.Background()
	mr, s := setupStore(t)

	require.NoError(t, s.Add(ctx, "u1", "r1"))
	in, err := s.IsInRoom(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.True(t, in)

	require.NoError(t, s.Remove(ctx, "u1", "r1"))
	in, err = s.IsInRoom(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.False(t, in)

	rooms, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, rooms)
	assert.False(t, mr.Exists("userroom:roomids:u1"), "empty set leaves no key")
}

func TestStore_RemoveKeepsOtherRooms(t *testing.T) {
	ctx := context.Background()
	mr, s := setupStore(t)

	require.NoError(t, s.Add(ctx, "u1", "r1"))
	require.NoError(t, s.Add(ctx, "u1", "r2"))
	require.NoError(t, s.Add(ctx, "u1", "r2"))
	require.NoError(t, s.Remove(ctx, "u1", "r1"))

	rooms, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, rooms)
	assert.True(t, mr.Exists("userroom:roomids:u1"))

	require.NoError(t, s.Remove(ctx, "u1", "missing"))
	require.NoError(t, s.Remove(ctx, "nobody", "r1"))
	assert.False(t, mr.Exists("userroom:roomids:nobody"))
}

func TestStore_UserWithoutRooms(t *testing.T) {
	ctx := context.Background()
	mr, s := setupStore(t)

	rooms, err := s.Get(ctx, "u9")
	require.NoError(t, err)
	assert.NotNil(t, rooms)
	assert.Empty(t, rooms)

	in, err := s.IsInRoom(ctx, "u9", "r1")
	require.NoError(t, err)
	assert.False(t, in)
	assert.Empty(t, mr.Keys())
}

func TestStore_ClearAndRemoveAllRooms(t *testing.T) {
	ctx := context.Background()
	mr, s := setupStore(t)

	require.NoError(t, s.Add(ctx, "u1", "r1"))
	require.NoError(t, s.Add(ctx, "u1", "r2"))
	require.NoError(t, s.Clear(ctx, "u1"))
	assert.False(t, mr.Exists("userroom:roomids:u1"))

	require.NoError(t, s.Add(ctx, "u2", "r1"))
	require.NoError(t, s.RemoveAllRooms(ctx, "u2"))
	assert.False(t, mr.Exists("userroom:roomids:u2"))

	require.NoError(t, s.Clear(ctx, "nobody"))
}

func TestStore_BackendError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	s := NewStore(client)

	_, err := s.IsInRoom(context.Background(), "u1", "r1")
	assert.Error(t, err)
	assert.Error(t, s.Remove(context.Background(), "u1", "r1"))
	assert.Equal(t, int64(2), s.GetMetrics().ErrorCount.Load())
}

func TestStore_SharedMetrics(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	metrics := store.NewStoreMetrics()
	s := NewStore(client, redisstore.WithMetrics(metrics), redisstore.WithLogger(corelog.NewTestLogger(t)))
	require.Same(t, metrics, s.GetMetrics())

	require.NoError(t, s.Add(ctx, "u1", "r1"))
	_, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	_, err = s.IsInRoom(ctx, "u1", "r1")
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, "u1", "r1"))

	assert.Equal(t, int64(1), metrics.SetCount.Load())
	assert.Equal(t, int64(2), metrics.GetCount.Load())
	assert.Equal(t, int64(1), metrics.DeleteCount.Load())
	assert.Zero(t, metrics.ErrorCount.Load())
}
