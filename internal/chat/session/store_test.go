package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstate/internal/chat/model"
	corelog "chatstate/internal/core/log"
	"chatstate/internal/core/store"
	redisstore "chatstate/internal/core/store/shared/redis"
)

func setupStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewStore(client, store.SessionConfig{}, redisstore.WithLogger(corelog.NewTestLogger(t)))
}

func newSession(id, userID string) *model.Session {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.Session{SessionID: id, UserID: userID, CreatedAt: now, LastActivity: now}
}

func TestStore_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	mr, s := setupStore(t)

	saved, err := s.Save(ctx, newSession("s1", "u1"))
	require.NoError(t, err)
	assert.Equal(t, "s1", saved.SessionID)

	got, err := s.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "u1", got.UserID)

	assert.Equal(t, store.DefaultSessionTTL, mr.TTL("session:s1"))
	assert.Zero(t, mr.TTL("user:u1"), "index set never expires")
}

func TestStore_FindUnknownUser(t *testing.T) {
	_, s := setupStore(t)
	got, err := s.FindByUserID(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_SaveRejectsIncompleteSession(t *testing.T) {
	_, s := setupStore(t)
	_, err := s.Save(context.Background(), &model.Session{SessionID: "s1"})
	assert.ErrorIs(t, err, store.ErrInvalidKey)
	_, err = s.Save(context.Background(), nil)
	assert.Error(t, err)
}

func TestStore_ExpiryReapsIndex(t *testing.T) {
	ctx := context.Background()
	mr, s := setupStore(t)

	_, err := s.Save(ctx, newSession("s1", "u1"))
	require.NoError(t, err)

	mr.FastForward(store.DefaultSessionTTL + time.Second)

	got, err := s.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)

	ids, err := s.SessionIDs(ctx, "u1")
	require.NoError(t, err)
	assert.NotContains(t, ids, "s1")
	assert.False(t, mr.Exists("user:u1"))
	assert.Equal(t, int64(1), s.GetMetrics().ReapedCount.Load())
}

func TestStore_SaveSlidesTTL(t *testing.T) {
	ctx := context.Background()
	mr, s := setupStore(t)

	sess := newSession("s1", "u1")
	_, err := s.Save(ctx, sess)
	require.NoError(t, err)

	mr.FastForward(20 * time.Minute)
	_, err = s.Save(ctx, sess)
	require.NoError(t, err)
	mr.FastForward(20 * time.Minute)

	got, err := s.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got, "rewrite resets the window")
}

func TestStore_MultiSession(t *testing.T) {
	ctx := context.Background()
	mr, s := setupStore(t)

	_, err := s.Save(ctx, newSession("s1", "u1"))
	require.NoError(t, err)
	mr.FastForward(10 * time.Minute)
	_, err = s.Save(ctx, newSession("s2", "u1"))
	require.NoError(t, err)

	got, err := s.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Contains(t, []string{"s1", "s2"}, got.SessionID)

	// s1 过期后仍能找到 s2，s1 被清理出索引
	mr.FastForward(21 * time.Minute)
	got, err = s.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s2", got.SessionID)

	ids, err := s.SessionIDs(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, ids)

	mr.FastForward(10 * time.Minute)
	got, err = s.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_TypeMismatchTreatedAsDead(t *testing.T) {
	ctx := context.Background()
	mr, s := setupStore(t)

	_, err := s.Save(ctx, newSession("s1", "u1"))
	require.NoError(t, err)
	mr.Set("session:s1", `{"@type":"chat.RateLimit","data":{}}`)

	got, err := s.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, mr.Exists("user:u1"))
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	mr, s := setupStore(t)

	s1 := newSession("s1", "u1")
	_, err := s.Save(ctx, s1)
	require.NoError(t, err)
	_, err = s.Save(ctx, newSession("s2", "u1"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, s1))
	assert.False(t, mr.Exists("session:s1"))

	ids, err := s.SessionIDs(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, ids)

	require.NoError(t, s.Delete(ctx, nil))
}

func TestStore_DeleteByUserID(t *testing.T) {
	ctx := context.Background()
	mr, s := setupStore(t)

	for _, id := range []string{"s1", "s2", "s3"} {
		_, err := s.Save(ctx, newSession(id, "u1"))
		require.NoError(t, err)
	}
	_, err := s.Save(ctx, newSession("other", "u2"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteByUserID(ctx, "u1"))
	for _, id := range []string{"s1", "s2", "s3"} {
		assert.False(t, mr.Exists("session:"+id))
	}
	assert.False(t, mr.Exists("user:u1"))
	assert.True(t, mr.Exists("session:other"))

	require.NoError(t, s.DeleteByUserID(ctx, "nobody"))
}

func TestStore_BackendErrorPropagates(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	s := NewStore(client, store.SessionConfig{TTL: time.Minute}, redisstore.WithLogger(corelog.NewNopLogger()))

	_, err := s.FindByUserID(context.Background(), "u1")
	var storeErr *store.StoreError
	assert.ErrorAs(t, err, &storeErr)
}
