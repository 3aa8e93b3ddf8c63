// Package presence 记录用户当前所在的房间
package presence

import (
	"context"

	"github.com/redis/go-redis/v9"

	"chatstate/internal/core/store"
	redisstore "chatstate/internal/core/store/shared/redis"
)

const keyPrefix = "userroom:roomids:"

// Store 用户房间集合，每个用户一个 Redis Set
// 集合变空时键被删除，不在任何房间的用户不留下键
type Store struct {
	rooms   store.SetStore[string, string]
	metrics *store.StoreMetrics
}

// NewStore 创建房间在线存储
func NewStore(client redis.UniversalClient, opts ...redisstore.Option) *Store {
	_, metrics, opts := redisstore.ResolveOptions(opts...)
	return &Store{
		rooms:   redisstore.NewRedisSetStore(client, keyPrefix, opts...),
		metrics: metrics,
	}
}

// Get 用户所在的全部房间
func (s *Store) Get(ctx context.Context, userID string) ([]string, error) {
	rooms, err := s.rooms.Members(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rooms == nil {
		rooms = []string{}
	}
	return rooms, nil
}

// Add 加入房间
func (s *Store) Add(ctx context.Context, userID, roomID string) error {
	return s.rooms.Add(ctx, userID, roomID)
}

// Remove 离开房间，最后一个房间移除后删除键
func (s *Store) Remove(ctx context.Context, userID, roomID string) error {
	return s.rooms.RemoveAndPrune(ctx, userID, roomID)
}

// IsInRoom 用户是否在房间中
func (s *Store) IsInRoom(ctx context.Context, userID, roomID string) (bool, error) {
	return s.rooms.Contains(ctx, userID, roomID)
}

// Clear 删除用户的全部房间
func (s *Store) Clear(ctx context.Context, userID string) error {
	return s.rooms.Clear(ctx, userID)
}

// RemoveAllRooms 同 Clear
func (s *Store) RemoveAllRooms(ctx context.Context, userID string) error {
	return s.Clear(ctx, userID)
}

// GetMetrics 获取指标
func (s *Store) GetMetrics() *store.StoreMetrics {
	return s.metrics
}
