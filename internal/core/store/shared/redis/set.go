package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"chatstate/internal/core/store"
)

// =============================================================================
// RedisSetStore Redis 集合存储
// =============================================================================

// removeAndPruneScript SREM 后集合为空则删除键，整体在服务端原子执行
var removeAndPruneScript = redis.NewScript(`
local removed = redis.call('SREM', KEYS[1], ARGV[1])
if redis.call('SCARD', KEYS[1]) == 0 then
	redis.call('DEL', KEYS[1])
end
return removed
`)

// RedisSetStore Redis 集合存储
type RedisSetStore struct {
	client    redis.UniversalClient
	keyPrefix string
	storeType string
	metrics   *store.StoreMetrics
}

// NewRedisSetStore 创建 Redis 集合存储
func NewRedisSetStore(client redis.UniversalClient, keyPrefix string, opts ...Option) *RedisSetStore {
	o := applyOptions(opts)
	return &RedisSetStore{
		client:    client,
		keyPrefix: keyPrefix,
		storeType: o.storeType,
		metrics:   o.metrics,
	}
}

// Key 构建 Redis 键
func (s *RedisSetStore) Key(key string) string {
	return s.keyPrefix + key
}

func (s *RedisSetStore) wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return store.NewStoreError(s.storeType, op, key, err)
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// Add 向集合添加元素
func (s *RedisSetStore) Add(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	start := time.Now()
	err := s.client.SAdd(ctx, s.Key(key), toArgs(values)...).Err()
	s.metrics.RecordSet(time.Since(start), err)
	return s.wrap("Add", s.Key(key), err)
}

// Remove 从集合移除元素
func (s *RedisSetStore) Remove(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	err := s.client.SRem(ctx, s.Key(key), toArgs(values)...).Err()
	s.metrics.RecordDelete(err)
	return s.wrap("Remove", s.Key(key), err)
}

// RemoveAndPrune 移除元素，集合为空时删除键
func (s *RedisSetStore) RemoveAndPrune(ctx context.Context, key string, value string) error {
	rkey := s.Key(key)
	err := removeAndPruneScript.Run(ctx, s.client, []string{rkey}, value).Err()
	s.metrics.RecordDelete(err)
	return s.wrap("RemoveAndPrune", rkey, err)
}

// Contains 检查元素是否在集合中
func (s *RedisSetStore) Contains(ctx context.Context, key string, value string) (bool, error) {
	start := time.Now()
	ok, err := s.client.SIsMember(ctx, s.Key(key), value).Result()
	s.metrics.RecordGet(time.Since(start), err)
	return ok, s.wrap("Contains", s.Key(key), err)
}

// Members 获取集合所有成员
func (s *RedisSetStore) Members(ctx context.Context, key string) ([]string, error) {
	start := time.Now()
	members, err := s.client.SMembers(ctx, s.Key(key)).Result()
	s.metrics.RecordGet(time.Since(start), err)
	if err != nil {
		return nil, s.wrap("Members", s.Key(key), err)
	}
	return members, nil
}

// Size 获取集合大小
func (s *RedisSetStore) Size(ctx context.Context, key string) (int64, error) {
	n, err := s.client.SCard(ctx, s.Key(key)).Result()
	return n, s.wrap("Size", s.Key(key), err)
}

// Clear 删除整个集合
func (s *RedisSetStore) Clear(ctx context.Context, key string) error {
	err := s.client.Del(ctx, s.Key(key)).Err()
	s.metrics.RecordDelete(err)
	return s.wrap("Clear", s.Key(key), err)
}

// GetMetrics 获取指标
func (s *RedisSetStore) GetMetrics() *store.StoreMetrics {
	return s.metrics
}

var _ store.SetStore[string, string] = (*RedisSetStore)(nil)
