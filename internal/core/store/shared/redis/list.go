package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	corelog "chatstate/internal/core/log"
	"chatstate/internal/core/store"
)

// =============================================================================
// RedisListStore Redis 列表存储
// =============================================================================

// RedisListStore 按追加顺序保存带类型标记的元素
type RedisListStore[K comparable, V any] struct {
	client    redis.UniversalClient
	keyPrefix string
	storeType string
	metrics   *store.StoreMetrics
	logger    corelog.Logger
}

// NewRedisListStore 创建 Redis 列表存储
func NewRedisListStore[K comparable, V any](client redis.UniversalClient, keyPrefix string, opts ...Option) *RedisListStore[K, V] {
	o := applyOptions(opts)
	return &RedisListStore[K, V]{
		client:    client,
		keyPrefix: keyPrefix,
		storeType: o.storeType,
		metrics:   o.metrics,
		logger:    o.logger,
	}
}

// Key 构建 Redis 键
func (s *RedisListStore[K, V]) Key(key K) string {
	return fmt.Sprintf("%s%v", s.keyPrefix, key)
}

// Append 追加到列表尾部
func (s *RedisListStore[K, V]) Append(ctx context.Context, key K, value V) (int64, error) {
	rkey := s.Key(key)
	data, err := store.Marshal(value)
	if err != nil {
		return 0, store.NewStoreError(s.storeType, "Append", rkey, err)
	}
	n, err := s.client.RPush(ctx, rkey, data).Result()
	if err != nil {
		return 0, store.NewStoreError(s.storeType, "Append", rkey, err)
	}
	return n, nil
}

// Range 获取 [start, stop] 区间元素
func (s *RedisListStore[K, V]) Range(ctx context.Context, key K, start, stop int64) ([]V, error) {
	rkey := s.Key(key)
	raw, err := s.client.LRange(ctx, rkey, start, stop).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, store.NewStoreError(s.storeType, "Range", rkey, err)
	}
	return s.decode(rkey, raw), nil
}

// Len 获取列表长度
func (s *RedisListStore[K, V]) Len(ctx context.Context, key K) (int64, error) {
	rkey := s.Key(key)
	n, err := s.client.LLen(ctx, rkey).Result()
	if err != nil {
		return 0, store.NewStoreError(s.storeType, "Len", rkey, err)
	}
	return n, nil
}

// BatchRange 使用 Pipeline 单次往返获取多个列表
func (s *RedisListStore[K, V]) BatchRange(ctx context.Context, keys []K) (map[K][]V, error) {
	if len(keys) == 0 {
		return map[K][]V{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringSliceCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.LRange(ctx, s.Key(key), 0, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, store.NewStoreError(s.storeType, "BatchRange", "", err)
	}

	result := make(map[K][]V, len(keys))
	for i, cmd := range cmds {
		result[keys[i]] = s.decode(s.Key(keys[i]), cmd.Val())
	}
	return result, nil
}

// decode 解码元素，类型不匹配的跳过
func (s *RedisListStore[K, V]) decode(rkey string, raw []string) []V {
	values := make([]V, 0, len(raw))
	for _, item := range raw {
		v, err := store.Unmarshal[V]([]byte(item))
		if err != nil {
			s.metrics.TypeMismatchCount.Add(1)
			s.logger.WithField("key", rkey).Warnf("RedisListStore: skipping element: %v", err)
			continue
		}
		values = append(values, v)
	}
	return values
}

var _ store.ListStore[string, string] = (*RedisListStore[string, string])(nil)
