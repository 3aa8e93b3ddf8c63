package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	corelog "chatstate/internal/core/log"
	"chatstate/internal/core/store"
)

// =============================================================================
// RedisStore 带类型标记的键值存储
// =============================================================================

// RedisStore Redis 键值存储，值以 store 编解码的类型信封保存
type RedisStore[K comparable, V any] struct {
	client    redis.UniversalClient
	keyPrefix string
	storeType string
	metrics   *store.StoreMetrics
	logger    corelog.Logger
}

// Option RedisStore 选项
type Option func(*options)

type options struct {
	storeType string
	metrics   *store.StoreMetrics
	logger    corelog.Logger
}

// WithMetrics 共享外部指标
func WithMetrics(m *store.StoreMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger 指定日志
func WithLogger(l corelog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStoreType 错误信息中的存储类型（redis | embedded）
func WithStoreType(t store.StoreType) Option {
	return func(o *options) { o.storeType = string(t) }
}

func applyOptions(opts []Option) options {
	o := options{storeType: string(store.StoreTypeRedis)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = store.NewStoreMetrics()
	}
	o.logger = corelog.OrDefault(o.logger)
	return o
}

// ResolveOptions 解析选项并填充默认值
// 返回的选项列表固定了指标与日志实例，传给多个底层存储时共享同一份指标
func ResolveOptions(opts ...Option) (corelog.Logger, *store.StoreMetrics, []Option) {
	o := applyOptions(opts)
	return o.logger, o.metrics, []Option{
		WithStoreType(store.StoreType(o.storeType)),
		WithMetrics(o.metrics),
		WithLogger(o.logger),
	}
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore[K comparable, V any](client redis.UniversalClient, keyPrefix string, opts ...Option) *RedisStore[K, V] {
	o := applyOptions(opts)
	return &RedisStore[K, V]{
		client:    client,
		keyPrefix: keyPrefix,
		storeType: o.storeType,
		metrics:   o.metrics,
		logger:    o.logger,
	}
}

// Key 构建 Redis 键
func (s *RedisStore[K, V]) Key(key K) string {
	return fmt.Sprintf("%s%v", s.keyPrefix, key)
}

func (s *RedisStore[K, V]) wrap(op, key string, err error) error {
	return store.NewStoreError(s.storeType, op, key, err)
}

// Get 获取值
func (s *RedisStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	start := time.Now()
	var zero V
	rkey := s.Key(key)

	data, err := s.client.Get(ctx, rkey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.metrics.RecordGet(time.Since(start), store.ErrNotFound)
			return zero, store.ErrNotFound
		}
		s.metrics.RecordGet(time.Since(start), err)
		return zero, s.wrap("Get", rkey, err)
	}

	value, err := store.Unmarshal[V](data)
	s.metrics.RecordGet(time.Since(start), err)
	if err != nil {
		return zero, s.wrap("Get", rkey, err)
	}
	return value, nil
}

// Set 设置值（不过期）
func (s *RedisStore[K, V]) Set(ctx context.Context, key K, value V) error {
	return s.set(ctx, "Set", key, value, 0)
}

// SetWithTTL 设置值并指定 TTL
func (s *RedisStore[K, V]) SetWithTTL(ctx context.Context, key K, value V, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.set(ctx, "SetWithTTL", key, value, ttl)
}

func (s *RedisStore[K, V]) set(ctx context.Context, op string, key K, value V, ttl time.Duration) error {
	start := time.Now()
	rkey := s.Key(key)

	data, err := store.Marshal(value)
	if err != nil {
		s.metrics.RecordSet(time.Since(start), err)
		return s.wrap(op, rkey, err)
	}

	err = s.client.Set(ctx, rkey, data, ttl).Err()
	s.metrics.RecordSet(time.Since(start), err)
	if err != nil {
		return s.wrap(op, rkey, err)
	}
	return nil
}

// Delete 删除值
func (s *RedisStore[K, V]) Delete(ctx context.Context, key K) error {
	rkey := s.Key(key)
	err := s.client.Del(ctx, rkey).Err()
	s.metrics.RecordDelete(err)
	if err != nil {
		return s.wrap("Delete", rkey, err)
	}
	return nil
}

// Exists 检查键是否存在
func (s *RedisStore[K, V]) Exists(ctx context.Context, key K) (bool, error) {
	rkey := s.Key(key)
	n, err := s.client.Exists(ctx, rkey).Result()
	if err != nil {
		return false, s.wrap("Exists", rkey, err)
	}
	return n > 0, nil
}

// GetTTL 获取剩余 TTL
func (s *RedisStore[K, V]) GetTTL(ctx context.Context, key K) (time.Duration, error) {
	rkey := s.Key(key)
	ttl, err := s.client.TTL(ctx, rkey).Result()
	if err != nil {
		return 0, s.wrap("GetTTL", rkey, err)
	}
	if ttl < 0 {
		if ttl == -2 {
			return 0, store.ErrNotFound
		}
		return -1, nil // 永不过期
	}
	return ttl, nil
}

// BatchGet 使用 Pipeline 单次往返批量获取
// 不存在的键直接跳过，类型不匹配的值记录告警后跳过
func (s *RedisStore[K, V]) BatchGet(ctx context.Context, keys []K) (map[K]V, error) {
	if len(keys) == 0 {
		return map[K]V{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, s.Key(key))
	}

	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, s.wrap("BatchGet", "", err)
	}

	result := make(map[K]V, len(keys))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		value, err := store.Unmarshal[V](data)
		if err != nil {
			s.metrics.TypeMismatchCount.Add(1)
			s.logger.WithField("key", s.Key(keys[i])).Warnf("RedisStore.BatchGet: skipping value: %v", err)
			continue
		}
		result[keys[i]] = value
	}
	return result, nil
}

// BatchDelete 批量删除
func (s *RedisStore[K, V]) BatchDelete(ctx context.Context, keys []K) error {
	if len(keys) == 0 {
		return nil
	}
	rkeys := make([]string, len(keys))
	for i, key := range keys {
		rkeys[i] = s.Key(key)
	}
	if err := s.client.Del(ctx, rkeys...).Err(); err != nil {
		return s.wrap("BatchDelete", "", err)
	}
	return nil
}

// Ping 健康检查
func (s *RedisStore[K, V]) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetMetrics 获取指标
func (s *RedisStore[K, V]) GetMetrics() *store.StoreMetrics {
	return s.metrics
}

var _ store.KVStore[string, string] = (*RedisStore[string, string])(nil)
