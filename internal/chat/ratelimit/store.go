// Package ratelimit 保存按客户端划分的限流窗口
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"chatstate/internal/chat/model"
	corelog "chatstate/internal/core/log"
	"chatstate/internal/core/store"
	redisstore "chatstate/internal/core/store/shared/redis"
)

const keyPrefix = "ClientId:"

// Store 限流记录存储，条目在 ExpiresAt 时由 Redis 自行过期
type Store struct {
	values      *redisstore.RedisStore[string, model.RateLimit]
	deleter     store.PatternDeleter
	fallbackTTL time.Duration
	logger      corelog.Logger
	now         func() time.Time
}

// NewStore 创建限流存储
// limiter 控制 DeleteAll 每批 UNLINK 的速率，为 nil 时不限速
func NewStore(client redis.UniversalClient, cfg store.RateLimitConfig, limiter *rate.Limiter, opts ...redisstore.Option) *Store {
	logger, _, opts := redisstore.ResolveOptions(opts...)
	fallback := cfg.FallbackTTL
	if fallback <= 0 {
		fallback = store.DefaultRateLimitFallback
	}
	return &Store{
		values:      redisstore.NewRedisStore[string, model.RateLimit](client, keyPrefix, opts...),
		deleter:     redisstore.NewPatternDeleter(client, 0, limiter),
		fallbackTTL: fallback,
		logger:      logger.WithField("component", "ratelimit"),
		now:         time.Now,
	}
}

// FindByClientID 获取客户端限流记录，不存在返回 nil
func (s *Store) FindByClientID(ctx context.Context, clientID string) (*model.RateLimit, error) {
	limit, err := s.values.Get(ctx, clientID)
	switch {
	case err == nil:
		return &limit, nil
	case store.IsAbsent(err):
		if store.IsTypeMismatch(err) {
			s.logger.WithField("client_id", clientID).Warnf("FindByClientID: %v", err)
		}
		return nil, nil
	default:
		return nil, err
	}
}

// Save 以剩余有效期作为 TTL 写入；ExpiresAt 已过或未设置时使用兜底 TTL
func (s *Store) Save(ctx context.Context, limit *model.RateLimit) (*model.RateLimit, error) {
	if limit == nil || limit.ClientID == "" {
		return nil, fmt.Errorf("ratelimit: %w: client id is required", store.ErrInvalidKey)
	}
	if err := s.values.SetWithTTL(ctx, limit.ClientID, *limit, s.ttlFor(limit.ExpiresAt)); err != nil {
		return nil, err
	}
	return limit, nil
}

// ttlFor 剩余时间按秒截断
func (s *Store) ttlFor(expiresAt time.Time) time.Duration {
	if expiresAt.IsZero() {
		return s.fallbackTTL
	}
	ttl := expiresAt.Sub(s.now()).Truncate(time.Second)
	if ttl <= 0 {
		return s.fallbackTTL
	}
	return ttl
}

// DeleteAll 扫描并删除全部限流记录，返回删除数量
// 遍历整个键空间，仅供管理或测试重置使用；任何错误直接返回
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.deleter.DeleteByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return n, fmt.Errorf("ratelimit: delete all: %w", err)
	}
	s.logger.Infof("DeleteAll: removed %d rate limit entries", n)
	return n, nil
}

// Count 统计限流记录数量，不删除
func (s *Store) Count(ctx context.Context) (int64, error) {
	n, err := s.deleter.CountByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return n, fmt.Errorf("ratelimit: count: %w", err)
	}
	return n, nil
}

// GetMetrics 获取指标
func (s *Store) GetMetrics() *store.StoreMetrics {
	return s.values.GetMetrics()
}
