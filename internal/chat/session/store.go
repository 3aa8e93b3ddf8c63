// Package session 提供带用户反向索引的会话存储
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chatstate/internal/chat/model"
	corelog "chatstate/internal/core/log"
	"chatstate/internal/core/store"
	redisstore "chatstate/internal/core/store/shared/redis"
)

const (
	sessionKeyPrefix = "session:"
	userKeyPrefix    = "user:"
)

// Store 会话存储
//
// session:<id> 保存会话值，带滑动 TTL；user:<userId> 为会话 ID 集合，不过期。
// 索引中可能残留已过期的会话 ID，由 FindByUserID 顺带清理。
type Store struct {
	values  *redisstore.RedisStore[string, model.Session]
	index   store.SetStore[string, string]
	ttl     time.Duration
	logger  corelog.Logger
	metrics *store.StoreMetrics
}

// NewStore 创建会话存储
func NewStore(client redis.UniversalClient, cfg store.SessionConfig, opts ...redisstore.Option) *Store {
	logger, metrics, opts := redisstore.ResolveOptions(opts...)
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = store.DefaultSessionTTL
	}
	return &Store{
		values:  redisstore.NewRedisStore[string, model.Session](client, sessionKeyPrefix, opts...),
		index:   redisstore.NewRedisSetStore(client, userKeyPrefix, opts...),
		ttl:     ttl,
		logger:  logger.WithField("component", "session"),
		metrics: metrics,
	}
}

// Save 写入会话值（重置 TTL）并加入用户索引
func (s *Store) Save(ctx context.Context, sess *model.Session) (*model.Session, error) {
	if sess == nil || sess.SessionID == "" || sess.UserID == "" {
		return nil, fmt.Errorf("session: %w: session id and user id are required", store.ErrInvalidKey)
	}
	if err := s.values.SetWithTTL(ctx, sess.SessionID, *sess, s.ttl); err != nil {
		return nil, err
	}
	if err := s.index.Add(ctx, sess.UserID, sess.SessionID); err != nil {
		return nil, err
	}
	return sess, nil
}

// FindByUserID 返回用户的任一存活会话，不存在返回 nil
// 一次 Pipeline 取回索引中的所有会话，探测到的失效 ID 从索引移除
func (s *Store) FindByUserID(ctx context.Context, userID string) (*model.Session, error) {
	ids, err := s.index.Members(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	live, err := s.values.BatchGet(ctx, ids)
	if err != nil {
		return nil, err
	}

	var found *model.Session
	var dead []string
	for _, id := range ids {
		sess, ok := live[id]
		if !ok {
			dead = append(dead, id)
			continue
		}
		if found == nil {
			found = &sess
		}
	}

	if len(dead) > 0 {
		// 清理失败不影响本次查询结果，下次读取会重试
		if err := s.index.Remove(ctx, userID, dead...); err != nil {
			s.logger.WithField("user_id", userID).Warnf("reap %d dead sessions: %v", len(dead), err)
		} else {
			s.metrics.RecordReaped(len(dead))
			s.logger.WithField("user_id", userID).Debugf("reaped %d dead sessions", len(dead))
		}
	}
	return found, nil
}

// Delete 删除会话值及其索引项
func (s *Store) Delete(ctx context.Context, sess *model.Session) error {
	if sess == nil {
		return nil
	}
	if err := s.values.Delete(ctx, sess.SessionID); err != nil {
		return err
	}
	return s.index.Remove(ctx, sess.UserID, sess.SessionID)
}

// DeleteByUserID 删除用户的全部会话值，再删除索引
func (s *Store) DeleteByUserID(ctx context.Context, userID string) error {
	ids, err := s.index.Members(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.values.BatchDelete(ctx, ids); err != nil {
		return err
	}
	return s.index.Clear(ctx, userID)
}

// SessionIDs 用户索引中的会话 ID（可能包含已过期的）
func (s *Store) SessionIDs(ctx context.Context, userID string) ([]string, error) {
	return s.index.Members(ctx, userID)
}

// GetMetrics 获取指标
func (s *Store) GetMetrics() *store.StoreMetrics {
	return s.metrics
}
