// Package state 组装聊天状态层的全部组件
package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"chatstate/internal/broker"
	"chatstate/internal/chat/presence"
	"chatstate/internal/chat/ratelimit"
	"chatstate/internal/chat/session"
	"chatstate/internal/chat/timeline"
	"chatstate/internal/core/idgen"
	corelog "chatstate/internal/core/log"
	"chatstate/internal/core/store"
	"chatstate/internal/core/store/shared/embedded"
	redisstore "chatstate/internal/core/store/shared/redis"
	"chatstate/internal/nearcache"
)

// adminDeleteBatchesPerSecond 限流记录批量删除的速率
const adminDeleteBatchesPerSecond = 50

// State 聊天状态层
// 所有组件共享一个 Redis 客户端，彼此独立
type State struct {
	Config *store.StateConfig
	Client redis.UniversalClient

	Broker     *broker.RedisBroker
	Cache      *nearcache.NearCache
	Sessions   *session.Store
	RateLimits *ratelimit.Store
	Presence   *presence.Store
	Timeline   *timeline.Store
	Collector  *store.Collector

	embedded *embedded.EmbeddedRedis
	logger   corelog.Logger
}

// New 按配置创建状态层
// single 模式启动内嵌 miniredis，cluster 模式连接外部 Redis
func New(ctx context.Context, cfg *store.StateConfig, logger corelog.Logger) (*State, error) {
	if cfg == nil {
		cfg = store.DefaultStateConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid state config: %w", err)
	}
	logger = corelog.OrDefault(logger)

	if cfg.NodeID == "" {
		cfg.NodeID = idgen.MustGenerate(idgen.NewUUIDGenerator(idgen.PrefixNodeID))
	}

	s := &State{
		Config: cfg,
		logger: logger.WithField("node_id", cfg.NodeID),
	}

	storeType := store.StoreTypeRedis
	if cfg.IsSingleMode() {
		e, err := embedded.NewEmbeddedRedis()
		if err != nil {
			return nil, err
		}
		s.embedded = e
		s.Client = e.GetClient()
		storeType = store.StoreTypeEmbedded
	} else {
		client, err := redisstore.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, err
		}
		s.Client = client
	}

	if err := s.init(ctx, storeType); err != nil {
		_ = s.Close()
		return nil, err
	}

	s.logger.Infof("chat state ready: mode=%s", cfg.Mode)
	return s, nil
}

func (s *State) init(ctx context.Context, storeType store.StoreType) error {
	cfg := s.Config
	metrics := map[string]*store.StoreMetrics{
		"nearcache": store.NewStoreMetrics(),
		"session":   store.NewStoreMetrics(),
		"ratelimit": store.NewStoreMetrics(),
		"timeline":  store.NewStoreMetrics(),
		"presence":  store.NewStoreMetrics(),
	}
	opts := func(component string) []redisstore.Option {
		return []redisstore.Option{
			redisstore.WithStoreType(storeType),
			redisstore.WithMetrics(metrics[component]),
			redisstore.WithLogger(s.logger),
		}
	}

	b, err := broker.NewRedisBroker(ctx, s.Client, broker.RedisBrokerConfig{NodeID: cfg.NodeID}, s.logger)
	if err != nil {
		return err
	}
	s.Broker = b

	cache, err := nearcache.New(ctx, s.Client, b,
		nearcache.Config{NearCacheConfig: cfg.NearCache, NodeID: cfg.NodeID},
		nearcache.WithLogger(s.logger),
		nearcache.WithMetrics(metrics["nearcache"]),
	)
	if err != nil {
		return err
	}
	s.Cache = cache

	s.Sessions = session.NewStore(s.Client, cfg.Session, opts("session")...)
	s.RateLimits = ratelimit.NewStore(s.Client, cfg.RateLimit,
		rate.NewLimiter(rate.Limit(adminDeleteBatchesPerSecond), 1), opts("ratelimit")...)
	s.Presence = presence.NewStore(s.Client, opts("presence")...)
	s.Timeline = timeline.NewStore(s.Client, idgen.NewUUIDGenerator(idgen.PrefixMessageID), opts("timeline")...)
	s.Collector = store.NewCollector(cfg.MetricsNamespace, metrics)
	return nil
}

// Register 注册 Prometheus 指标
func (s *State) Register(reg prometheus.Registerer) error {
	return reg.Register(s.Collector)
}

// Ping 检查 Redis 连接
func (s *State) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

// Close 按创建的逆序释放资源
func (s *State) Close() error {
	var errs []error
	if s.Cache != nil {
		errs = append(errs, s.Cache.Close())
	}
	if s.Broker != nil {
		errs = append(errs, s.Broker.Close())
	}
	if s.embedded != nil {
		errs = append(errs, s.embedded.Close())
	} else if s.Client != nil {
		errs = append(errs, s.Client.Close())
	}
	s.logger.Infof("chat state closed")
	return errors.Join(errs...)
}
