// Package nearcache 提供带跨节点同步的两级缓存
// 本地 LRU 位于共享 Redis Hash 之前，写入后通过 Pub/Sub 通知其他节点
package nearcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"chatstate/internal/broker"
	corelog "chatstate/internal/core/log"
	"chatstate/internal/core/safe"
	"chatstate/internal/core/store"
)

const storeType = "nearcache"

// Config 近端缓存配置
type Config struct {
	store.NearCacheConfig
	NodeID string
}

// Option 可选配置
type Option func(*NearCache)

// WithLogger 设置日志
func WithLogger(logger corelog.Logger) Option {
	return func(c *NearCache) { c.logger = corelog.OrDefault(logger) }
}

// WithMetrics 共享指标
func WithMetrics(m *store.StoreMetrics) Option {
	return func(c *NearCache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// NearCache 近端缓存
//
// 写路径：先写远端 Hash，再更新本地，最后广播同步消息。
// 读路径：本地命中直接返回；未命中回源 HGET，同一键的并发回源合并为一次。
// 订阅连接中断、重新订阅或同步消息溢出时清空整个本地缓存。
type NearCache struct {
	client  redis.UniversalClient
	broker  broker.MessageBroker
	config  Config
	local   *lru.Cache[string, []byte]
	sf      singleflight.Group
	logger  corelog.Logger
	metrics *store.StoreMetrics

	// mu 串行化本地写入；loading 记录回源中的键，被并发修改时置为 dirty
	mu      sync.Mutex
	loading map[string]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建近端缓存并订阅同步主题
func New(ctx context.Context, client redis.UniversalClient, b broker.MessageBroker, config Config, opts ...Option) (*NearCache, error) {
	if client == nil || b == nil {
		return nil, fmt.Errorf("nearcache: redis client and broker are required")
	}
	if config.Capacity <= 0 {
		config.Capacity = store.DefaultNearCacheCapacity
	}
	if config.HashKey == "" {
		config.HashKey = store.DefaultNearCacheHashKey
	}
	if config.SyncTopic == "" {
		config.SyncTopic = store.DefaultSyncTopic
	}
	if config.SyncMode == "" {
		config.SyncMode = store.SyncUpdate
	}
	if config.NodeID == "" {
		config.NodeID = b.NodeID()
	}

	local, err := lru.New[string, []byte](config.Capacity)
	if err != nil {
		return nil, fmt.Errorf("nearcache: create local cache: %w", err)
	}

	c := &NearCache{
		client:  client,
		broker:  b,
		config:  config,
		local:   local,
		logger:  corelog.Default(),
		metrics: store.NewStoreMetrics(),
		loading: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithField("component", storeType)

	b.OnConnectionEvent(func(topic string, event broker.ConnectionEvent) {
		if topic == c.config.SyncTopic {
			c.reset(event)
		}
	})

	ch, err := b.Subscribe(ctx, config.SyncTopic)
	if err != nil {
		return nil, fmt.Errorf("nearcache: subscribe %s: %w", config.SyncTopic, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	safe.GoWithContext(loopCtx, c.logger, "nearcache-sync", func(ctx context.Context) { c.syncLoop(ctx, ch) })

	c.logger.Infof("NearCache started: capacity=%d hash=%s mode=%s", config.Capacity, config.HashKey, config.SyncMode)
	return c, nil
}

// GetRaw 获取编码后的值
func (c *NearCache) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, store.ErrInvalidKey
	}
	if raw, ok := c.local.Get(key); ok {
		c.metrics.RecordCacheHit()
		return raw, true, nil
	}
	c.metrics.RecordCacheMiss()

	start := time.Now()
	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		return c.load(ctx, key)
	})
	c.metrics.RecordGet(time.Since(start), err)
	if err != nil {
		return nil, false, err
	}
	raw := v.([]byte)
	return raw, raw != nil, nil
}

// load 回源读取，期间若本地被修改则放弃回填
func (c *NearCache) load(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	c.loading[key] = false
	c.mu.Unlock()

	raw, err := c.client.HGet(ctx, c.config.HashKey, key).Bytes()

	c.mu.Lock()
	defer c.mu.Unlock()
	dirty := c.loading[key]
	delete(c.loading, key)

	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, store.NewStoreError(storeType, "Get", key, err)
	}
	if !dirty {
		c.local.Add(key, raw)
	}
	return raw, nil
}

// Get 获取并解码为 T；类型不匹配记录告警并视为不存在
func Get[T any](ctx context.Context, c *NearCache, key string) (T, bool, error) {
	var zero T
	raw, ok, err := c.GetRaw(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := store.Unmarshal[T](raw)
	if err != nil {
		c.metrics.TypeMismatchCount.Add(1)
		c.logger.WithField("key", key).Warnf("NearCache: %v", err)
		return zero, false, nil
	}
	return v, true, nil
}

// Set 写入远端并同步到其他节点
func (c *NearCache) Set(ctx context.Context, key string, value any) error {
	if key == "" {
		return store.ErrInvalidKey
	}
	raw, err := store.Marshal(value)
	if err != nil {
		return store.NewStoreError(storeType, "Set", key, err)
	}

	start := time.Now()
	err = c.client.HSet(ctx, c.config.HashKey, key, raw).Err()
	c.metrics.RecordSet(time.Since(start), err)
	if err != nil {
		return store.NewStoreError(storeType, "Set", key, err)
	}

	c.applyLocal(key, raw)

	msg := &broker.CacheSyncMessage{Key: key, Action: broker.CacheActionSet, NodeID: c.config.NodeID}
	if c.config.SyncMode == store.SyncUpdate {
		msg.Value = raw
	}
	c.publish(ctx, msg)
	return nil
}

// Delete 从远端和本地删除，并通知其他节点
func (c *NearCache) Delete(ctx context.Context, key string) error {
	if key == "" {
		return store.ErrInvalidKey
	}
	err := c.client.HDel(ctx, c.config.HashKey, key).Err()
	c.metrics.RecordDelete(err)
	if err != nil {
		return store.NewStoreError(storeType, "Delete", key, err)
	}

	c.applyLocal(key, nil)
	c.publish(ctx, &broker.CacheSyncMessage{Key: key, Action: broker.CacheActionDelete, NodeID: c.config.NodeID})
	return nil
}

// Size 远端全局条目数，与本地缓存无关
func (c *NearCache) Size(ctx context.Context) (int64, error) {
	n, err := c.client.HLen(ctx, c.config.HashKey).Result()
	if err != nil {
		return 0, store.NewStoreError(storeType, "Size", c.config.HashKey, err)
	}
	return n, nil
}

// LocalLen 本地缓存条目数
func (c *NearCache) LocalLen() int {
	return c.local.Len()
}

// CachedLocally 键是否驻留在本地（不影响 LRU 顺序）
func (c *NearCache) CachedLocally(key string) bool {
	return c.local.Contains(key)
}

// Purge 清空本地缓存
func (c *NearCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local.Purge()
	for key := range c.loading {
		c.loading[key] = true
	}
}

// GetMetrics 获取指标
func (c *NearCache) GetMetrics() *store.StoreMetrics {
	return c.metrics
}

// Close 停止同步，不关闭 broker 与 Redis 客户端
func (c *NearCache) Close() error {
	err := c.broker.Unsubscribe(context.Background(), c.config.SyncTopic)
	if errors.Is(err, broker.ErrBrokerClosed) {
		err = nil
	}
	c.cancel()
	c.wg.Wait()
	return err
}

// applyLocal 更新本地副本，raw 为 nil 时删除
func (c *NearCache) applyLocal(key string, raw []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if raw == nil {
		c.local.Remove(key)
	} else {
		c.local.Add(key, raw)
	}
	if _, ok := c.loading[key]; ok {
		c.loading[key] = true
	}
}

func (c *NearCache) publish(ctx context.Context, msg *broker.CacheSyncMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Errorf("NearCache: marshal sync message for %s: %v", msg.Key, err)
		return
	}
	// 远端已写入成功，广播失败只影响对端的新鲜度
	if err := c.broker.Publish(ctx, c.config.SyncTopic, payload); err != nil {
		c.metrics.ErrorCount.Add(1)
		c.logger.WithField("key", msg.Key).Errorf("NearCache: publish sync message: %v", err)
	}
}

func (c *NearCache) syncLoop(ctx context.Context, ch <-chan *broker.Message) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			c.handleMessage(msg)
		}
	}
}

// handleMessage 应用其他节点的同步消息，忽略本节点发出的消息
func (c *NearCache) handleMessage(msg *broker.Message) {
	if msg.NodeID == c.config.NodeID {
		return
	}
	var update broker.CacheSyncMessage
	if err := json.Unmarshal(msg.Payload, &update); err != nil {
		c.logger.Warnf("NearCache: invalid sync message: %v", err)
		return
	}
	if update.Invalidate() {
		c.applyLocal(update.Key, nil)
	} else {
		c.applyLocal(update.Key, update.Value)
	}
	c.metrics.SyncApplied.Add(1)
}

// reset 订阅不可靠时丢弃整个本地缓存
func (c *NearCache) reset(event broker.ConnectionEvent) {
	c.Purge()
	c.metrics.LocalCacheResets.Add(1)
	c.logger.Warnf("NearCache: local cache purged after %s", event)
}
