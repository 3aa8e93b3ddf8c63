package store

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"chatstate/internal/core/log"
)

// =============================================================================
// 状态层配置
// =============================================================================

// StateConfig 状态层配置
type StateConfig struct {
	// Mode 部署模式：single（内嵌 miniredis）| cluster（外部 Redis）
	Mode DeploymentMode `yaml:"mode"`

	// NodeID 当前节点标识，用于过滤自己发出的同步消息，为空时自动生成
	NodeID string `yaml:"node_id"`

	Redis     RedisConfig     `yaml:"redis"`
	NearCache NearCacheConfig `yaml:"near_cache"`
	Session   SessionConfig   `yaml:"session"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       log.Config      `yaml:"log"`

	// MetricsNamespace Prometheus 指标前缀
	MetricsNamespace string `yaml:"metrics_namespace"`
}

// DeploymentMode 部署模式
type DeploymentMode string

const (
	// ModeSingle 单机模式（使用 miniredis）
	ModeSingle DeploymentMode = "single"

	// ModeCluster 集群模式（使用外部 Redis）
	ModeCluster DeploymentMode = "cluster"
)

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr            string        `yaml:"addr"`
	Password        string        `yaml:"password"`
	DB              int           `yaml:"db"`
	PoolSize        int           `yaml:"pool_size"`
	MinIdleConns    int           `yaml:"min_idle_conns"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	MinRetryBackoff time.Duration `yaml:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `yaml:"max_retry_backoff"`
}

// SyncMode 近端缓存跨节点同步方式
type SyncMode string

const (
	// SyncUpdate 推送完整新值，对端直接更新本地缓存
	SyncUpdate SyncMode = "update"

	// SyncInvalidate 只推送键，对端删除本地副本
	SyncInvalidate SyncMode = "invalidate"
)

// NearCacheConfig 近端缓存配置
type NearCacheConfig struct {
	// Capacity 本地 LRU 容量（条目数）
	Capacity int `yaml:"capacity"`

	// HashKey 远端 Redis Hash 键
	HashKey string `yaml:"hash_key"`

	// SyncMode 同步方式
	SyncMode SyncMode `yaml:"sync_mode"`

	// SyncTopic 同步消息主题
	SyncTopic string `yaml:"sync_topic"`
}

// SessionConfig 会话配置
type SessionConfig struct {
	// TTL 会话滑动过期时间，每次 Save 重置
	TTL time.Duration `yaml:"ttl"`
}

// RateLimitConfig 限流记录配置
type RateLimitConfig struct {
	// FallbackTTL ExpiresAt 无效时使用的 TTL
	FallbackTTL time.Duration `yaml:"fallback_ttl"`
}

// =============================================================================
// 默认配置
// =============================================================================

const (
	DefaultNearCacheCapacity = 10000
	DefaultNearCacheHashKey  = "chat:store"
	DefaultSyncTopic         = "nearcache.sync"
	DefaultSessionTTL        = 30 * time.Minute
	DefaultRateLimitFallback = time.Hour
)

// DefaultStateConfig 默认状态层配置
func DefaultStateConfig() *StateConfig {
	return &StateConfig{
		Mode:  ModeSingle,
		Redis: *DefaultRedisConfig(),
		NearCache: NearCacheConfig{
			Capacity:  DefaultNearCacheCapacity,
			HashKey:   DefaultNearCacheHashKey,
			SyncMode:  SyncUpdate,
			SyncTopic: DefaultSyncTopic,
		},
		Session:          SessionConfig{TTL: DefaultSessionTTL},
		RateLimit:        RateLimitConfig{FallbackTTL: DefaultRateLimitFallback},
		Log:              log.Config{Level: "info", Format: "text", Output: "stdout"},
		MetricsNamespace: "chatstate",
	}
}

// DefaultRedisConfig 默认 Redis 配置
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:            "localhost:6379",
		PoolSize:        10,
		MinIdleConns:    5,
		DialTimeout:     10 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 1500 * time.Millisecond,
	}
}

// =============================================================================
// 加载与验证
// =============================================================================

// LoadStateConfig 从 YAML 文件加载配置，缺省字段使用默认值
func LoadStateConfig(path string) (*StateConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultStateConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 验证配置并补全默认值
func (c *StateConfig) Validate() error {
	switch c.Mode {
	case "":
		c.Mode = ModeSingle
	case ModeSingle, ModeCluster:
	default:
		return fmt.Errorf("invalid mode %q: want single or cluster", c.Mode)
	}

	if c.Mode == ModeCluster && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required in cluster mode")
	}
	if c.Redis.PoolSize <= 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.MaxRetries < 0 {
		return fmt.Errorf("redis.max_retries must not be negative")
	}

	if c.NearCache.Capacity <= 0 {
		c.NearCache.Capacity = DefaultNearCacheCapacity
	}
	if c.NearCache.HashKey == "" {
		c.NearCache.HashKey = DefaultNearCacheHashKey
	}
	if c.NearCache.SyncTopic == "" {
		c.NearCache.SyncTopic = DefaultSyncTopic
	}
	switch c.NearCache.SyncMode {
	case "":
		c.NearCache.SyncMode = SyncUpdate
	case SyncUpdate, SyncInvalidate:
	default:
		return fmt.Errorf("invalid near_cache.sync_mode %q", c.NearCache.SyncMode)
	}

	if c.Session.TTL <= 0 {
		c.Session.TTL = DefaultSessionTTL
	}
	if c.RateLimit.FallbackTTL <= 0 {
		c.RateLimit.FallbackTTL = DefaultRateLimitFallback
	}
	if c.MetricsNamespace == "" {
		c.MetricsNamespace = "chatstate"
	}
	return nil
}

// IsSingleMode 是否为单机模式
func (c *StateConfig) IsSingleMode() bool {
	return c.Mode == ModeSingle
}
