package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStateConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	content := `
mode: cluster
node_id: node-a
redis:
  addr: redis.internal:6379
  pool_size: 20
  read_timeout: 2s
near_cache:
  capacity: 500
  sync_mode: invalidate
session:
  ttl: 45m
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadStateConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ModeCluster, cfg.Mode)
	assert.Equal(t, "node-a", cfg.NodeID)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, 20, cfg.Redis.PoolSize)
	assert.Equal(t, 2*time.Second, cfg.Redis.ReadTimeout)
	assert.Equal(t, 3, cfg.Redis.MaxRetries, "untouched fields keep defaults")
	assert.Equal(t, 500, cfg.NearCache.Capacity)
	assert.Equal(t, SyncInvalidate, cfg.NearCache.SyncMode)
	assert.Equal(t, DefaultNearCacheHashKey, cfg.NearCache.HashKey)
	assert.Equal(t, 45*time.Minute, cfg.Session.TTL)
	assert.Equal(t, DefaultRateLimitFallback, cfg.RateLimit.FallbackTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestStateConfig_Validate(t *testing.T) {
	t.Run("fills defaults", func(t *testing.T) {
		cfg := &StateConfig{}
		require.NoError(t, cfg.Validate())
		assert.True(t, cfg.IsSingleMode())
		assert.Equal(t, DefaultNearCacheCapacity, cfg.NearCache.Capacity)
		assert.Equal(t, SyncUpdate, cfg.NearCache.SyncMode)
		assert.Equal(t, DefaultSessionTTL, cfg.Session.TTL)
		assert.Equal(t, DefaultRateLimitFallback, cfg.RateLimit.FallbackTTL)
	})

	t.Run("rejects bad values", func(t *testing.T) {
		bad := []*StateConfig{
			{Mode: "mesh"},
			{Mode: ModeCluster},
			{NearCache: NearCacheConfig{SyncMode: "broadcast"}},
			{Redis: RedisConfig{MaxRetries: -1}},
		}
		for _, cfg := range bad {
			assert.Error(t, cfg.Validate())
		}
	})
}

func TestLoadStateConfig_MissingFile(t *testing.T) {
	_, err := LoadStateConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
