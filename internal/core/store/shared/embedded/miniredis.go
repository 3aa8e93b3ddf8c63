// Package embedded 提供内嵌 Redis (miniredis) 实现
// 用于单机模式和测试，无需外部 Redis 依赖
package embedded

import (
	"fmt"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// EmbeddedRedis 内嵌 Redis 服务（基于 miniredis）
type EmbeddedRedis struct {
	server *miniredis.Miniredis
	client *redis.Client
}

// NewEmbeddedRedis 启动内嵌 Redis
func NewEmbeddedRedis() (*EmbeddedRedis, error) {
	server, err := miniredis.Run()
	if err != nil {
		return nil, fmt.Errorf("start miniredis failed: %w", err)
	}

	return &EmbeddedRedis{
		server: server,
		client: redis.NewClient(&redis.Options{Addr: server.Addr()}),
	}, nil
}

// GetClient 获取 Redis 客户端
func (e *EmbeddedRedis) GetClient() *redis.Client {
	return e.client
}

// NewClient 创建连接到同一服务的新客户端，模拟另一节点
func (e *EmbeddedRedis) NewClient() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: e.server.Addr()})
}

// GetAddr 获取服务地址
func (e *EmbeddedRedis) GetAddr() string {
	return e.server.Addr()
}

// FastForward 快进时间（用于测试 TTL）
func (e *EmbeddedRedis) FastForward(d time.Duration) {
	e.server.FastForward(d)
}

// Close 关闭客户端与服务
func (e *EmbeddedRedis) Close() error {
	err := e.client.Close()
	e.server.Close()
	return err
}
