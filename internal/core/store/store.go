// Package store 提供共享状态层的存储抽象
//
// 存储层次结构:
//   - Store[K,V]: 基础键值存储接口
//   - TTLStore[K,V]: 支持 TTL 的存储（会话、限流）
//   - BatchStore[K,V]: 支持批量操作的存储（pipeline 批量探测）
//   - SetStore[K,V]: 集合存储（用户会话索引、房间在线集合）
//   - ListStore[K,V]: 列表存储（房间消息时间线）
//   - PatternDeleter: 按模式批量删除（管理操作）
//
// 所有实现都以 Redis 作为共享后端，节点之间不共享进程内状态。
package store

import (
	"context"
	"time"
)

// =============================================================================
// 基础存储接口
// =============================================================================

// Store 基础键值存储接口
type Store[K comparable, V any] interface {
	// Get 获取值，不存在返回 ErrNotFound，类型标记不匹配返回 ErrTypeMismatch
	Get(ctx context.Context, key K) (V, error)

	// Set 设置值（不过期）
	Set(ctx context.Context, key K, value V) error

	// Delete 删除值，不存在不返回错误
	Delete(ctx context.Context, key K) error

	// Exists 检查键是否存在
	Exists(ctx context.Context, key K) (bool, error)
}

// =============================================================================
// 扩展接口
// =============================================================================

// TTLStore 支持 TTL 的存储
type TTLStore[K comparable, V any] interface {
	Store[K, V]

	// SetWithTTL 设置值并指定 TTL，ttl<=0 表示不过期
	SetWithTTL(ctx context.Context, key K, value V, ttl time.Duration) error

	// GetTTL 获取剩余 TTL，不存在返回 ErrNotFound，永不过期返回 -1
	GetTTL(ctx context.Context, key K) (time.Duration, error)
}

// BatchStore 支持批量操作的存储
type BatchStore[K comparable, V any] interface {
	Store[K, V]

	// BatchGet 单次往返批量获取，不存在或类型不匹配的键不在结果中
	BatchGet(ctx context.Context, keys []K) (map[K]V, error)

	// BatchDelete 批量删除
	BatchDelete(ctx context.Context, keys []K) error
}

// KVStore 共享键值存储（TTL + 批量）
type KVStore[K comparable, V any] interface {
	TTLStore[K, V]
	BatchStore[K, V]
}

// SetStore 集合存储（用于索引）
type SetStore[K comparable, V comparable] interface {
	// Add 向集合添加元素
	Add(ctx context.Context, key K, values ...V) error

	// Remove 从集合移除元素
	Remove(ctx context.Context, key K, values ...V) error

	// RemoveAndPrune 原子地移除元素，集合变空时删除键
	RemoveAndPrune(ctx context.Context, key K, value V) error

	// Contains 检查元素是否在集合中
	Contains(ctx context.Context, key K, value V) (bool, error)

	// Members 获取集合所有成员，集合不存在返回空切片
	Members(ctx context.Context, key K) ([]V, error)

	// Size 获取集合大小
	Size(ctx context.Context, key K) (int64, error)

	// Clear 删除整个集合
	Clear(ctx context.Context, key K) error
}

// ListStore 列表存储（按追加顺序）
type ListStore[K comparable, V any] interface {
	// Append 追加到列表尾部，返回追加后的长度
	Append(ctx context.Context, key K, value V) (int64, error)

	// Range 获取 [start, stop] 闭区间元素，stop=-1 表示到末尾
	// 类型不匹配的元素被跳过
	Range(ctx context.Context, key K, start, stop int64) ([]V, error)

	// Len 获取列表长度
	Len(ctx context.Context, key K) (int64, error)

	// BatchRange 单次往返获取多个列表的全部元素
	BatchRange(ctx context.Context, keys []K) (map[K][]V, error)
}

// PatternDeleter 按模式删除键（管理操作，O(键空间)）
type PatternDeleter interface {
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)

	// CountByPattern 统计匹配的键数，用于删除前预览
	CountByPattern(ctx context.Context, pattern string) (int64, error)
}

// HealthChecker 健康检查接口
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Closer 关闭接口
type Closer interface {
	Close() error
}

// =============================================================================
// 存储类型标识
// =============================================================================

// StoreType 存储类型
type StoreType string

const (
	// StoreTypeRedis 外部 Redis
	StoreTypeRedis StoreType = "redis"

	// StoreTypeEmbedded 内嵌 Redis (miniredis)
	StoreTypeEmbedded StoreType = "embedded"
)
