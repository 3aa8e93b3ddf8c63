package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"chatstate/internal/core/store"
)

// PatternDeleter 使用 SCAN + UNLINK 按模式批量删除键
// 遍历整个键空间，只用于管理/测试重置
type PatternDeleter struct {
	client    redis.UniversalClient
	batchSize int64
	limiter   *rate.Limiter
}

// NewPatternDeleter 创建按模式删除器
// limiter 为 nil 时不限速，否则每批删除前等待一个令牌
func NewPatternDeleter(client redis.UniversalClient, batchSize int64, limiter *rate.Limiter) *PatternDeleter {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &PatternDeleter{
		client:    client,
		batchSize: batchSize,
		limiter:   limiter,
	}
}

// DeleteByPattern 删除匹配 pattern 的全部键，返回删除数量
// 先完整扫描再分批 UNLINK：边扫边删会让部分实现（miniredis）的游标跳过键
// 任何错误立即返回，已删除的数量仍然有效
func (d *PatternDeleter) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	keys, err := d.scan(ctx, pattern)
	if err != nil {
		return 0, err
	}

	var total int64
	for start := 0; start < len(keys); start += int(d.batchSize) {
		end := min(start+int(d.batchSize), len(keys))
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return total, err
			}
		}
		n, err := d.client.Unlink(ctx, keys[start:end]...).Result()
		if err != nil {
			return total, fmt.Errorf("unlink failed: %w", err)
		}
		total += n
	}
	return total, nil
}

// CountByPattern 统计匹配 pattern 的键数量（不删除）
func (d *PatternDeleter) CountByPattern(ctx context.Context, pattern string) (int64, error) {
	keys, err := d.scan(ctx, pattern)
	if err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

// scan 收集匹配的全部键，SCAN 可能重复返回同一个键
func (d *PatternDeleter) scan(ctx context.Context, pattern string) ([]string, error) {
	var cursor uint64
	seen := make(map[string]struct{})
	var keys []string
	for {
		batch, next, err := d.client.Scan(ctx, cursor, pattern, d.batchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s failed: %w", pattern, err)
		}
		for _, key := range batch {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

var _ store.PatternDeleter = (*PatternDeleter)(nil)
