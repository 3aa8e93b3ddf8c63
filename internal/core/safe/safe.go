// Package safe 提供带 panic 恢复的后台 Goroutine
package safe

import (
	"context"
	"runtime/debug"
	"sync/atomic"

	corelog "chatstate/internal/core/log"
)

var (
	activeCount atomic.Int64
	totalCount  atomic.Int64
	panicCount  atomic.Int64
)

// Stats Goroutine 统计信息
type Stats struct {
	Active     int64
	Total      int64
	PanicCount int64
}

// GetStats 获取统计信息
func GetStats() Stats {
	return Stats{
		Active:     activeCount.Load(),
		Total:      totalCount.Load(),
		PanicCount: panicCount.Load(),
	}
}

// Go 启动 Goroutine，panic 被恢复并记录到 logger
// name 用于日志标识
func Go(logger corelog.Logger, name string, fn func()) {
	logger = corelog.OrDefault(logger)
	totalCount.Add(1)
	activeCount.Add(1)

	go func() {
		defer func() {
			activeCount.Add(-1)
			if r := recover(); r != nil {
				panicCount.Add(1)
				logger.Errorf("SafeGo[%s]: panic recovered: %v\n%s", name, r, debug.Stack())
			}
		}()
		fn()
	}()
}

// GoWithContext 带 context 的 Go，fn 应在 ctx.Done() 时退出
func GoWithContext(ctx context.Context, logger corelog.Logger, name string, fn func(ctx context.Context)) {
	Go(logger, name, func() { fn(ctx) })
}
