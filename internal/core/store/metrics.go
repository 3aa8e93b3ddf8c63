package store

import (
	"sync/atomic"
	"time"
)

// =============================================================================
// 存储层监控指标
// =============================================================================

// StoreMetrics 存储层监控指标
type StoreMetrics struct {
	GetCount    atomic.Int64
	SetCount    atomic.Int64
	DeleteCount atomic.Int64

	ErrorCount        atomic.Int64 // 后端错误（不含 NotFound）
	NotFoundCount     atomic.Int64
	TypeMismatchCount atomic.Int64

	GetLatencySum atomic.Int64 // 纳秒
	SetLatencySum atomic.Int64 // 纳秒

	// 近端缓存
	CacheHits        atomic.Int64
	CacheMisses      atomic.Int64
	SyncApplied      atomic.Int64 // 应用的远端同步消息
	LocalCacheResets atomic.Int64 // 重连导致的本地缓存清空

	// 惰性清理
	ReapedCount atomic.Int64
}

// NewStoreMetrics 创建新的存储指标
func NewStoreMetrics() *StoreMetrics {
	return &StoreMetrics{}
}

// RecordGet 记录 Get 操作
func (m *StoreMetrics) RecordGet(duration time.Duration, err error) {
	m.GetCount.Add(1)
	m.GetLatencySum.Add(int64(duration))
	m.recordErr(err)
}

// RecordSet 记录 Set 操作
func (m *StoreMetrics) RecordSet(duration time.Duration, err error) {
	m.SetCount.Add(1)
	m.SetLatencySum.Add(int64(duration))
	m.recordErr(err)
}

// RecordDelete 记录 Delete 操作
func (m *StoreMetrics) RecordDelete(err error) {
	m.DeleteCount.Add(1)
	m.recordErr(err)
}

func (m *StoreMetrics) recordErr(err error) {
	switch {
	case err == nil:
	case IsNotFound(err):
		m.NotFoundCount.Add(1)
	case IsTypeMismatch(err):
		m.TypeMismatchCount.Add(1)
	default:
		m.ErrorCount.Add(1)
	}
}

// RecordCacheHit 记录缓存命中
func (m *StoreMetrics) RecordCacheHit() { m.CacheHits.Add(1) }

// RecordCacheMiss 记录缓存未命中
func (m *StoreMetrics) RecordCacheMiss() { m.CacheMisses.Add(1) }

// RecordReaped 记录惰性清理的条目数
func (m *StoreMetrics) RecordReaped(n int) { m.ReapedCount.Add(int64(n)) }

// GetCacheHitRate 获取缓存命中率
func (m *StoreMetrics) GetCacheHitRate() float64 {
	hits := m.CacheHits.Load()
	total := hits + m.CacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// MetricsSnapshot 指标快照
type MetricsSnapshot struct {
	GetCount          int64
	SetCount          int64
	DeleteCount       int64
	ErrorCount        int64
	NotFoundCount     int64
	TypeMismatchCount int64
	AvgGetLatency     time.Duration
	AvgSetLatency     time.Duration
	CacheHits         int64
	CacheMisses       int64
	CacheHitRate      float64
	SyncApplied       int64
	LocalCacheResets  int64
	ReapedCount       int64
}

// Snapshot 获取指标快照
func (m *StoreMetrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		GetCount:          m.GetCount.Load(),
		SetCount:          m.SetCount.Load(),
		DeleteCount:       m.DeleteCount.Load(),
		ErrorCount:        m.ErrorCount.Load(),
		NotFoundCount:     m.NotFoundCount.Load(),
		TypeMismatchCount: m.TypeMismatchCount.Load(),
		CacheHits:         m.CacheHits.Load(),
		CacheMisses:       m.CacheMisses.Load(),
		CacheHitRate:      m.GetCacheHitRate(),
		SyncApplied:       m.SyncApplied.Load(),
		LocalCacheResets:  m.LocalCacheResets.Load(),
		ReapedCount:       m.ReapedCount.Load(),
	}
	if s.GetCount > 0 {
		s.AvgGetLatency = time.Duration(m.GetLatencySum.Load() / s.GetCount)
	}
	if s.SetCount > 0 {
		s.AvgSetLatency = time.Duration(m.SetLatencySum.Load() / s.SetCount)
	}
	return s
}
