package store

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector 将一组 StoreMetrics 导出为 Prometheus 指标
// 每个组件以 component 标签区分
type Collector struct {
	components map[string]*StoreMetrics

	ops         *prometheus.Desc
	errors      *prometheus.Desc
	cacheEvents *prometheus.Desc
	syncApplied *prometheus.Desc
	cacheResets *prometheus.Desc
	reaped      *prometheus.Desc
}

// NewCollector 创建 Collector，namespace 为空时使用 chatstate
func NewCollector(namespace string, components map[string]*StoreMetrics) *Collector {
	if namespace == "" {
		namespace = "chatstate"
	}
	labels := []string{"component"}
	return &Collector{
		components: components,
		ops: prometheus.NewDesc(prometheus.BuildFQName(namespace, "store", "operations_total"),
			"Store operations by kind.", append(labels, "op"), nil),
		errors: prometheus.NewDesc(prometheus.BuildFQName(namespace, "store", "errors_total"),
			"Store errors by kind.", append(labels, "kind"), nil),
		cacheEvents: prometheus.NewDesc(prometheus.BuildFQName(namespace, "nearcache", "lookups_total"),
			"Near-cache local tier lookups.", append(labels, "result"), nil),
		syncApplied: prometheus.NewDesc(prometheus.BuildFQName(namespace, "nearcache", "sync_applied_total"),
			"Sync messages from peer nodes applied to the local tier.", labels, nil),
		cacheResets: prometheus.NewDesc(prometheus.BuildFQName(namespace, "nearcache", "local_resets_total"),
			"Local tier purges caused by subscription reconnects.", labels, nil),
		reaped: prometheus.NewDesc(prometheus.BuildFQName(namespace, "store", "reaped_total"),
			"Dead index entries removed during reads.", labels, nil),
	}
}

// Describe 实现 prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ops
	ch <- c.errors
	ch <- c.cacheEvents
	ch <- c.syncApplied
	ch <- c.cacheResets
	ch <- c.reaped
}

// Collect 实现 prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for name, m := range c.components {
		if m == nil {
			continue
		}
		s := m.Snapshot()
		counter := func(desc *prometheus.Desc, v int64, labels ...string) {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), append([]string{name}, labels...)...)
		}
		counter(c.ops, s.GetCount, "get")
		counter(c.ops, s.SetCount, "set")
		counter(c.ops, s.DeleteCount, "delete")
		counter(c.errors, s.ErrorCount, "backend")
		counter(c.errors, s.NotFoundCount, "not_found")
		counter(c.errors, s.TypeMismatchCount, "type_mismatch")
		counter(c.cacheEvents, s.CacheHits, "hit")
		counter(c.cacheEvents, s.CacheMisses, "miss")
		counter(c.syncApplied, s.SyncApplied)
		counter(c.cacheResets, s.LocalCacheResets)
		counter(c.reaped, s.ReapedCount)
	}
}

var _ prometheus.Collector = (*Collector)(nil)
