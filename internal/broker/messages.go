package broker

// CacheAction 近端缓存同步动作
type CacheAction string

const (
	CacheActionSet    CacheAction = "set"
	CacheActionDelete CacheAction = "delete"
)

// CacheSyncMessage 近端缓存同步消息
// Value 为空且 Action 为 set 时表示只失效，由接收方下次读取时回源
type CacheSyncMessage struct {
	Key    string      `json:"key"`
	Action CacheAction `json:"action"`
	Value  []byte      `json:"value,omitempty"`
	NodeID string      `json:"node_id"`
}

// Invalidate 是否仅为失效通知
func (m *CacheSyncMessage) Invalidate() bool {
	return m.Action == CacheActionDelete || len(m.Value) == 0
}
