package broker

import (
	"context"
	"time"
)

// MessageBroker 消息代理接口（抽象节点间广播能力）
type MessageBroker interface {
	// Publish 发布消息到指定主题
	Publish(ctx context.Context, topic string, message []byte) error

	// Subscribe 订阅主题，返回消息通道
	Subscribe(ctx context.Context, topic string) (<-chan *Message, error)

	// Unsubscribe 取消订阅
	Unsubscribe(ctx context.Context, topic string) error

	// OnConnectionEvent 注册连接事件回调
	OnConnectionEvent(handler ConnectionHandler)

	// NodeID 当前节点标识
	NodeID() string

	// Close 关闭代理
	Close() error
}

// Message 消息结构
type Message struct {
	Topic     string    `json:"topic"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
}

// ConnectionEvent 订阅连接事件
type ConnectionEvent int

const (
	// EventDisconnected 订阅连接中断，期间的消息可能已丢失
	EventDisconnected ConnectionEvent = iota + 1
	// EventResubscribed 连接恢复后重新订阅成功
	EventResubscribed
	// EventOverflow 订阅者通道已满，消息被丢弃
	EventOverflow
)

func (e ConnectionEvent) String() string {
	switch e {
	case EventDisconnected:
		return "disconnected"
	case EventResubscribed:
		return "resubscribed"
	case EventOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// ConnectionHandler 连接事件回调
type ConnectionHandler func(topic string, event ConnectionEvent)
