package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	corelog "chatstate/internal/core/log"
	"chatstate/internal/core/safe"
)

// ErrBrokerClosed 代理已关闭
var ErrBrokerClosed = errors.New("broker is closed")

const (
	defaultChannelPrefix    = "chatstate:"
	defaultSubscriberBuffer = 1024
	defaultSubscribeTimeout = 5 * time.Second
	receiveRetryDelay       = 100 * time.Millisecond
)

// RedisBrokerConfig Redis Broker 配置
type RedisBrokerConfig struct {
	NodeID           string
	ChannelPrefix    string
	SubscriberBuffer int
	SubscribeTimeout time.Duration
}

// topicState 本地订阅状态
type topicState struct {
	ch         chan *Message
	ready      chan struct{}
	subscribed bool
}

// RedisBroker Redis 消息代理（基于 Pub/Sub）
// 客户端由调用方持有，Close 不关闭客户端
type RedisBroker struct {
	client   redis.UniversalClient
	pubsub   *redis.PubSub
	config   RedisBrokerConfig
	logger   corelog.Logger
	topics   map[string]*topicState
	handlers []ConnectionHandler
	mu       sync.RWMutex
	closed   bool

	// receiving 接收协程已启动，首次 SUBSCRIBE 失败时仍为 false
	receiving bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisBroker 创建 Redis 消息代理
func NewRedisBroker(parentCtx context.Context, client redis.UniversalClient, config RedisBrokerConfig, logger corelog.Logger) (*RedisBroker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.NodeID == "" {
		return nil, fmt.Errorf("node id is required")
	}
	if config.ChannelPrefix == "" {
		config.ChannelPrefix = defaultChannelPrefix
	}
	if config.SubscriberBuffer <= 0 {
		config.SubscriberBuffer = defaultSubscriberBuffer
	}
	if config.SubscribeTimeout <= 0 {
		config.SubscribeTimeout = defaultSubscribeTimeout
	}

	ctx, cancel := context.WithCancel(parentCtx)
	b := &RedisBroker{
		client: client,
		config: config,
		logger: corelog.OrDefault(logger).WithField("node_id", config.NodeID),
		topics: make(map[string]*topicState),
		ctx:    ctx,
		cancel: cancel,
	}
	b.logger.Infof("RedisBroker initialized")
	return b, nil
}

// NodeID 当前节点标识
func (r *RedisBroker) NodeID() string {
	return r.config.NodeID
}

func (r *RedisBroker) channel(topic string) string {
	return r.config.ChannelPrefix + topic
}

// Publish 发布消息到指定主题
func (r *RedisBroker) Publish(ctx context.Context, topic string, message []byte) error {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return ErrBrokerClosed
	}

	data, err := json.Marshal(&Message{
		Topic:     topic,
		Payload:   message,
		Timestamp: time.Now(),
		NodeID:    r.config.NodeID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := r.client.Publish(ctx, r.channel(topic), data).Err(); err != nil {
		r.logger.Errorf("RedisBroker: failed to publish to %s: %v", topic, err)
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Subscribe 订阅主题，返回消息通道
// 服务端确认订阅后才返回，之后发布的消息保证可见
func (r *RedisBroker) Subscribe(ctx context.Context, topic string) (<-chan *Message, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrBrokerClosed
	}
	if _, exists := r.topics[topic]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("already subscribed to topic: %s", topic)
	}

	state := &topicState{
		ch:    make(chan *Message, r.config.SubscriberBuffer),
		ready: make(chan struct{}),
	}
	r.topics[topic] = state

	if r.pubsub == nil {
		r.pubsub = r.client.Subscribe(r.ctx)
	}
	if err := r.pubsub.Subscribe(ctx, r.channel(topic)); err != nil {
		delete(r.topics, topic)
		close(state.ch)
		r.mu.Unlock()
		return nil, fmt.Errorf("failed to subscribe to redis: %w", err)
	}
	if !r.receiving {
		r.receiving = true
		r.wg.Add(1)
		pubsub := r.pubsub
		safe.Go(r.logger, "redis-broker-receive", func() { r.receiveLoop(pubsub) })
	}
	r.mu.Unlock()

	timer := time.NewTimer(r.config.SubscribeTimeout)
	defer timer.Stop()
	select {
	case <-state.ready:
	case <-ctx.Done():
		r.abandon(topic, state)
		return nil, ctx.Err()
	case <-timer.C:
		r.abandon(topic, state)
		return nil, fmt.Errorf("timeout waiting for subscription to %s", topic)
	}

	r.logger.Infof("RedisBroker: subscribed to topic %s", topic)
	return state.ch, nil
}

// abandon 撤销未确认的订阅，之后可以重新 Subscribe
func (r *RedisBroker) abandon(topic string, state *topicState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.topics[topic] != state {
		return
	}
	delete(r.topics, topic)
	close(state.ch)
	if r.pubsub != nil && !r.closed {
		if err := r.pubsub.Unsubscribe(context.Background(), r.channel(topic)); err != nil {
			r.logger.Warnf("RedisBroker: failed to unsubscribe from redis: %v", err)
		}
	}
}

// OnConnectionEvent 注册连接事件回调，回调在接收协程中同步执行
func (r *RedisBroker) OnConnectionEvent(handler ConnectionHandler) {
	r.mu.Lock()
	r.handlers = append(r.handlers, handler)
	r.mu.Unlock()
}

// receiveLoop 接收 Redis 消息循环
func (r *RedisBroker) receiveLoop(pubsub *redis.PubSub) {
	defer r.wg.Done()
	disconnected := false

	for {
		msg, err := pubsub.Receive(r.ctx)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			if !disconnected {
				disconnected = true
				r.logger.Warnf("RedisBroker: subscription lost: %v", err)
				r.emitAll(EventDisconnected)
			}
			select {
			case <-r.ctx.Done():
				return
			case <-time.After(receiveRetryDelay):
			}
			continue
		}
		disconnected = false

		switch m := msg.(type) {
		case *redis.Subscription:
			r.handleSubscription(m)
		case *redis.Message:
			r.dispatch(m)
		case *redis.Pong:
		default:
			r.logger.Debugf("RedisBroker: ignoring %T", msg)
		}
	}
}

// handleSubscription 首次确认唤醒 Subscribe，之后的确认视为重连
func (r *RedisBroker) handleSubscription(m *redis.Subscription) {
	if m.Kind != "subscribe" {
		return
	}
	topic := strings.TrimPrefix(m.Channel, r.config.ChannelPrefix)

	r.mu.Lock()
	state, ok := r.topics[topic]
	if !ok {
		r.mu.Unlock()
		return
	}
	resubscribed := state.subscribed
	if !state.subscribed {
		state.subscribed = true
		close(state.ready)
	}
	r.mu.Unlock()

	if resubscribed {
		r.logger.Infof("RedisBroker: resubscribed to topic %s", topic)
		r.emit(topic, EventResubscribed)
	}
}

func (r *RedisBroker) dispatch(m *redis.Message) {
	var message Message
	if err := json.Unmarshal([]byte(m.Payload), &message); err != nil {
		r.logger.Errorf("RedisBroker: failed to unmarshal message: %v", err)
		return
	}

	// 持有读锁发送，避免与 Unsubscribe 关闭通道竞争
	dropped := false
	r.mu.RLock()
	if state, ok := r.topics[message.Topic]; ok {
		select {
		case state.ch <- &message:
		default:
			dropped = true
		}
	}
	r.mu.RUnlock()

	if dropped {
		r.logger.Warnf("RedisBroker: subscriber channel full for topic %s, dropping message", message.Topic)
		r.emit(message.Topic, EventOverflow)
	}
}

func (r *RedisBroker) emit(topic string, event ConnectionEvent) {
	r.mu.RLock()
	handlers := append([]ConnectionHandler(nil), r.handlers...)
	r.mu.RUnlock()
	for _, h := range handlers {
		h(topic, event)
	}
}

func (r *RedisBroker) emitAll(event ConnectionEvent) {
	r.mu.RLock()
	topics := make([]string, 0, len(r.topics))
	for topic := range r.topics {
		topics = append(topics, topic)
	}
	r.mu.RUnlock()
	for _, topic := range topics {
		r.emit(topic, event)
	}
}

// Unsubscribe 取消订阅
func (r *RedisBroker) Unsubscribe(ctx context.Context, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrBrokerClosed
	}
	state, exists := r.topics[topic]
	if !exists {
		return fmt.Errorf("not subscribed to topic: %s", topic)
	}
	if r.pubsub != nil {
		if err := r.pubsub.Unsubscribe(ctx, r.channel(topic)); err != nil {
			r.logger.Warnf("RedisBroker: failed to unsubscribe from redis: %v", err)
		}
	}
	close(state.ch)
	delete(r.topics, topic)
	return nil
}

// Ping 检查 Redis 连接
func (r *RedisBroker) Ping(ctx context.Context) error {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return ErrBrokerClosed
	}
	return r.client.Ping(ctx).Err()
}

// Close 关闭消息代理，等待接收协程退出后关闭所有订阅通道
func (r *RedisBroker) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pubsub := r.pubsub
	r.mu.Unlock()

	r.cancel()
	var err error
	if pubsub != nil {
		err = pubsub.Close()
	}
	r.wg.Wait()

	r.mu.Lock()
	for _, state := range r.topics {
		close(state.ch)
	}
	r.topics = make(map[string]*topicState)
	r.mu.Unlock()

	r.logger.Infof("RedisBroker closed")
	return err
}

var _ MessageBroker = (*RedisBroker)(nil)
