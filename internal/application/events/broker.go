// Package events 提供按生成 ID 分发进度事件的进程内 Broker
package events

import (
	"context"
	"errors"
	"sync"

	"paper-gen-api/internal/domain/entity"
	"paper-gen-api/pkg/logger"
	"paper-gen-api/pkg/metrics"
)

// ErrBrokerClosed Broker 已关闭
var ErrBrokerClosed = errors.New("event broker is closed")

// BaselineFunc 返回订阅时刻的当前状态事件
type BaselineFunc func(ctx context.Context) (entity.GenerationEvent, error)

// Broker 每个生成一个主题的扇出器
//
// Publish 从不阻塞：订阅者缓冲区已满时断开该订阅者（关闭其通道），
// 而不是静默丢掉中间事件。客户端重连后会重新拿到最新快照。
type Broker struct {
	buffer int

	mu     sync.Mutex
	topics map[string]*topic
	nextID uint64
	closed bool
}

type topic struct {
	mu   sync.Mutex
	subs map[uint64]*subscriber
	// refs 统计尚未 Close 的订阅，归零时删除主题
	refs int
}

type subscriber struct {
	ch chan entity.GenerationEvent
	// lastVersion 已投递的最大版本，版本不大于它的事件被过滤
	lastVersion int64
	dropped     bool
}

// NewBroker 创建 Broker；buffer 为每个订阅者的通道容量
func NewBroker(buffer int) *Broker {
	if buffer < 1 {
		buffer = 1
	}
	return &Broker{
		buffer: buffer,
		topics: make(map[string]*topic),
	}
}

// Subscribe 订阅生成事件
// 基线事件在主题锁内取得并首先投递，之后只投递版本更新的事件。
func (b *Broker) Subscribe(ctx context.Context, generationID string, baseline BaselineFunc) (*Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}
	t, ok := b.topics[generationID]
	if !ok {
		t = &topic{subs: make(map[uint64]*subscriber)}
		b.topics[generationID] = t
	}
	t.refs++
	b.nextID++
	id := b.nextID
	b.mu.Unlock()

	t.mu.Lock()
	first, err := baseline(ctx)
	if err != nil {
		t.mu.Unlock()
		b.release(generationID, t)
		return nil, err
	}
	sub := &subscriber{
		ch:          make(chan entity.GenerationEvent, b.buffer),
		lastVersion: first.Version,
	}
	sub.ch <- first
	t.subs[id] = sub
	t.mu.Unlock()

	metrics.EventSubscribers.Inc()
	return &Subscription{
		id:           id,
		generationID: generationID,
		broker:       b,
		topic:        t,
		sub:          sub,
	}, nil
}

// Publish 向生成的所有订阅者投递事件，不阻塞
func (b *Broker) Publish(ctx context.Context, evt entity.GenerationEvent) {
	b.mu.Lock()
	t, ok := b.topics[evt.GenerationID]
	b.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for id, sub := range t.subs {
		if evt.Version <= sub.lastVersion {
			continue
		}
		select {
		case sub.ch <- evt:
			sub.lastVersion = evt.Version
		default:
			sub.dropped = true
			close(sub.ch)
			delete(t.subs, id)
			metrics.EventSubscribersDroppedTotal.Inc()
			logger.Warn(ctx, "disconnecting slow event subscriber",
				"generation_id", evt.GenerationID,
				"version", evt.Version,
			)
		}
	}
}

// Subscribers 返回生成当前的订阅者数量
func (b *Broker) Subscribers(generationID string) int {
	b.mu.Lock()
	t, ok := b.topics[generationID]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Close 关闭所有订阅通道，之后的 Subscribe 返回 ErrBrokerClosed
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, t := range b.topics {
		t.mu.Lock()
		for id, sub := range t.subs {
			close(sub.ch)
			delete(t.subs, id)
		}
		t.mu.Unlock()
	}
}

func (b *Broker) release(generationID string, t *topic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t.refs--
	if t.refs == 0 && b.topics[generationID] == t {
		delete(b.topics, generationID)
	}
}

// Subscription 一个事件订阅
type Subscription struct {
	id           uint64
	generationID string
	broker       *Broker
	topic        *topic
	sub          *subscriber
	once         sync.Once
}

// Events 事件通道；订阅被断开或 Broker 关闭时通道关闭
func (s *Subscription) Events() <-chan entity.GenerationEvent {
	return s.sub.ch
}

// Dropped 是否因消费过慢被断开
func (s *Subscription) Dropped() bool {
	s.topic.mu.Lock()
	defer s.topic.mu.Unlock()
	return s.sub.dropped
}

// Close 取消订阅，可重复调用
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.topic.mu.Lock()
		if _, ok := s.topic.subs[s.id]; ok {
			close(s.sub.ch)
			delete(s.topic.subs, s.id)
		}
		s.topic.mu.Unlock()
		s.broker.release(s.generationID, s.topic)
		metrics.EventSubscribers.Dec()
	})
}
