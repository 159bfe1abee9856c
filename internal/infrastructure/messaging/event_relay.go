package messaging

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"paper-gen-api/internal/domain/entity"
	"paper-gen-api/internal/domain/service"
	"paper-gen-api/pkg/logger"
)

// EventRelay 通过 Redis Pub/Sub 在进程间转发生成事件
// worker 进程用 Publish 发出事件，网关进程用 Run 把事件注入本地 Broker。
type EventRelay struct {
	client  *redis.Client
	channel string
}

// NewEventRelay 创建事件中继
func NewEventRelay(client *redis.Client, channel string) *EventRelay {
	return &EventRelay{client: client, channel: channel}
}

// Publish 实现 service.EventPublisher
func (r *EventRelay) Publish(ctx context.Context, evt entity.GenerationEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		logger.Error(ctx, "failed to encode generation event", err)
		return
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		logger.Warn(ctx, "failed to relay generation event",
			"generation_id", evt.GenerationID,
			"version", evt.Version,
			"error", err,
		)
	}
}

// Run 订阅频道并把事件交给 sink，直到 ctx 取消
func (r *EventRelay) Run(ctx context.Context, sink service.EventPublisher) {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			relayPayload(ctx, m.Payload, sink)
		}
	}
}

func relayPayload(ctx context.Context, payload string, sink service.EventPublisher) {
	var evt entity.GenerationEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		logger.Warn(ctx, "dropping malformed relayed event", "error", err)
		return
	}
	if evt.GenerationID == "" {
		return
	}
	sink.Publish(ctx, evt)
}

// FanOut 把事件同时交给多个发布者
type FanOut []service.EventPublisher

// Publish 实现 service.EventPublisher
func (f FanOut) Publish(ctx context.Context, evt entity.GenerationEvent) {
	for _, p := range f {
		p.Publish(ctx, evt)
	}
}
