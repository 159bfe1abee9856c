package messaging

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"paper-gen-api/internal/domain/entity"
	"paper-gen-api/pkg/logger"
)

// stepPublisher 步骤任务投递
type stepPublisher interface {
	PublishStepJob(ctx context.Context, stream Stream, job *StepJobMessage) (string, error)
}

// abandonNotifier 广播放弃通知
type abandonNotifier interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// StreamDispatcher 通过 Redis Stream 把步骤任务交给 job-worker 进程
type StreamDispatcher struct {
	producer       stepPublisher
	notifier       abandonNotifier
	stream         Stream
	abandonChannel string
}

// NewStreamDispatcher 创建流调度器
func NewStreamDispatcher(producer stepPublisher, client *redis.Client, stream Stream, abandonChannel string) *StreamDispatcher {
	d := &StreamDispatcher{
		producer:       producer,
		stream:         stream,
		abandonChannel: abandonChannel,
	}
	if client != nil {
		d.notifier = client
	}
	return d
}

// Enqueue 写入流；XADD 成功即视为已被队列接受
func (d *StreamDispatcher) Enqueue(ctx context.Context, job *entity.Job) error {
	_, err := d.producer.PublishStepJob(ctx, d.stream, &StepJobMessage{
		GenerationID: job.GenerationID,
		JobID:        job.ID,
		Step:         job.Step,
		StepIndex:    job.StepIndex,
		Module:       job.Module,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue step job: %w", err)
	}
	return nil
}

// Abandon 广播放弃通知；正在执行该任务的 worker 会取消调用
func (d *StreamDispatcher) Abandon(ctx context.Context, jobID string) {
	if d.notifier == nil || d.abandonChannel == "" {
		return
	}
	if err := d.notifier.Publish(ctx, d.abandonChannel, jobID).Err(); err != nil {
		logger.Warn(ctx, "failed to broadcast job abandon", "job_id", jobID, "error", err)
	}
}

// StepJobHandler 把步骤任务消息交给执行函数
func StepJobHandler(execute func(ctx context.Context, generationID, jobID string) error) MessageHandler {
	return func(ctx context.Context, msg *Message) error {
		var job StepJobMessage
		if err := msg.UnmarshalPayload(&job); err != nil {
			return fmt.Errorf("invalid step job payload: %w", err)
		}
		ctx = logger.WithContext(ctx, logger.JobIDKey, job.JobID)
		return execute(ctx, job.GenerationID, job.JobID)
	}
}

// ListenAbandon 订阅放弃通知直到 ctx 取消
func ListenAbandon(ctx context.Context, client *redis.Client, channel string, onAbandon func(jobID string)) {
	sub := client.Subscribe(ctx, channel)
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
			onAbandon(m.Payload)
		}
	}
}
