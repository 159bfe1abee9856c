package service

import (
	"context"

	"paper-gen-api/internal/domain/entity"
)

// Dispatcher 异步任务队列边界
type Dispatcher interface {
	// Enqueue 投递任务；返回 nil 表示任务已被队列接受
	Enqueue(ctx context.Context, job *entity.Job) error

	// Abandon 通知执行方放弃该任务（尽力而为）
	Abandon(ctx context.Context, jobID string)
}

// EventPublisher 生成事件发布端口
type EventPublisher interface {
	Publish(ctx context.Context, event entity.GenerationEvent)
}
