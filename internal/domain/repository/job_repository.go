package repository

import (
	"context"

	"paper-gen-api/internal/domain/entity"
)

// JobRepository 步骤任务仓储接口
type JobRepository interface {
	// Create 创建任务
	Create(ctx context.Context, job *entity.Job) error

	// GetByID 根据 ID 获取任务，未找到返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*entity.Job, error)

	// Update 更新任务
	Update(ctx context.Context, job *entity.Job) error

	// Delete 删除任务（入队失败时回滚）
	Delete(ctx context.Context, id string) error

	// ListByGeneration 按创建顺序列出生成的全部任务
	ListByGeneration(ctx context.Context, generationID string) ([]*entity.Job, error)
}
