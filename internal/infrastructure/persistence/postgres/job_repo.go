package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"paper-gen-api/internal/domain/entity"
	"paper-gen-api/internal/domain/repository"
)

// JobRepository 步骤任务仓储实现
type JobRepository struct {
	client *Client
}

var _ repository.JobRepository = (*JobRepository)(nil)

// NewJobRepository 创建任务仓储
func NewJobRepository(client *Client) *JobRepository {
	return &JobRepository{client: client}
}

// Create 创建任务
func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(job).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取任务
func (r *JobRepository) GetByID(ctx context.Context, id string) (*entity.Job, error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.GetByID")
	defer span.End()

	var job entity.Job
	if err := getDB(ctx, r.client.db).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// Update 更新任务
func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.Update")
	defer span.End()

	if err := getDB(ctx, r.client.db).Save(job).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// Delete 删除任务
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.Delete")
	defer span.End()

	if err := getDB(ctx, r.client.db).Delete(&entity.Job{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// ListByGeneration 按创建顺序列出生成的全部任务
func (r *JobRepository) ListByGeneration(ctx context.Context, generationID string) ([]*entity.Job, error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.ListByGeneration")
	defer span.End()

	var jobs []*entity.Job
	if err := getDB(ctx, r.client.db).
		Where("generation_id = ?", generationID).
		Order("created_at ASC, step_index ASC").
		Find(&jobs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}
