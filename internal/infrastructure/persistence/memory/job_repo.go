package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"paper-gen-api/internal/domain/entity"
	"paper-gen-api/internal/domain/repository"
)

// JobRepository 内存任务仓储
type JobRepository struct {
	mu    sync.RWMutex
	items map[string]entity.Job
}

var _ repository.JobRepository = (*JobRepository)(nil)

// NewJobRepository 创建内存任务仓储
func NewJobRepository() *JobRepository {
	return &JobRepository{items: make(map[string]entity.Job)}
}

// Create 创建任务
func (r *JobRepository) Create(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	r.items[job.ID] = *job
	return nil
}

// GetByID 根据 ID 获取任务
func (r *JobRepository) GetByID(_ context.Context, id string) (*entity.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

// Update 更新任务
func (r *JobRepository) Update(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[job.ID]; !ok {
		return fmt.Errorf("job %s not found", job.ID)
	}
	r.items[job.ID] = *job
	return nil
}

// Delete 删除任务
func (r *JobRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, id)
	return nil
}

// ListByGeneration 按创建顺序列出生成的全部任务
func (r *JobRepository) ListByGeneration(_ context.Context, generationID string) ([]*entity.Job, error) {
	r.mu.RLock()
	out := make([]*entity.Job, 0)
	for _, job := range r.items {
		if job.GenerationID == generationID {
			j := job
			out = append(out, &j)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StepIndex != out[j].StepIndex {
			return out[i].StepIndex < out[j].StepIndex
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
