package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"paper-gen-api/internal/domain/entity"
	"paper-gen-api/internal/domain/repository"
)

// GenerationRepository 内存生成仓储，读写均使用副本
type GenerationRepository struct {
	mu    sync.RWMutex
	items map[string]*entity.Generation
}

var _ repository.GenerationRepository = (*GenerationRepository)(nil)

// NewGenerationRepository 创建内存生成仓储
func NewGenerationRepository() *GenerationRepository {
	return &GenerationRepository{items: make(map[string]*entity.Generation)}
}

// Create 创建生成
func (r *GenerationRepository) Create(_ context.Context, g *entity.Generation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[g.ID]; ok {
		return fmt.Errorf("generation %s already exists", g.ID)
	}
	r.items[g.ID] = g.Clone()
	return nil
}

// GetByID 根据 ID 获取生成
func (r *GenerationRepository) GetByID(_ context.Context, id string) (*entity.Generation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return g.Clone(), nil
}

// GetForUpdate 与 GetByID 相同，行级串行由调用方的按 ID 锁提供
func (r *GenerationRepository) GetForUpdate(ctx context.Context, id string) (*entity.Generation, error) {
	return r.GetByID(ctx, id)
}

// Update 更新生成
func (r *GenerationRepository) Update(_ context.Context, g *entity.Generation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[g.ID]; !ok {
		return fmt.Errorf("generation %s not found", g.ID)
	}
	r.items[g.ID] = g.Clone()
	return nil
}

// ListByUser 按创建时间倒序列出用户的生成
func (r *GenerationRepository) ListByUser(_ context.Context, userID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Generation], error) {
	r.mu.RLock()
	all := make([]*entity.Generation, 0)
	for _, g := range r.items {
		if g.UserID == userID {
			all = append(all, g.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := int64(len(all))
	start := pagination.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + pagination.Limit()
	if end > len(all) {
		end = len(all)
	}
	return repository.NewPagedResult(all[start:end], total, pagination), nil
}
