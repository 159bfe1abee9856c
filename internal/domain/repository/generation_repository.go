package repository

import (
	"context"

	"paper-gen-api/internal/domain/entity"
)

// GenerationRepository 生成仓储接口
// 未找到时 Get 系列方法返回 (nil, nil)。
type GenerationRepository interface {
	// Create 创建生成
	Create(ctx context.Context, g *entity.Generation) error

	// GetByID 根据 ID 获取生成
	GetByID(ctx context.Context, id string) (*entity.Generation, error)

	// GetForUpdate 在事务内获取并锁定生成（SELECT ... FOR UPDATE）
	GetForUpdate(ctx context.Context, id string) (*entity.Generation, error)

	// Update 更新生成
	Update(ctx context.Context, g *entity.Generation) error

	// ListByUser 按创建时间倒序列出用户的生成
	ListByUser(ctx context.Context, userID string, pagination Pagination) (*PagedResult[*entity.Generation], error)
}
