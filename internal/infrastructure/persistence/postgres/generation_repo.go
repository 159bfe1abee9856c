package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"paper-gen-api/internal/domain/entity"
	"paper-gen-api/internal/domain/repository"
)

// generationRow generations 表行，流水线以 text[] 存储
type generationRow struct {
	ID           string                  `gorm:"type:uuid;primaryKey"`
	UserID       string                  `gorm:"type:varchar(64);index;not null"`
	Module       string                  `gorm:"type:varchar(64);not null"`
	Input        entity.Payload          `gorm:"type:jsonb"`
	Output       entity.Payload          `gorm:"type:jsonb"`
	Status       entity.GenerationStatus `gorm:"type:varchar(16);index;not null"`
	Pipeline     pq.StringArray          `gorm:"type:text[];not null"`
	StepIndex    int                     `gorm:"not null;default:0"`
	ActiveJobID  string                  `gorm:"type:varchar(64)"`
	Version      int64                   `gorm:"not null;default:0"`
	ErrorMessage string                  `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (generationRow) TableName() string {
	return "generations"
}

func toGenerationRow(g *entity.Generation) *generationRow {
	return &generationRow{
		ID:           g.ID,
		UserID:       g.UserID,
		Module:       g.Module,
		Input:        g.Input,
		Output:       g.Output,
		Status:       g.Status,
		Pipeline:     pq.StringArray(g.Pipeline),
		StepIndex:    g.StepIndex,
		ActiveJobID:  g.ActiveJobID,
		Version:      g.Version,
		ErrorMessage: g.ErrorMessage,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
}

func (r *generationRow) toEntity() *entity.Generation {
	return &entity.Generation{
		ID:           r.ID,
		UserID:       r.UserID,
		Module:       r.Module,
		Input:        r.Input,
		Output:       r.Output,
		Status:       r.Status,
		Pipeline:     []string(r.Pipeline),
		StepIndex:    r.StepIndex,
		ActiveJobID:  r.ActiveJobID,
		Version:      r.Version,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// GenerationRepository 生成仓储实现
type GenerationRepository struct {
	client *Client
}

var _ repository.GenerationRepository = (*GenerationRepository)(nil)

// NewGenerationRepository 创建生成仓储
func NewGenerationRepository(client *Client) *GenerationRepository {
	return &GenerationRepository{client: client}
}

// Create 创建生成
func (r *GenerationRepository) Create(ctx context.Context, g *entity.Generation) error {
	ctx, span := tracer.Start(ctx, "postgres.GenerationRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(toGenerationRow(g)).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create generation: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取生成
func (r *GenerationRepository) GetByID(ctx context.Context, id string) (*entity.Generation, error) {
	ctx, span := tracer.Start(ctx, "postgres.GenerationRepository.GetByID")
	defer span.End()

	return r.first(ctx, getDB(ctx, r.client.db), id)
}

// GetForUpdate 在事务内获取并锁定生成
func (r *GenerationRepository) GetForUpdate(ctx context.Context, id string) (*entity.Generation, error) {
	ctx, span := tracer.Start(ctx, "postgres.GenerationRepository.GetForUpdate")
	defer span.End()

	db := getDB(ctx, r.client.db).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.first(ctx, db, id)
}

func (r *GenerationRepository) first(_ context.Context, db *gorm.DB, id string) (*entity.Generation, error) {
	var row generationRow
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get generation: %w", err)
	}
	return row.toEntity(), nil
}

// Update 更新生成
func (r *GenerationRepository) Update(ctx context.Context, g *entity.Generation) error {
	ctx, span := tracer.Start(ctx, "postgres.GenerationRepository.Update")
	defer span.End()

	res := getDB(ctx, r.client.db).Model(&generationRow{}).Where("id = ?", g.ID).
		Select("*").Omit("id", "created_at").Updates(toGenerationRow(g))
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("failed to update generation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("generation %s not found", g.ID)
	}
	return nil
}

// ListByUser 按创建时间倒序列出用户的生成
func (r *GenerationRepository) ListByUser(ctx context.Context, userID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Generation], error) {
	ctx, span := tracer.Start(ctx, "postgres.GenerationRepository.ListByUser")
	defer span.End()

	query := getDB(ctx, r.client.db).Model(&generationRow{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count generations: %w", err)
	}

	var rows []*generationRow
	if err := query.Order("created_at DESC, id DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}

	items := make([]*entity.Generation, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return repository.NewPagedResult(items, total, pagination), nil
}
