package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"paper-gen-api/internal/domain/entity"
	"paper-gen-api/internal/domain/repository"
)

// CostRecordRepository 成本记录仓储，只追加
type CostRecordRepository struct {
	client *Client
}

var _ repository.CostRecordRepository = (*CostRecordRepository)(nil)

// NewCostRecordRepository 创建成本记录仓储
func NewCostRecordRepository(client *Client) *CostRecordRepository {
	return &CostRecordRepository{client: client}
}

// Add 追加记录
func (r *CostRecordRepository) Add(ctx context.Context, record *entity.CostRecord) error {
	ctx, span := tracer.Start(ctx, "postgres.CostRecordRepository.Add")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(record).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to add cost record: %w", err)
	}
	return nil
}

// List 返回全部记录
func (r *CostRecordRepository) List(ctx context.Context) ([]*entity.CostRecord, error) {
	return r.Filter(ctx, repository.CostFilter{})
}

// Filter 返回满足条件的记录
func (r *CostRecordRepository) Filter(ctx context.Context, filter repository.CostFilter) ([]*entity.CostRecord, error) {
	ctx, span := tracer.Start(ctx, "postgres.CostRecordRepository.Filter")
	defer span.End()

	var records []*entity.CostRecord
	if err := applyCostFilter(getDB(ctx, r.client.db), filter).
		Order("recorded_at ASC, id ASC").
		Find(&records).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to filter cost records: %w", err)
	}
	return records, nil
}

func applyCostFilter(db *gorm.DB, filter repository.CostFilter) *gorm.DB {
	if filter.GenerationID != "" {
		db = db.Where("generation_id = ?", filter.GenerationID)
	}
	if filter.UserID != "" {
		db = db.Where("user_id = ?", filter.UserID)
	}
	if filter.From != nil {
		db = db.Where("recorded_at >= ?", *filter.From)
	}
	if filter.To != nil {
		db = db.Where("recorded_at <= ?", *filter.To)
	}
	return db
}
