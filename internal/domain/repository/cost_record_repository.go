package repository

import (
	"context"
	"time"

	"paper-gen-api/internal/domain/entity"
)

// CostFilter 成本记录过滤条件，零值字段不参与过滤，其余条件取交集
type CostFilter struct {
	GenerationID string
	UserID       string
	// From/To 闭区间
	From *time.Time
	To   *time.Time
}

// Matches 判断记录是否满足全部过滤条件
func (f CostFilter) Matches(r *entity.CostRecord) bool {
	if f.GenerationID != "" && r.GenerationID != f.GenerationID {
		return false
	}
	if f.UserID != "" && !r.BelongsToUser(f.UserID) {
		return false
	}
	if f.From != nil && r.RecordedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && r.RecordedAt.After(*f.To) {
		return false
	}
	return true
}

// CostRecordRepository 只追加的成本账本
type CostRecordRepository interface {
	// Add 追加记录
	Add(ctx context.Context, record *entity.CostRecord) error

	// List 返回全部记录的快照
	List(ctx context.Context) ([]*entity.CostRecord, error)

	// Filter 返回满足条件的记录，按记录时间升序
	Filter(ctx context.Context, filter CostFilter) ([]*entity.CostRecord, error)
}
