package entity

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidCostRecord 成本记录字段非法（负数）
var ErrInvalidCostRecord = errors.New("invalid cost record")

// CostRecord 一次成功步骤的用量计量记录，创建后不可修改
type CostRecord struct {
	ID           string    `json:"id" gorm:"type:uuid;primaryKey"`
	JobID        string    `json:"job_id" gorm:"type:uuid;index;not null"`
	GenerationID string    `json:"generation_id" gorm:"type:uuid;index;not null"`
	UserID       *string   `json:"user_id,omitempty" gorm:"type:varchar(64);index"`
	ProviderName string    `json:"provider_name" gorm:"type:varchar(64);not null"`
	TokensUsed   int64     `json:"tokens_used" gorm:"not null;default:0"`
	LatencyMs    int64     `json:"latency_ms" gorm:"not null;default:0"`
	Cost         float64   `json:"cost" gorm:"not null;default:0"`
	RecordedAt   time.Time `json:"recorded_at" gorm:"index;not null"`
}

// TableName 指定表名
func (CostRecord) TableName() string {
	return "cost_records"
}

// CostRecordParams 构造成本记录的参数
type CostRecordParams struct {
	ID           string
	JobID        string
	GenerationID string
	UserID       *string
	ProviderName string
	TokensUsed   int64
	LatencyMs    int64
	Cost         float64
	// RecordedAt 为零值时取当前时间
	RecordedAt time.Time
}

// NewCostRecord 校验并创建成本记录，数值字段必须非负
func NewCostRecord(p CostRecordParams) (*CostRecord, error) {
	if p.TokensUsed < 0 {
		return nil, fmt.Errorf("%w: tokens_used=%d", ErrInvalidCostRecord, p.TokensUsed)
	}
	if p.LatencyMs < 0 {
		return nil, fmt.Errorf("%w: latency_ms=%d", ErrInvalidCostRecord, p.LatencyMs)
	}
	if p.Cost < 0 {
		return nil, fmt.Errorf("%w: cost=%v", ErrInvalidCostRecord, p.Cost)
	}

	recordedAt := p.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	var userID *string
	if p.UserID != nil {
		u := *p.UserID
		userID = &u
	}

	return &CostRecord{
		ID:           p.ID,
		JobID:        p.JobID,
		GenerationID: p.GenerationID,
		UserID:       userID,
		ProviderName: p.ProviderName,
		TokensUsed:   p.TokensUsed,
		LatencyMs:    p.LatencyMs,
		Cost:         p.Cost,
		RecordedAt:   recordedAt,
	}, nil
}

// BelongsToUser 记录是否属于指定用户
func (r *CostRecord) BelongsToUser(userID string) bool {
	return r.UserID != nil && *r.UserID == userID
}
