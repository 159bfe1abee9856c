package entity

import (
	"slices"
	"time"
)

// GenerationStatus 生成状态
type GenerationStatus string

const (
	GenerationStatusDraft     GenerationStatus = "DRAFT"
	GenerationStatusRunning   GenerationStatus = "RUNNING"
	GenerationStatusCompleted GenerationStatus = "COMPLETED"
	GenerationStatusFailed    GenerationStatus = "FAILED"
	GenerationStatusCanceled  GenerationStatus = "CANCELED"
)

// IsTerminal 是否为终态
func (s GenerationStatus) IsTerminal() bool {
	switch s {
	case GenerationStatusCompleted, GenerationStatusFailed, GenerationStatusCanceled:
		return true
	}
	return false
}

// Valid 是否为合法状态值
func (s GenerationStatus) Valid() bool {
	switch s {
	case GenerationStatusDraft, GenerationStatusRunning,
		GenerationStatusCompleted, GenerationStatusFailed, GenerationStatusCanceled:
		return true
	}
	return false
}

// Action 用户可触发的生命周期动作
type Action string

const (
	ActionNext   Action = "next"
	ActionCancel Action = "cancel"
)

// ParseAction 解析动作字符串
func ParseAction(s string) (Action, bool) {
	switch Action(s) {
	case ActionNext, ActionCancel:
		return Action(s), true
	}
	return "", false
}

// Generation 一次生成请求
type Generation struct {
	ID           string           `json:"id" gorm:"type:uuid;primaryKey"`
	UserID       string           `json:"user_id" gorm:"type:varchar(64);index;not null"`
	Module       string           `json:"module" gorm:"type:varchar(64);not null"`
	Input        Payload          `json:"input,omitempty" gorm:"type:jsonb"`
	Output       Payload          `json:"output,omitempty" gorm:"type:jsonb"`
	Status       GenerationStatus `json:"status" gorm:"type:varchar(16);index;not null"`
	Pipeline     []string         `json:"pipeline" gorm:"-"`
	StepIndex    int              `json:"step_index" gorm:"not null;default:0"`
	ActiveJobID  string           `json:"active_job_id,omitempty" gorm:"type:varchar(64)"`
	Version      int64            `json:"version" gorm:"not null;default:0"`
	ErrorMessage string           `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// TableName 指定表名
func (Generation) TableName() string {
	return "generations"
}

// NewGeneration 创建草稿状态的生成
func NewGeneration(id, userID, module string, input Payload, pipeline []string) *Generation {
	now := time.Now().UTC()
	return &Generation{
		ID:        id,
		UserID:    userID,
		Module:    module,
		Input:     input,
		Status:    GenerationStatusDraft,
		Pipeline:  slices.Clone(pipeline),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CurrentStep 当前步骤名，越界时返回空串
func (g *Generation) CurrentStep() string {
	if g.StepIndex < 0 || g.StepIndex >= len(g.Pipeline) {
		return ""
	}
	return g.Pipeline[g.StepIndex]
}

// IsLastStep 当前步骤是否为流水线最后一步
func (g *Generation) IsLastStep() bool {
	return g.StepIndex >= len(g.Pipeline)-1
}

// Touch 递增版本并刷新更新时间
func (g *Generation) Touch() {
	g.Version++
	g.UpdatedAt = time.Now().UTC()
}

// Clone 深拷贝，避免调用方修改仓储内部状态
func (g *Generation) Clone() *Generation {
	if g == nil {
		return nil
	}
	cp := *g
	cp.Input = g.Input.Clone()
	cp.Output = g.Output.Clone()
	cp.Pipeline = slices.Clone(g.Pipeline)
	return &cp
}
