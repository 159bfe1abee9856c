package entity

import "time"

// EventKind 生成事件类型
type EventKind string

const (
	// EventKindSnapshot 订阅时下发的当前状态
	EventKindSnapshot EventKind = "snapshot"
	// EventKindTransition 状态迁移
	EventKindTransition EventKind = "transition"
	// EventKindProgress 步骤进度（任务开始、步骤推进）
	EventKindProgress EventKind = "progress"
)

// GenerationEvent 按生成 ID 寻址的进度事件
type GenerationEvent struct {
	GenerationID string           `json:"generation_id"`
	Kind         EventKind        `json:"kind"`
	Status       GenerationStatus `json:"status"`
	Action       string           `json:"action,omitempty"`
	Step         string           `json:"step,omitempty"`
	StepIndex    int              `json:"step_index"`
	TotalSteps   int              `json:"total_steps"`
	JobID        string           `json:"job_id,omitempty"`
	Version      int64            `json:"version"`
	Message      string           `json:"message,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
}

// NewGenerationEvent 基于生成当前状态创建事件
func NewGenerationEvent(kind EventKind, g *Generation) GenerationEvent {
	return GenerationEvent{
		GenerationID: g.ID,
		Kind:         kind,
		Status:       g.Status,
		Step:         g.CurrentStep(),
		StepIndex:    g.StepIndex,
		TotalSteps:   len(g.Pipeline),
		JobID:        g.ActiveJobID,
		Version:      g.Version,
		Message:      g.ErrorMessage,
		OccurredAt:   time.Now().UTC(),
	}
}
