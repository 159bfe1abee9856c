package entity

import (
	"time"
)

// JobStatus 步骤任务状态，与所属生成的粗粒度状态相互独立
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	// JobStatusAbandoned 生成被取消，结果到达后将被丢弃
	JobStatusAbandoned JobStatus = "abandoned"
	// JobStatusDiscarded 结果已到达但因过期被丢弃
	JobStatusDiscarded JobStatus = "discarded"
)

// IsFinished 任务是否已结束
func (s JobStatus) IsFinished() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusAbandoned, JobStatusDiscarded:
		return true
	}
	return false
}

// Job 流水线中一个步骤的执行单元
type Job struct {
	ID           string     `json:"id" gorm:"type:uuid;primaryKey"`
	GenerationID string     `json:"generation_id" gorm:"type:uuid;index;not null"`
	UserID       string     `json:"user_id" gorm:"type:varchar(64)"`
	Module       string     `json:"module" gorm:"type:varchar(64)"`
	Step         string     `json:"step" gorm:"type:varchar(64);not null"`
	StepIndex    int        `json:"step_index" gorm:"not null"`
	Status       JobStatus  `json:"status" gorm:"type:varchar(16);index;not null"`
	Model        string     `json:"model,omitempty" gorm:"type:varchar(128)"`
	Fallback     bool       `json:"fallback" gorm:"not null;default:false"`
	ErrorMessage string     `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// TableName 指定表名
func (Job) TableName() string {
	return "generation_jobs"
}

// NewJob 为生成的当前步骤创建任务
func NewJob(id string, gen *Generation) *Job {
	return &Job{
		ID:           id,
		GenerationID: gen.ID,
		UserID:       gen.UserID,
		Module:       gen.Module,
		Step:         gen.CurrentStep(),
		StepIndex:    gen.StepIndex,
		Status:       JobStatusQueued,
		CreatedAt:    time.Now().UTC(),
	}
}

// Start 开始执行
func (j *Job) Start() {
	now := time.Now().UTC()
	j.Status = JobStatusRunning
	j.StartedAt = &now
}

// Finish 以给定状态结束任务
func (j *Job) Finish(status JobStatus, errMsg string) {
	now := time.Now().UTC()
	j.Status = status
	j.ErrorMessage = errMsg
	j.FinishedAt = &now
}

// Abandon 标记为放弃（生成已取消）
func (j *Job) Abandon() {
	if j.Status.IsFinished() {
		return
	}
	j.Finish(JobStatusAbandoned, "")
}

// DurationMs 执行耗时（毫秒），未开始或未结束时为 0
func (j *Job) DurationMs() int64 {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(*j.StartedAt).Milliseconds()
}
