package dto

import (
	"time"

	"paper-gen-api/internal/domain/entity"
)

// JobResponse 步骤任务响应
type JobResponse struct {
	ID           string           `json:"id"`
	GenerationID string           `json:"generation_id"`
	Step         string           `json:"step"`
	StepIndex    int              `json:"step_index"`
	Status       entity.JobStatus `json:"status"`
	Model        string           `json:"model,omitempty"`
	Fallback     bool             `json:"fallback"`
	ErrorMessage string           `json:"error_message,omitempty"`
	DurationMs   int64            `json:"duration_ms,omitempty"`
	CreatedAt    string           `json:"created_at"`
	StartedAt    string           `json:"started_at,omitempty"`
	FinishedAt   string           `json:"finished_at,omitempty"`
}

// ToJobResponse 转换为响应
func ToJobResponse(job *entity.Job) *JobResponse {
	resp := &JobResponse{
		ID:           job.ID,
		GenerationID: job.GenerationID,
		Step:         job.Step,
		StepIndex:    job.StepIndex,
		Status:       job.Status,
		Model:        job.Model,
		Fallback:     job.Fallback,
		ErrorMessage: job.ErrorMessage,
		DurationMs:   job.DurationMs(),
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
	}
	if job.StartedAt != nil {
		resp.StartedAt = job.StartedAt.Format(time.RFC3339)
	}
	if job.FinishedAt != nil {
		resp.FinishedAt = job.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

// ToJobListResponse 转换列表
func ToJobListResponse(jobs []*entity.Job) []*JobResponse {
	out := make([]*JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, ToJobResponse(j))
	}
	return out
}
