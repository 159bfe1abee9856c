package entity

import "time"

// JobResult 一个任务执行完成后的结果，产生后不再修改
type JobResult struct {
	JobID         string    `json:"job_id"`
	Success       bool      `json:"success"`
	OutputPayload Payload   `json:"output_payload,omitempty"`
	Error         string    `json:"error,omitempty"`
	FinishedAt    time.Time `json:"finished_at"`
}

// NewSuccessResult 创建成功结果
func NewSuccessResult(jobID string, payload Payload) JobResult {
	return JobResult{
		JobID:         jobID,
		Success:       true,
		OutputPayload: payload,
		FinishedAt:    time.Now().UTC(),
	}
}

// NewFailureResult 创建失败结果
func NewFailureResult(jobID string, errMsg string) JobResult {
	return JobResult{
		JobID:      jobID,
		Success:    false,
		Error:      errMsg,
		FinishedAt: time.Now().UTC(),
	}
}
