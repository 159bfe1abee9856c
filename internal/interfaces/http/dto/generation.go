package dto

import (
	"time"

	"paper-gen-api/internal/domain/entity"
)

// CreateGenerationRequest 创建生成请求
type CreateGenerationRequest struct {
	UserID string         `json:"user_id" binding:"required"`
	Module string         `json:"module" binding:"required"`
	Input  map[string]any `json:"input"`
}

// ActionRequest 生命周期动作请求
type ActionRequest struct {
	Action string `json:"action" binding:"required"`
}

// GenerationResponse 生成响应
type GenerationResponse struct {
	ID           string                  `json:"id"`
	UserID       string                  `json:"user_id"`
	Module       string                  `json:"module"`
	Status       entity.GenerationStatus `json:"status"`
	Pipeline     []string                `json:"pipeline"`
	CurrentStep  string                  `json:"current_step,omitempty"`
	StepIndex    int                     `json:"step_index"`
	ActiveJobID  string                  `json:"active_job_id,omitempty"`
	Input        map[string]any          `json:"input,omitempty"`
	Output       map[string]any          `json:"output,omitempty"`
	ErrorMessage string                  `json:"error_message,omitempty"`
	Version      int64                   `json:"version"`
	CreatedAt    string                  `json:"created_at"`
	UpdatedAt    string                  `json:"updated_at"`
}

// ToGenerationResponse 转换为响应
func ToGenerationResponse(g *entity.Generation) *GenerationResponse {
	if g == nil {
		return nil
	}
	return &GenerationResponse{
		ID:           g.ID,
		UserID:       g.UserID,
		Module:       g.Module,
		Status:       g.Status,
		Pipeline:     g.Pipeline,
		CurrentStep:  g.CurrentStep(),
		StepIndex:    g.StepIndex,
		ActiveJobID:  g.ActiveJobID,
		Input:        g.Input,
		Output:       g.Output,
		ErrorMessage: g.ErrorMessage,
		Version:      g.Version,
		CreatedAt:    g.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    g.UpdatedAt.Format(time.RFC3339),
	}
}

// ToGenerationListResponse 转换列表
func ToGenerationListResponse(items []*entity.Generation) []*GenerationResponse {
	out := make([]*GenerationResponse, 0, len(items))
	for _, g := range items {
		out = append(out, ToGenerationResponse(g))
	}
	return out
}
