// Package service 定义跨层的领域端口（由基础设施层实现）
package service

import (
	"context"

	"paper-gen-api/internal/domain/entity"
)

// 步骤输出中的约定键
const (
	// OutputKeyContent 步骤生成的正文
	OutputKeyContent = "content"
	// OutputKeyMetrics 用量指标子对象
	OutputKeyMetrics = "metrics"
)

// 用量指标字段名
const (
	MetricProviderName = "provider_name"
	MetricTokensUsed   = "tokens_used"
	MetricLatencyMs    = "latency_ms"
	MetricCost         = "cost"
	MetricModel        = "model"
)

// StepRequest 执行一个流水线步骤所需的输入
type StepRequest struct {
	Job *entity.Job
	// Model 由路由选出的 provider/model 标识
	Model string
	// Input 生成的原始输入
	Input entity.Payload
	// Previous 此前各步骤的输出，以步骤名为键；第一步为空
	Previous entity.Payload
}

// StepExecutor 调用外部 AI 后端执行单个步骤
// 返回的输出可以在 OutputKeyMetrics 下携带用量指标。
type StepExecutor interface {
	Execute(ctx context.Context, req StepRequest) (entity.Payload, error)
}
