package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"paper-gen-api/internal/domain/entity"
	"paper-gen-api/internal/domain/service"
	apperrors "paper-gen-api/pkg/errors"
)

// ChatModelSource 按模型 ID 提供 ChatModel
type ChatModelSource interface {
	Get(ctx context.Context, modelID string) (model.BaseChatModel, error)
}

// StepExecutor 通过 Eino ChatModel 执行流水线步骤
type StepExecutor struct {
	models  ChatModelSource
	prompts *PromptRegistry
	pricing *Pricing
	now     func() time.Time
}

// NewStepExecutor 创建步骤执行器
func NewStepExecutor(models ChatModelSource, pricing *Pricing) *StepExecutor {
	return &StepExecutor{
		models:  models,
		prompts: NewPromptRegistry(),
		pricing: pricing,
		now:     time.Now,
	}
}

// Execute 调用模型并返回正文及用量指标
func (e *StepExecutor) Execute(ctx context.Context, req service.StepRequest) (entity.Payload, error) {
	if req.Job == nil {
		return nil, fmt.Errorf("step request has no job")
	}
	provider, _, ok := splitModelID(req.Model)
	if !ok {
		return nil, fmt.Errorf("invalid model id %q", req.Model)
	}

	ctx = service.WithStepProvider(ctx, req.Job.Step, provider)

	chatModel, err := e.models.Get(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	msgs, err := e.formatMessages(ctx, req)
	if err != nil {
		return nil, err
	}

	start := e.now()
	outMsg, err := chatModel.Generate(ctx, msgs)
	latency := e.now().Sub(start)
	if err != nil {
		return nil, apperrors.ErrLLMCallFailed.WithDetail(req.Model).WithError(err)
	}
	if outMsg == nil {
		return nil, fmt.Errorf("empty llm response")
	}

	content := strings.TrimSpace(outMsg.Content)
	if content == "" {
		return nil, fmt.Errorf("empty %s content from %s", req.Job.Step, req.Model)
	}

	tokens := tokensUsed(outMsg)
	return entity.Payload{
		service.OutputKeyContent: content,
		service.MetricModel:      req.Model,
		service.OutputKeyMetrics: map[string]any{
			service.MetricProviderName: provider,
			service.MetricModel:        req.Model,
			service.MetricTokensUsed:   tokens,
			service.MetricLatencyMs:    latency.Milliseconds(),
			service.MetricCost:         e.pricing.Cost(req.Model, tokens),
		},
	}, nil
}

func (e *StepExecutor) formatMessages(ctx context.Context, req service.StepRequest) ([]*schema.Message, error) {
	tpl, err := e.prompts.ChatTemplate(req.Job.Step)
	if err != nil {
		return nil, err
	}
	vars := map[string]any{
		"module":   req.Job.Module,
		"step":     req.Job.Step,
		"input":    renderPayload(req.Input),
		"previous": renderPayload(req.Previous),
	}
	return tpl.Format(ctx, vars)
}

// renderPayload 将载荷渲染为提示词文本；单个 content/text 字段直接展开
func renderPayload(p entity.Payload) string {
	if len(p) == 0 {
		return "(none)"
	}
	if len(p) == 1 {
		for _, key := range []string{"text", "content", "prompt"} {
			if s, ok := p[key].(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(p))
	}
	return string(b)
}

func tokensUsed(msg *schema.Message) int64 {
	if msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return 0
	}
	u := msg.ResponseMeta.Usage
	if u.TotalTokens > 0 {
		return int64(u.TotalTokens)
	}
	return int64(u.PromptTokens + u.CompletionTokens)
}
