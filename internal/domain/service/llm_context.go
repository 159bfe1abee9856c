package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const (
	llmCtxKeyStep     llmCtxKey = "llm_step"
	llmCtxKeyProvider llmCtxKey = "llm_provider"
)

// WithStep 在 context 中标记当前流水线步骤，供 LLM 回调打点
func WithStep(ctx context.Context, step string) context.Context {
	if ctx == nil {
		return nil
	}
	s := strings.TrimSpace(step)
	if s == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyStep, s)
}

func WithProvider(ctx context.Context, provider string) context.Context {
	if ctx == nil {
		return nil
	}
	p := strings.TrimSpace(provider)
	if p == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyProvider, p)
}

func WithStepProvider(ctx context.Context, step, provider string) context.Context {
	return WithProvider(WithStep(ctx, step), provider)
}

func StepFromContext(ctx context.Context) string {
	return stringFromContext(ctx, llmCtxKeyStep)
}

func ProviderFromContext(ctx context.Context) string {
	return stringFromContext(ctx, llmCtxKeyProvider)
}

func stringFromContext(ctx context.Context, key llmCtxKey) string {
	if ctx == nil {
		return "unknown"
	}
	s, ok := ctx.Value(key).(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return strings.TrimSpace(s)
}
