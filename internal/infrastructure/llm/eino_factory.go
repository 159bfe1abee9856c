// Package llm 基于 Eino 实现流水线步骤的模型调用
package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"paper-gen-api/internal/config"
)

// EinoFactory 按模型 ID（provider/model）管理 Eino ChatModel 客户端
type EinoFactory struct {
	config *config.LLMConfig
	models map[string]model.BaseChatModel
	mu     sync.RWMutex
}

// NewEinoFactory 创建 Eino LLM 工厂
func NewEinoFactory(cfg *config.Config) *EinoFactory {
	return &EinoFactory{
		config: &cfg.LLM,
		models: make(map[string]model.BaseChatModel),
	}
}

// Get 获取模型 ID 对应的 ChatModel，首次使用时惰性创建
func (f *EinoFactory) Get(ctx context.Context, modelID string) (model.BaseChatModel, error) {
	f.mu.RLock()
	m, ok := f.models[modelID]
	f.mu.RUnlock()
	if ok {
		return m, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if m, ok = f.models[modelID]; ok {
		return m, nil
	}

	provider, name, ok := splitModelID(modelID)
	if !ok {
		return nil, fmt.Errorf("invalid model id %q, expected provider/model", modelID)
	}
	providerCfg, ok := f.config.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not found in LLM config", provider)
	}

	// 各提供商均通过 OpenAI 兼容接口接入
	cfg := &openai.ChatModelConfig{
		APIKey:  providerCfg.APIKey,
		BaseURL: providerCfg.BaseURL,
		Model:   name,
		Timeout: providerCfg.Timeout,
	}
	if providerCfg.MaxTokens > 0 {
		cfg.MaxTokens = &providerCfg.MaxTokens
	}
	if providerCfg.Temperature > 0 {
		cfg.Temperature = ptrFloat32(float32(providerCfg.Temperature))
	}

	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model for %s: %w", modelID, err)
	}

	f.models[modelID] = chatModel
	return chatModel, nil
}

func splitModelID(id string) (provider, name string, ok bool) {
	provider, name, found := strings.Cut(strings.TrimSpace(id), "/")
	if !found || provider == "" || name == "" {
		return "", "", false
	}
	return provider, name, true
}

func ptrFloat32(f float32) *float32 {
	return &f
}
