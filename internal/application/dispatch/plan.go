// Package dispatch 提供流水线步骤的执行：步骤规划、执行 worker 和进程内调度器
package dispatch

import (
	"strings"

	"paper-gen-api/internal/config"
)

// Plan 按模块给出流水线步骤
type Plan struct {
	defaults []string
	modules  map[string][]string
}

// NewPlan 根据配置创建步骤规划
func NewPlan(cfg config.PipelineConfig) *Plan {
	modules := make(map[string][]string, len(cfg.ModuleSteps))
	for module, steps := range cfg.ModuleSteps {
		modules[strings.ToLower(module)] = append([]string(nil), steps...)
	}
	return &Plan{
		defaults: append([]string(nil), cfg.DefaultSteps...),
		modules:  modules,
	}
}

// Steps 返回模块的步骤列表副本；未单独配置的模块使用默认步骤
func (p *Plan) Steps(module string) []string {
	if steps, ok := p.modules[strings.ToLower(strings.TrimSpace(module))]; ok {
		return append([]string(nil), steps...)
	}
	return append([]string(nil), p.defaults...)
}
