// Package routing 提供按生成类别和流水线步骤选择模型的路由策略
package routing

import (
	"fmt"
	"strings"
)

// 通道
const (
	ChannelMain     = "main"
	ChannelFallback = "fallback"
)

// CategoryOther 主通道的通用类别，具体类别未配置时使用
const CategoryOther = "other"

// 回退通道的粗粒度分桶
const (
	BucketTask = "task"
	BucketText = "text"
)

// 内置兜底模型，配置中未给出时使用
const (
	BuiltinDefaultModel         = "openai/gpt-4o-mini"
	BuiltinDefaultFallbackModel = "openai/gpt-3.5-turbo"
)

// Table 类别 -> 步骤 -> 模型 ID（provider/model）
type Table map[string]map[string]string

// Lookup 查找类别下步骤对应的模型
func (t Table) Lookup(category, step string) (string, bool) {
	steps, ok := t[category]
	if !ok {
		return "", false
	}
	model, ok := steps[step]
	if !ok || model == "" {
		return "", false
	}
	return model, true
}

func (t Table) clone() Table {
	if t == nil {
		return Table{}
	}
	out := make(Table, len(t))
	for category, steps := range t {
		cp := make(map[string]string, len(steps))
		for step, model := range steps {
			cp[step] = model
		}
		out[category] = cp
	}
	return out
}

// Config 路由配置文档，顶层为 main 与 fallback 两个通道
type Config struct {
	Main     Table `json:"main"`
	Fallback Table `json:"fallback"`
}

// Clone 深拷贝
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{Main: Table{}, Fallback: Table{}}
	}
	return &Config{Main: c.Main.clone(), Fallback: c.Fallback.clone()}
}

// Validate 校验类别、步骤非空且模型 ID 形如 provider/model
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("routing config is empty")
	}
	for channel, table := range map[string]Table{ChannelMain: c.Main, ChannelFallback: c.Fallback} {
		for category, steps := range table {
			if strings.TrimSpace(category) == "" {
				return fmt.Errorf("%s: empty category name", channel)
			}
			for step, model := range steps {
				if strings.TrimSpace(step) == "" {
					return fmt.Errorf("%s.%s: empty step name", channel, category)
				}
				if _, _, ok := SplitModelID(model); !ok {
					return fmt.Errorf("%s.%s.%s: model %q must be provider/model", channel, category, step, model)
				}
			}
		}
	}
	return nil
}

// SplitModelID 拆分 provider/model 形式的模型 ID
func SplitModelID(id string) (provider, model string, ok bool) {
	provider, model, found := strings.Cut(strings.TrimSpace(id), "/")
	if !found || provider == "" || model == "" {
		return "", "", false
	}
	return provider, model, true
}

// FallbackBucket 将类别粗化为回退通道的分桶
// 解题类类别保留 task 桶，其余文档类归入 text 桶。
func FallbackBucket(category string) string {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "task", "tasks", "problem", "problems", "solution", "homework":
		return BucketTask
	default:
		return BucketText
	}
}
