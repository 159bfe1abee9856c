package llm

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// genericTemplate 未单独编写模板的步骤使用
const genericTemplate = "step"

// PromptRegistry 按步骤名缓存 Eino ChatTemplate
type PromptRegistry struct {
	mu    sync.RWMutex
	cache map[string]einoprompt.ChatTemplate
}

// NewPromptRegistry 创建模板注册表
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{cache: make(map[string]einoprompt.ChatTemplate)}
}

// ChatTemplate 返回步骤的模板；没有专用模板时退回通用模板
func (r *PromptRegistry) ChatTemplate(step string) (einoprompt.ChatTemplate, error) {
	name := step
	if !hasTemplate(name) {
		name = genericTemplate
	}

	r.mu.RLock()
	if tpl, ok := r.cache[name]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[name]; ok {
		return tpl, nil
	}

	system, err := readEmbeddedText(fmt.Sprintf("templates/%s.system.txt", name))
	if err != nil {
		return nil, err
	}
	user, err := readEmbeddedText(fmt.Sprintf("templates/%s.user.txt", name))
	if err != nil {
		return nil, err
	}

	tpl := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	r.cache[name] = tpl
	return tpl, nil
}

func hasTemplate(step string) bool {
	if step == "" || strings.ContainsAny(step, "/\\.") {
		return false
	}
	_, err := templatesFS.Open(fmt.Sprintf("templates/%s.system.txt", step))
	return err == nil
}

func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
