// Package messaging 基于 Redis Streams 与 Pub/Sub 实现跨进程的任务投递和事件转发
package messaging

import (
	"encoding/json"
	"time"
)

// 消息类型
const (
	MessageTypeStepJob = "step_job"
)

// Message 流消息信封
type Message struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	GenerationID string            `json:"generation_id"`
	UserID       string            `json:"user_id,omitempty"`
	Payload      json.RawMessage   `json:"payload"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// NewMessage 创建新消息
func NewMessage(id, msgType, generationID, userID string, payload any) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		ID:           id,
		Type:         msgType,
		GenerationID: generationID,
		UserID:       userID,
		Payload:      payloadBytes,
		Metadata:     make(map[string]string),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// SetMetadata 设置元数据
func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

// GetMetadata 获取元数据
func (m *Message) GetMetadata(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

// UnmarshalPayload 解析消息载荷
func (m *Message) UnmarshalPayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// StepJobMessage 步骤任务消息
type StepJobMessage struct {
	GenerationID string `json:"generation_id"`
	JobID        string `json:"job_id"`
	Step         string `json:"step"`
	StepIndex    int    `json:"step_index"`
	Module       string `json:"module"`
}

// Stream 流名称
type Stream string

// DLQStream 对应的死信队列流名称
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoffConfig 默认退避配置
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    time.Second,
		Max:        time.Minute,
		Multiplier: 2,
	}
}

// CalculateBackoff 计算第 retryCount 次重试前的等待时间
func (c BackoffConfig) CalculateBackoff(retryCount int) time.Duration {
	backoff := c.Initial
	for i := 0; i < retryCount; i++ {
		backoff = time.Duration(float64(backoff) * c.Multiplier)
		if backoff > c.Max {
			return c.Max
		}
	}
	return backoff
}
