// Package cost 负责从任务结果中提取用量记录，并在账本上做聚合计算
package cost

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"paper-gen-api/internal/domain/entity"
	"paper-gen-api/internal/domain/service"
	"paper-gen-api/pkg/metrics"
)

// 跳过原因（指标标签）
const (
	skipFailed     = "failed"
	skipNoPayload  = "no_payload"
	skipNoProvider = "no_provider"
)

// Collector 无状态的成本提取器，只做提取不做任何计费决策
type Collector struct {
	now   func() time.Time
	newID func() string
}

// NewCollector 创建成本提取器
func NewCollector() *Collector {
	return &Collector{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Collect 从任务结果提取成本记录
//
// 规则依次为：失败结果不计量；无输出不计量；优先读取 "metrics" 子对象，
// 缺失时仅当顶层带有 provider_name 才把顶层当作指标；找不到 provider 不计量；
// 其余缺失或无法解析的数值按 0 处理。
// 仅当数值为负（记录校验失败）时返回错误。
func (c *Collector) Collect(result entity.JobResult, generationID string, userID *string) (*entity.CostRecord, error) {
	if !result.Success {
		metrics.CostRecordsSkippedTotal.WithLabelValues(skipFailed).Inc()
		return nil, nil
	}
	if len(result.OutputPayload) == 0 {
		metrics.CostRecordsSkippedTotal.WithLabelValues(skipNoPayload).Inc()
		return nil, nil
	}

	m := metricsOf(result.OutputPayload)
	provider := ""
	if m != nil {
		provider = strings.TrimSpace(cast.ToString(m[service.MetricProviderName]))
	}
	if provider == "" {
		metrics.CostRecordsSkippedTotal.WithLabelValues(skipNoProvider).Inc()
		return nil, nil
	}

	record, err := entity.NewCostRecord(entity.CostRecordParams{
		ID:           c.newID(),
		JobID:        result.JobID,
		GenerationID: generationID,
		UserID:       userID,
		ProviderName: provider,
		TokensUsed:   toInt64(m[service.MetricTokensUsed]),
		LatencyMs:    toInt64(m[service.MetricLatencyMs]),
		Cost:         toFloat64(m[service.MetricCost]),
		RecordedAt:   c.now(),
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// metricsOf 定位指标数据：嵌套 metrics 优先，否则顶层（需带 provider_name）
func metricsOf(payload entity.Payload) map[string]any {
	if nested, ok := asMap(payload[service.OutputKeyMetrics]); ok {
		return nested
	}
	if _, ok := payload[service.MetricProviderName]; ok {
		return payload
	}
	return nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case entity.Payload:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	}
	return nil, false
}

func toFloat64(v any) float64 {
	if v == nil {
		return 0
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// toInt64 超出 int64 范围的值按缺失处理
func toInt64(v any) int64 {
	f := toFloat64(v)
	if f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0
	}
	return int64(f)
}
