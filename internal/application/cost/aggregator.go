package cost

import (
	"context"
	"fmt"
	"sort"
	"time"

	"paper-gen-api/internal/domain/repository"
)

// ProviderSummary 单个提供商的用量
type ProviderSummary struct {
	Provider       string  `json:"provider"`
	Records        int     `json:"records"`
	TotalCost      float64 `json:"total_cost"`
	TotalTokens    int64   `json:"total_tokens"`
	TotalLatencyMs int64   `json:"total_latency_ms"`
}

// Summary 一组成本记录的汇总
type Summary struct {
	Records         int               `json:"records"`
	TotalCost       float64           `json:"total_cost"`
	TotalTokens     int64             `json:"total_tokens"`
	TotalLatencyMs  int64             `json:"total_latency_ms"`
	AvgCostPerToken float64           `json:"avg_cost_per_token"`
	ByProvider      []ProviderSummary `json:"by_provider"`
}

// Aggregator 只读聚合，全部基于 Filter 的结果计算
type Aggregator struct {
	store repository.CostRecordRepository
}

// NewAggregator 创建聚合器
func NewAggregator(store repository.CostRecordRepository) *Aggregator {
	return &Aggregator{store: store}
}

// Summarize 按过滤条件汇总
func (a *Aggregator) Summarize(ctx context.Context, filter repository.CostFilter) (Summary, error) {
	records, err := a.store.Filter(ctx, filter)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to filter cost records: %w", err)
	}

	var s Summary
	byProvider := make(map[string]*ProviderSummary)
	for _, r := range records {
		s.Records++
		s.TotalCost += r.Cost
		s.TotalTokens += r.TokensUsed
		s.TotalLatencyMs += r.LatencyMs

		p, ok := byProvider[r.ProviderName]
		if !ok {
			p = &ProviderSummary{Provider: r.ProviderName}
			byProvider[r.ProviderName] = p
		}
		p.Records++
		p.TotalCost += r.Cost
		p.TotalTokens += r.TokensUsed
		p.TotalLatencyMs += r.LatencyMs
	}

	s.AvgCostPerToken = costPerToken(s.TotalCost, s.TotalTokens)

	s.ByProvider = make([]ProviderSummary, 0, len(byProvider))
	for _, p := range byProvider {
		s.ByProvider = append(s.ByProvider, *p)
	}
	sort.Slice(s.ByProvider, func(i, j int) bool {
		return s.ByProvider[i].Provider < s.ByProvider[j].Provider
	})
	return s, nil
}

// costPerToken token 为 0 时定义为 0
func costPerToken(cost float64, tokens int64) float64 {
	if tokens == 0 {
		return 0
	}
	return cost / float64(tokens)
}

// SummarizeGeneration 按生成汇总
func (a *Aggregator) SummarizeGeneration(ctx context.Context, generationID string) (Summary, error) {
	return a.Summarize(ctx, repository.CostFilter{GenerationID: generationID})
}

// SummarizeUser 按用户汇总，from/to 可选（闭区间）
func (a *Aggregator) SummarizeUser(ctx context.Context, userID string, from, to *time.Time) (Summary, error) {
	return a.Summarize(ctx, repository.CostFilter{UserID: userID, From: from, To: to})
}

// SummarizePeriod 按闭区间 [from, to] 汇总
func (a *Aggregator) SummarizePeriod(ctx context.Context, from, to time.Time) (Summary, error) {
	return a.Summarize(ctx, repository.CostFilter{From: &from, To: &to})
}

// TotalCostForGeneration 生成的总成本
func (a *Aggregator) TotalCostForGeneration(ctx context.Context, generationID string) (float64, error) {
	s, err := a.SummarizeGeneration(ctx, generationID)
	return s.TotalCost, err
}

// TotalTokensForGeneration 生成的总 token 数
func (a *Aggregator) TotalTokensForGeneration(ctx context.Context, generationID string) (int64, error) {
	s, err := a.SummarizeGeneration(ctx, generationID)
	return s.TotalTokens, err
}

// TotalLatencyForGeneration 生成的总延迟（毫秒）
func (a *Aggregator) TotalLatencyForGeneration(ctx context.Context, generationID string) (int64, error) {
	s, err := a.SummarizeGeneration(ctx, generationID)
	return s.TotalLatencyMs, err
}

// AverageCostPerTokenForGeneration 生成的每 token 平均成本，token 为 0 时返回 0
func (a *Aggregator) AverageCostPerTokenForGeneration(ctx context.Context, generationID string) (float64, error) {
	s, err := a.SummarizeGeneration(ctx, generationID)
	return s.AvgCostPerToken, err
}

// TotalCostForUser 用户的总成本
func (a *Aggregator) TotalCostForUser(ctx context.Context, userID string) (float64, error) {
	s, err := a.SummarizeUser(ctx, userID, nil, nil)
	return s.TotalCost, err
}

// TotalTokensForUser 用户的总 token 数
func (a *Aggregator) TotalTokensForUser(ctx context.Context, userID string) (int64, error) {
	s, err := a.SummarizeUser(ctx, userID, nil, nil)
	return s.TotalTokens, err
}

// TotalLatencyForUser 用户的总延迟（毫秒）
func (a *Aggregator) TotalLatencyForUser(ctx context.Context, userID string) (int64, error) {
	s, err := a.SummarizeUser(ctx, userID, nil, nil)
	return s.TotalLatencyMs, err
}

// AverageCostPerTokenForUser 用户的每 token 平均成本，token 为 0 时返回 0
func (a *Aggregator) AverageCostPerTokenForUser(ctx context.Context, userID string) (float64, error) {
	s, err := a.SummarizeUser(ctx, userID, nil, nil)
	return s.AvgCostPerToken, err
}

// TotalCostForPeriod 闭区间 [from, to] 内的总成本
func (a *Aggregator) TotalCostForPeriod(ctx context.Context, from, to time.Time) (float64, error) {
	s, err := a.SummarizePeriod(ctx, from, to)
	return s.TotalCost, err
}

// TotalTokensForPeriod 闭区间 [from, to] 内的总 token 数
func (a *Aggregator) TotalTokensForPeriod(ctx context.Context, from, to time.Time) (int64, error) {
	s, err := a.SummarizePeriod(ctx, from, to)
	return s.TotalTokens, err
}

// TotalLatencyForPeriod 闭区间 [from, to] 内的总延迟（毫秒）
func (a *Aggregator) TotalLatencyForPeriod(ctx context.Context, from, to time.Time) (int64, error) {
	s, err := a.SummarizePeriod(ctx, from, to)
	return s.TotalLatencyMs, err
}

// AverageCostPerTokenForPeriod 闭区间 [from, to] 内的每 token 平均成本，token 为 0 时返回 0
func (a *Aggregator) AverageCostPerTokenForPeriod(ctx context.Context, from, to time.Time) (float64, error) {
	s, err := a.SummarizePeriod(ctx, from, to)
	return s.AvgCostPerToken, err
}
