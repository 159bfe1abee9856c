package dto

import "paper-gen-api/internal/application/cost"

// CostSummaryResponse 成本汇总响应
type CostSummaryResponse struct {
	Scope   string       `json:"scope"`
	ScopeID string       `json:"scope_id"`
	From    string       `json:"from,omitempty"`
	To      string       `json:"to,omitempty"`
	Summary cost.Summary `json:"summary"`
}
