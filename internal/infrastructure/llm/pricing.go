package llm

import (
	"math"

	"paper-gen-api/internal/config"
)

// Pricing 按模型计价（每千 token）
type Pricing struct {
	perK       map[string]float64
	defaultPer float64
}

// NewPricing 根据配置创建价格表
func NewPricing(cfg config.CostConfig) *Pricing {
	p := &Pricing{
		perK:       make(map[string]float64, len(cfg.Pricing)),
		defaultPer: cfg.DefaultPricePer1K,
	}
	for _, mp := range cfg.Pricing {
		p.perK[mp.Model] = mp.PricePer1K
	}
	return p
}

// Cost 计算 token 用量的费用，结果保留 6 位小数
func (p *Pricing) Cost(modelID string, tokens int64) float64 {
	if tokens <= 0 {
		return 0
	}
	price, ok := p.perK[modelID]
	if !ok {
		price = p.defaultPer
	}
	return math.Round(float64(tokens)/1000*price*1e6) / 1e6
}
