package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"paper-gen-api/internal/application/cost"
	"paper-gen-api/internal/application/lifecycle"
	"paper-gen-api/internal/interfaces/http/dto"
	"paper-gen-api/pkg/memo"
)

// generationCostQuery 生成成本查询参数（记忆化键）
// 成本记录与版本号在同一事务内写入，键含版本号后状态变化即失效。
type generationCostQuery struct {
	GenerationID string
	Version      int64
}

func (q generationCostQuery) key() string {
	return q.GenerationID + "@" + strconv.FormatInt(q.Version, 10)
}

// userCostQuery 用户成本查询参数（记忆化键）
type userCostQuery struct {
	UserID string
	From   *time.Time
	To     *time.Time
}

func (q userCostQuery) key() string {
	return q.UserID + "|" + formatBound(q.From) + "|" + formatBound(q.To)
}

func formatBound(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// CostHandler 成本查询处理器，汇总结果在 TTL 内记忆化
type CostHandler struct {
	svc               *lifecycle.Service
	generationSummary func(ctx context.Context, q generationCostQuery) (cost.Summary, error)
	userSummary       func(ctx context.Context, q userCostQuery) (cost.Summary, error)
}

// NewCostHandler 创建成本处理器
func NewCostHandler(svc *lifecycle.Service, agg *cost.Aggregator, backend memo.Backend, ttl time.Duration) *CostHandler {
	return &CostHandler{
		svc: svc,
		generationSummary: memo.Func(backend, "cost:generation", ttl,
			generationCostQuery.key,
			func(ctx context.Context, q generationCostQuery) (cost.Summary, error) {
				return agg.SummarizeGeneration(ctx, q.GenerationID)
			},
		),
		userSummary: memo.Func(backend, "cost:user", ttl,
			userCostQuery.key,
			func(ctx context.Context, q userCostQuery) (cost.Summary, error) {
				return agg.SummarizeUser(ctx, q.UserID, q.From, q.To)
			},
		),
	}
}

// GetGenerationCosts 生成的成本汇总
// @Summary 生成成本汇总
// @Tags Costs
// @Produce json
// @Param id path string true "生成 ID"
// @Success 200 {object} dto.Response[dto.CostSummaryResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/generations/{id}/costs [get]
func (h *CostHandler) GetGenerationCosts(c *gin.Context) {
	ctx := c.Request.Context()
	id := dto.BindGenerationID(c)

	g, err := h.svc.Get(ctx, id)
	if err != nil {
		respondError(c, err, "failed to get generation")
		return
	}

	summary, err := h.generationSummary(ctx, generationCostQuery{GenerationID: id, Version: g.Version})
	if err != nil {
		respondError(c, err, "failed to summarize generation costs")
		return
	}
	dto.Success(c, &dto.CostSummaryResponse{
		Scope:   "generation",
		ScopeID: id,
		Summary: summary,
	})
}

// GetUserCosts 用户在可选闭区间内的成本汇总
// @Summary 用户成本汇总
// @Tags Costs
// @Produce json
// @Param uid path string true "用户 ID"
// @Param from query string false "起始时间（RFC3339 或 YYYY-MM-DD）"
// @Param to query string false "结束时间（RFC3339 或 YYYY-MM-DD）"
// @Success 200 {object} dto.Response[dto.CostSummaryResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/users/{uid}/costs [get]
func (h *CostHandler) GetUserCosts(c *gin.Context) {
	uid := dto.BindUserID(c)
	tr, err := dto.BindTimeRange(c)
	if err != nil {
		dto.BadRequest(c, "invalid time range: "+err.Error())
		return
	}
	if tr.From != nil && tr.To != nil && tr.From.After(*tr.To) {
		dto.BadRequest(c, "from must not be after to")
		return
	}

	summary, err := h.userSummary(c.Request.Context(), userCostQuery{UserID: uid, From: tr.From, To: tr.To})
	if err != nil {
		respondError(c, err, "failed to summarize user costs")
		return
	}

	resp := &dto.CostSummaryResponse{Scope: "user", ScopeID: uid, Summary: summary}
	if tr.From != nil {
		resp.From = tr.From.Format(time.RFC3339)
	}
	if tr.To != nil {
		resp.To = tr.To.Format(time.RFC3339)
	}
	dto.Success(c, resp)
}
