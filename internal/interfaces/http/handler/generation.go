package handler

import (
	"github.com/gin-gonic/gin"

	"paper-gen-api/internal/application/lifecycle"
	"paper-gen-api/internal/domain/entity"
	"paper-gen-api/internal/domain/repository"
	"paper-gen-api/internal/interfaces/http/dto"
	"paper-gen-api/pkg/logger"
)

// GenerationHandler 生成处理器
type GenerationHandler struct {
	svc *lifecycle.Service
}

// NewGenerationHandler 创建生成处理器
func NewGenerationHandler(svc *lifecycle.Service) *GenerationHandler {
	return &GenerationHandler{svc: svc}
}

// CreateGeneration 创建生成
// @Summary 创建生成
// @Tags Generations
// @Accept json
// @Produce json
// @Param body body dto.CreateGenerationRequest true "生成参数"
// @Success 201 {object} dto.Response[dto.GenerationResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/generations [post]
func (h *GenerationHandler) CreateGeneration(c *gin.Context) {
	var req dto.CreateGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	ctx := logger.WithContext(c.Request.Context(), logger.UserIDKey, req.UserID)
	g, err := h.svc.Create(ctx, lifecycle.CreateInput{
		UserID: req.UserID,
		Module: req.Module,
		Input:  entity.Payload(req.Input),
	})
	if err != nil {
		respondError(c, err, "failed to create generation")
		return
	}

	dto.Created(c, dto.ToGenerationResponse(g))
}

// GetGeneration 获取生成
// @Summary 获取生成详情
// @Tags Generations
// @Produce json
// @Param id path string true "生成 ID"
// @Success 200 {object} dto.Response[dto.GenerationResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/generations/{id} [get]
func (h *GenerationHandler) GetGeneration(c *gin.Context) {
	g, err := h.svc.Get(c.Request.Context(), dto.BindGenerationID(c))
	if err != nil {
		respondError(c, err, "failed to get generation")
		return
	}
	dto.Success(c, dto.ToGenerationResponse(g))
}

// ApplyAction 对生成应用动作（next / cancel）
// @Summary 推进或取消生成
// @Tags Generations
// @Accept json
// @Produce json
// @Param id path string true "生成 ID"
// @Param body body dto.ActionRequest true "动作"
// @Success 200 {object} dto.Response[dto.GenerationResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "非法状态迁移"
// @Router /v1/generations/{id}/actions [post]
func (h *GenerationHandler) ApplyAction(c *gin.Context) {
	var req dto.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	action, ok := entity.ParseAction(req.Action)
	if !ok {
		dto.BadRequest(c, "unknown action: "+req.Action)
		return
	}

	g, err := h.svc.ApplyAction(c.Request.Context(), dto.BindGenerationID(c), action)
	if err != nil {
		respondError(c, err, "failed to apply action")
		return
	}
	dto.Success(c, dto.ToGenerationResponse(g))
}

// ListJobs 列出生成的步骤任务
// @Summary 生成的步骤任务
// @Tags Generations
// @Produce json
// @Param id path string true "生成 ID"
// @Success 200 {object} dto.Response[[]dto.JobResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/generations/{id}/jobs [get]
func (h *GenerationHandler) ListJobs(c *gin.Context) {
	jobs, err := h.svc.ListJobs(c.Request.Context(), dto.BindGenerationID(c))
	if err != nil {
		respondError(c, err, "failed to list jobs")
		return
	}
	dto.Success(c, dto.ToJobListResponse(jobs))
}

// ListUserGenerations 分页列出用户的生成
// @Summary 用户的生成列表
// @Tags Users
// @Produce json
// @Param uid path string true "用户 ID"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[[]dto.GenerationResponse]
// @Router /v1/users/{uid}/generations [get]
func (h *GenerationHandler) ListUserGenerations(c *gin.Context) {
	page := dto.BindPage(c)
	result, err := h.svc.ListByUser(c.Request.Context(), dto.BindUserID(c), repository.NewPagination(page.Page, page.PageSize))
	if err != nil {
		respondError(c, err, "failed to list generations")
		return
	}
	dto.SuccessWithPage(c, dto.ToGenerationListResponse(result.Items),
		dto.NewPageMeta(result.Page, result.PageSize, result.Total, result.TotalPages))
}
