package handler

import (
	"github.com/gin-gonic/gin"

	"paper-gen-api/internal/application/routing"
	"paper-gen-api/internal/interfaces/http/dto"
	"paper-gen-api/pkg/logger"
)

// RoutingHandler 模型路由管理接口
type RoutingHandler struct {
	router *routing.Router
}

// NewRoutingHandler 创建路由管理处理器
func NewRoutingHandler(router *routing.Router) *RoutingHandler {
	return &RoutingHandler{router: router}
}

// GetRouting 当前路由表快照
// @Summary 查看模型路由表
// @Tags Admin
// @Produce json
// @Success 200 {object} dto.Response[routing.Config]
// @Router /v1/admin/routing [get]
func (h *RoutingHandler) GetRouting(c *gin.Context) {
	dto.Success(c, h.router.Snapshot())
}

// ReplaceRouting 校验、持久化并替换路由表
// @Summary 替换模型路由表
// @Tags Admin
// @Accept json
// @Produce json
// @Param body body routing.Config true "路由表"
// @Success 200 {object} dto.Response[routing.Config]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/admin/routing [put]
func (h *RoutingHandler) ReplaceRouting(c *gin.Context) {
	var cfg routing.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		dto.BadRequest(c, "invalid routing config: "+err.Error())
		return
	}

	if err := h.router.Replace(c.Request.Context(), &cfg); err != nil {
		respondError(c, err, "failed to replace routing config")
		return
	}

	logger.Info(c.Request.Context(), "routing config replaced via admin api")
	dto.Success(c, h.router.Snapshot())
}
