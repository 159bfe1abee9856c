// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"paper-gen-api/internal/application/lifecycle"
	"paper-gen-api/internal/interfaces/http/dto"
	"paper-gen-api/pkg/errors"
	"paper-gen-api/pkg/logger"
)

// respondError 将服务层错误映射为 HTTP 响应
// 非法迁移为 409，应用错误按其状态码返回，其余记录日志后返回 500。
func respondError(c *gin.Context, err error, msg string) {
	if lifecycle.IsConflict(err) {
		dto.Conflict(c, err.Error())
		return
	}
	if errors.IsAppError(err) {
		appErr := errors.AsAppError(err)
		if appErr.HTTPStatus >= 500 {
			logger.Error(c.Request.Context(), msg, err)
		}
		dto.AppError(c, appErr)
		return
	}
	logger.Error(c.Request.Context(), msg, err)
	dto.InternalError(c, msg)
}
