package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"paper-gen-api/internal/interfaces/http/dto"
	"paper-gen-api/pkg/errors"
)

// AdminTokenHeader 管理令牌请求头
const AdminTokenHeader = "X-Admin-Token"

// AdminOnly 校验管理令牌；未配置令牌时管理接口一律拒绝
func AdminOnly(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			abortWith(c, http.StatusForbidden, "admin api disabled", errors.CodeForbidden)
			return
		}
		got := c.GetHeader(AdminTokenHeader)
		if got == "" {
			abortWith(c, http.StatusUnauthorized, "missing admin token", errors.CodeUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			abortWith(c, http.StatusForbidden, "invalid admin token", errors.CodeForbidden)
			return
		}
		c.Next()
	}
}

func abortWith(c *gin.Context, status int, msg string, code errors.ErrorCode) {
	c.AbortWithStatusJSON(status, dto.ErrorResponse{
		Code:    status,
		Message: msg,
		Error:   &dto.ErrorDetail{ErrorCode: string(code)},
		TraceID: c.GetString("trace_id"),
	})
}
