// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// PageRequest 分页请求参数
type PageRequest struct {
	Page     int `form:"page" json:"page"`
	PageSize int `form:"page_size" json:"page_size"`
}

// Normalize 规范化分页参数
func (r *PageRequest) Normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = 20
	}
	if r.PageSize > 100 {
		r.PageSize = 100
	}
}

// BindPage 从 Gin Context 绑定分页参数
func BindPage(c *gin.Context) PageRequest {
	req := PageRequest{
		Page:     parseIntWithDefault(c.Query("page"), 1),
		PageSize: parseIntWithDefault(c.Query("page_size"), 20),
	}
	req.Normalize()
	return req
}

func parseIntWithDefault(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// BindGenerationID 获取路径中的生成 ID
func BindGenerationID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("id"))
}

// BindUserID 获取路径中的用户 ID
func BindUserID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("uid"))
}

// TimeRange 可选的闭区间
type TimeRange struct {
	From *time.Time
	To   *time.Time
}

// BindTimeRange 解析 from/to 查询参数（RFC3339 或 YYYY-MM-DD）
// 日期形式的 to 取当天结束时刻，使区间包含整天。
func BindTimeRange(c *gin.Context) (TimeRange, error) {
	var tr TimeRange

	if s := strings.TrimSpace(c.Query("from")); s != "" {
		t, _, err := parseTime(s)
		if err != nil {
			return tr, err
		}
		tr.From = &t
	}
	if s := strings.TrimSpace(c.Query("to")); s != "" {
		t, dateOnly, err := parseTime(s)
		if err != nil {
			return tr, err
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		tr.To = &t
	}
	return tr, nil
}

func parseTime(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), true, nil
}
