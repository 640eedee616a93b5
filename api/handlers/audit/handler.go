// Package audit 提供审计日志查询的 API 处理器。
package audit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"backend/internal/audit"
)

// Handler 审计 API 处理器
type Handler struct {
	trail *audit.Trail
}

// NewHandler 创建处理器
func NewHandler(trail *audit.Trail) *Handler {
	return &Handler{trail: trail}
}

// Recent 返回最近的审计条目（最新在前）
// @Summary 最近审计记录
// @Tags Audit
// @Produce json
// @Router /api/v1/audit/recent [get]
func (h *Handler) Recent(c *gin.Context) {
	n := 50
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n 必须是正整数"})
			return
		}
		n = parsed
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": h.trail.Recent(n),
		"total":   h.trail.Len(),
	})
}
