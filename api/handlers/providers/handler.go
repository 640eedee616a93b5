// Package providers 提供提供商元数据与健康状态的 API 处理器。
package providers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backend/api/handlers/common"
	"backend/internal/registry"
)

// Handler 提供商 API 处理器
type Handler struct {
	registry *registry.Registry
}

// NewHandler 创建处理器
func NewHandler(reg *registry.Registry) *Handler {
	return &Handler{registry: reg}
}

// List 列出全部提供商及其能力与合规元数据
// @Summary 列出提供商
// @Tags Providers
// @Produce json
// @Router /api/v1/providers [get]
func (h *Handler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.registry.List()})
}

// Status 查询单个提供商的健康状态（带缓存）
// @Summary 提供商健康状态
// @Tags Providers
// @Produce json
// @Router /api/v1/providers/{id}/status [get]
func (h *Handler) Status(c *gin.Context) {
	status, err := h.registry.ProviderStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// AllStatuses 查询全部提供商的健康状态
// @Summary 全部提供商健康状态
// @Tags Providers
// @Produce json
// @Router /api/v1/providers/status [get]
func (h *Handler) AllStatuses(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.AllStatuses(c.Request.Context()))
}
