// Package consent 提供成人内容同意记录的 API 处理器。
package consent

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"backend/internal/consent"
)

// Handler 同意管理 API 处理器
type Handler struct {
	manager *consent.Manager
}

// NewHandler 创建处理器
func NewHandler(manager *consent.Manager) *Handler {
	return &Handler{manager: manager}
}

// RecordRequest 记录同意请求体
type RecordRequest struct {
	SessionID      string `json:"session_id" binding:"required"`
	UserID         string `json:"user_id,omitempty"`
	Age            int    `json:"age" binding:"required"`
	JurisdictionOK bool   `json:"jurisdiction_ok"`
}

// Record 记录一次成人内容同意
// @Summary 记录同意
// @Tags Consent
// @Accept json
// @Produce json
// @Success 201 {object} consent.Record
// @Failure 403 {object} map[string]string
// @Router /api/v1/consent [post]
func (h *Handler) Record(c *gin.Context) {
	var req RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.manager.RecordConsent(req.SessionID, req.UserID, req.Age,
		req.JurisdictionOK, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		status := http.StatusForbidden
		if errors.Is(err, consent.ErrSessionRequired) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, record)
}

// Status 查询会话的同意状态
// @Summary 查询同意状态
// @Tags Consent
// @Produce json
// @Success 200 {object} consent.Status
// @Router /api/v1/consent/status [get]
func (h *Handler) Status(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 session_id 参数"})
		return
	}
	c.JSON(http.StatusOK, h.manager.GetStatus(sessionID))
}

// Revoke 撤销会话的同意记录
// @Summary 撤销同意
// @Tags Consent
// @Produce json
// @Success 204
// @Router /api/v1/consent [delete]
func (h *Handler) Revoke(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 session_id 参数"})
		return
	}
	h.manager.RevokeConsent(sessionID)
	c.Status(http.StatusNoContent)
}
