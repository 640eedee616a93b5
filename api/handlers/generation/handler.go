// Package generation 提供文本生成相关的 API 处理器。
package generation

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"backend/api/handlers/common"
	"backend/internal/orchestrator"
	"backend/pkg/aiinterface"
)

// Handler 生成 API 处理器
type Handler struct {
	service *orchestrator.Service
}

// NewHandler 创建处理器
func NewHandler(service *orchestrator.Service) *Handler {
	return &Handler{service: service}
}

// GenerateRequest 生成请求体
type GenerateRequest struct {
	SessionID           string                `json:"session_id" binding:"required"`
	ProviderID          string                `json:"provider_id" binding:"required"`
	FallbackProviderIDs []string              `json:"fallback_provider_ids,omitempty"`
	IsAdultMode         bool                  `json:"is_adult_mode"`
	Messages            []aiinterface.Message `json:"messages" binding:"required,min=1"`
	Temperature         float64               `json:"temperature,omitempty"`
	MaxTokens           int                   `json:"max_tokens,omitempty"`
	ResponseFormat      string                `json:"response_format,omitempty"`
	Model               string                `json:"model,omitempty"`
}

// TextRequest 单段文本类操作（解释、日志总结）请求体
type TextRequest struct {
	SessionID           string   `json:"session_id" binding:"required"`
	ProviderID          string   `json:"provider_id" binding:"required"`
	FallbackProviderIDs []string `json:"fallback_provider_ids,omitempty"`
	IsAdultMode         bool     `json:"is_adult_mode"`
	Text                string   `json:"text" binding:"required"`
}

// Generate 通用生成
// @Summary 通用文本生成
// @Tags Generation
// @Accept json
// @Produce json
// @Success 200 {object} aiinterface.GenerateResponse
// @Router /api/v1/generate [post]
func (h *Handler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := &orchestrator.GenerateInput{
		SessionID:           req.SessionID,
		ClientKey:           clientKey(c, req.SessionID),
		ProviderID:          req.ProviderID,
		FallbackProviderIDs: req.FallbackProviderIDs,
		AdultModeRequested:  req.IsAdultMode,
		Request: &aiinterface.GenerateRequest{
			Messages:       req.Messages,
			Temperature:    req.Temperature,
			MaxTokens:      req.MaxTokens,
			ResponseFormat: aiinterface.ResponseFormat(req.ResponseFormat),
			Model:          req.Model,
		},
	}

	resp, err := h.service.GenerateText(c.Request.Context(), in)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Explain 解释一段文本
// @Summary 解释文本
// @Tags Generation
// @Accept json
// @Produce json
// @Router /api/v1/explain [post]
func (h *Handler) Explain(c *gin.Context) {
	h.textOperation(c, h.service.ExplainText)
}

// SummarizeLog 总结日志
// @Summary 总结日志
// @Tags Generation
// @Accept json
// @Produce json
// @Router /api/v1/summarize-log [post]
func (h *Handler) SummarizeLog(c *gin.Context) {
	h.textOperation(c, h.service.SummarizeLog)
}

type textOp func(ctx context.Context, in *orchestrator.GenerateInput, text string) (*aiinterface.GenerateResponse, error)

func (h *Handler) textOperation(c *gin.Context, op textOp) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := &orchestrator.GenerateInput{
		SessionID:           req.SessionID,
		ClientKey:           clientKey(c, req.SessionID),
		ProviderID:          req.ProviderID,
		FallbackProviderIDs: req.FallbackProviderIDs,
		AdultModeRequested:  req.IsAdultMode,
	}

	resp, err := op(c.Request.Context(), in, req.Text)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// clientKey 限流键：优先会话标识，退回客户端 IP
func clientKey(c *gin.Context, sessionID string) string {
	if sessionID != "" {
		return sessionID
	}
	return c.ClientIP()
}
