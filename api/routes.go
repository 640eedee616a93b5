package api

import (
	"github.com/gin-gonic/gin"

	auditHandlers "backend/api/handlers/audit"
	consentHandlers "backend/api/handlers/consent"
	"backend/api/handlers/generation"
	"backend/api/handlers/providers"
)

// Handlers 全部 API 处理器
type Handlers struct {
	Generation *generation.Handler
	Consent    *consentHandlers.Handler
	Providers  *providers.Handler
	Audit      *auditHandlers.Handler
}

// NewHandlers 根据容器创建处理器集合
func NewHandlers(container *AppContainer) *Handlers {
	return &Handlers{
		Generation: generation.NewHandler(container.Orchestrator),
		Consent:    consentHandlers.NewHandler(container.Consent),
		Providers:  providers.NewHandler(container.Registry),
		Audit:      auditHandlers.NewHandler(container.Trail),
	}
}

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(router *gin.Engine, handlers *Handlers) {
	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/generate", handlers.Generation.Generate)
		apiV1.POST("/explain", handlers.Generation.Explain)
		apiV1.POST("/summarize-log", handlers.Generation.SummarizeLog)

		apiV1.POST("/consent", handlers.Consent.Record)
		apiV1.DELETE("/consent", handlers.Consent.Revoke)
		apiV1.GET("/consent/status", handlers.Consent.Status)

		apiV1.GET("/providers", handlers.Providers.List)
		apiV1.GET("/providers/status", handlers.Providers.AllStatuses)
		apiV1.GET("/providers/:id/status", handlers.Providers.Status)

		apiV1.GET("/audit/recent", handlers.Audit.Recent)
	}
}
