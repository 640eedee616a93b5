package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"backend/internal/config"
	"backend/internal/metrics"
	middlewarepkg "backend/internal/middleware"
)

// SetupRouter 创建并装配 HTTP 路由
func SetupRouter(cfg *config.Config, container *AppContainer) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middlewarepkg.RequestIDMiddleware(),
		RequestLogger(),
		CORS(),
		metrics.PrometheusMiddleware(),
	)

	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(container))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	RegisterRoutes(router, NewHandlers(container))
	return router
}
