package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"backend/internal/logger"
)

// HeaderRequestID 请求 ID 透传头
const HeaderRequestID = "X-Request-ID"

const ginRequestIDKey = "request_id"

// RequestIDMiddleware 请求 ID 中间件
// 上游传入的 X-Request-ID 原样透传，否则生成新 ID；
// 同时注入 request context，供各层日志关联同一次请求
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(ginRequestIDKey, requestID)
		c.Request = c.Request.WithContext(
			logger.WithRequestID(c.Request.Context(), requestID),
		)
		c.Header(HeaderRequestID, requestID)

		c.Next()
	}
}

// RequestIDFromGin 从 Gin 上下文获取请求 ID
func RequestIDFromGin(c *gin.Context) string {
	if id, exists := c.Get(ginRequestIDKey); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
