package common

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"backend/pkg/aiinterface"
)

// RespondError 将错误映射为传输层状态码并写出统一错误结构。
// 限流错误附带 Retry-After 响应头。
func RespondError(c *gin.Context, err error) {
	var ce *aiinterface.ClientError
	if !errors.As(err, &ce) {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: err.Error()})
		return
	}

	if ce.Kind == aiinterface.KindRateLimit && ce.RetryAfterSec > 0 {
		c.Header("Retry-After", strconv.Itoa(ce.RetryAfterSec))
	}

	c.JSON(statusForKind(ce.Kind), ErrorResponse{
		Code:    string(ce.Kind),
		Message: ce.Message,
	})
}

// statusForKind 错误分类到 HTTP 状态码的映射
func statusForKind(kind aiinterface.ErrorKind) int {
	switch kind {
	case aiinterface.KindProviderNotFound:
		return http.StatusNotFound
	case aiinterface.KindRateLimit:
		return http.StatusTooManyRequests
	case aiinterface.KindAdultModeNotSupported,
		aiinterface.KindContentRequiresAdult,
		aiinterface.KindConsentInvalidOrExpired:
		return http.StatusForbidden
	case aiinterface.KindIllegalContent:
		return http.StatusBadRequest
	case aiinterface.KindContentFiltered:
		return http.StatusUnprocessableEntity
	case aiinterface.KindTimeout:
		return http.StatusGatewayTimeout
	case aiinterface.KindAPIError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
