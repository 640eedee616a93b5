package aiinterface

import "errors"

// ErrorKind 错误分类，供调用方映射为传输层状态码
type ErrorKind string

const (
	KindProviderNotFound        ErrorKind = "PROVIDER_NOT_FOUND"          // 未注册的提供商
	KindAdultModeNotSupported   ErrorKind = "ADULT_MODE_NOT_SUPPORTED"    // 提供商不支持成人模式
	KindRateLimit               ErrorKind = "RATE_LIMIT"                  // 速率限制（携带 RetryAfter）
	KindIllegalContent          ErrorKind = "ILLEGAL_CONTENT"             // 非法内容，终态，不重试不转发
	KindContentRequiresAdult    ErrorKind = "CONTENT_REQUIRES_ADULT_MODE" // 内容需要成人模式
	KindConsentInvalidOrExpired ErrorKind = "CONSENT_INVALID_OR_EXPIRED"  // 同意记录缺失或过期
	KindAPIError                ErrorKind = "API_ERROR"                   // 提供商 API 错误
	KindConfigError             ErrorKind = "CONFIG_ERROR"                // 适配器配置错误
	KindTimeout                 ErrorKind = "TIMEOUT"                     // 超时（含轮询超限）
	KindContentFiltered         ErrorKind = "CONTENT_FILTERED"            // 提供商侧审核拒绝
)

// ClientError 统一错误结构
type ClientError struct {
	Kind          ErrorKind // 错误分类
	Message       string    // 人类可读消息
	RetryAfterSec int       // 重试提示（秒），仅 KindRateLimit 有效
	Err           error     // 原始错误
}

// Error 实现 error 接口
func (e *ClientError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap 返回原始错误
func (e *ClientError) Unwrap() error {
	return e.Err
}

// IsRetryable 判断错误在回退链中是否可继续尝试下一个提供商。
// 配置错误与内容政策类错误不重试：前者换提供商无意义，
// 后者说明请求本身无效而非提供商故障。
func (e *ClientError) IsRetryable() bool {
	switch e.Kind {
	case KindRateLimit, KindAPIError, KindTimeout, KindContentFiltered:
		return true
	default:
		return false
	}
}

// IsTransient 判断是否值得在同一提供商上原地重试。
// 与 IsRetryable（回退链语义）不同：限流与厂商侧内容过滤
// 原地重试没有意义，只有瞬时故障与超时适合立即再试。
func (e *ClientError) IsTransient() bool {
	switch e.Kind {
	case KindAPIError, KindTimeout:
		return true
	default:
		return false
	}
}

// NewError 构造指定分类的错误
func NewError(kind ErrorKind, message string) *ClientError {
	return &ClientError{Kind: kind, Message: message}
}

// WrapError 包装原始错误
func WrapError(kind ErrorKind, message string, err error) *ClientError {
	return &ClientError{Kind: kind, Message: message, Err: err}
}

// KindOf 提取错误分类，非 ClientError 时归为 KindAPIError
func KindOf(err error) ErrorKind {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindAPIError
}

// IsKind 判断错误是否属于指定分类
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
