// Package orchestrator 是面向调用方的编排门面：
// 把同意校验、提供商注册表与任务化操作组合成少量高层入口。
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"backend/internal/consent"
	"backend/internal/logger"
	"backend/internal/registry"
	"backend/pkg/aiinterface"
)

// GenerateInput 生成请求的完整输入
type GenerateInput struct {
	SessionID           string
	ClientKey           string
	ProviderID          string
	FallbackProviderIDs []string
	AdultModeRequested  bool
	Request             *aiinterface.GenerateRequest
}

// Service 编排门面
type Service struct {
	registry *registry.Registry
	consent  *consent.Manager
}

// NewService 创建编排门面
func NewService(reg *registry.Registry, consentMgr *consent.Manager) *Service {
	return &Service{
		registry: reg,
		consent:  consentMgr,
	}
}

// GenerateText 通用文本生成。
// 有效成人模式 = 请求标志 AND 会话存在有效同意记录；
// 请求成人模式但同意记录缺失或过期时直接拒绝，不进入注册表。
func (s *Service) GenerateText(ctx context.Context, in *GenerateInput) (*aiinterface.GenerateResponse, error) {
	adultMode, err := s.resolveAdultMode(ctx, in)
	if err != nil {
		return nil, err
	}

	var resp *aiinterface.GenerateResponse
	if len(in.FallbackProviderIDs) > 0 {
		resp, err = s.registry.GenerateWithFallback(ctx, in.ProviderID, in.FallbackProviderIDs,
			in.ClientKey, in.SessionID, in.Request, adultMode)
	} else {
		resp, err = s.registry.Generate(ctx, in.ProviderID, in.ClientKey, in.SessionID, in.Request, adultMode)
	}
	if err != nil {
		return nil, wrapOperationError("生成失败", err)
	}
	return resp, nil
}

// ExplainText 解释一段文本（命令输出、错误信息等）
func (s *Service) ExplainText(ctx context.Context, in *GenerateInput, text string) (*aiinterface.GenerateResponse, error) {
	in.Request = &aiinterface.GenerateRequest{
		Messages: []aiinterface.Message{
			{Role: "system", Content: "你是一名耐心的技术助手。用简洁的中文解释用户提供的文本，" +
				"说明它的含义、可能的来源和需要注意的点。"},
			{Role: "user", Content: text},
		},
		Temperature: 0.3,
		MaxTokens:   1024,
	}
	return s.GenerateText(ctx, in)
}

// SummarizeLog 总结一段日志，输出要点与异常
func (s *Service) SummarizeLog(ctx context.Context, in *GenerateInput, logText string) (*aiinterface.GenerateResponse, error) {
	in.Request = &aiinterface.GenerateRequest{
		Messages: []aiinterface.Message{
			{Role: "system", Content: "你是一名运维工程师。阅读用户提供的日志，" +
				"给出简短总结：关键事件、错误与告警、以及建议的排查方向。"},
			{Role: "user", Content: logText},
		},
		Temperature: 0.2,
		MaxTokens:   1024,
	}
	return s.GenerateText(ctx, in)
}

// resolveAdultMode 计算有效成人模式标志
func (s *Service) resolveAdultMode(ctx context.Context, in *GenerateInput) (bool, error) {
	if !in.AdultModeRequested {
		return false, nil
	}
	if !s.consent.IsAdultModeAllowed(in.SessionID) {
		logger.FromContext(ctx).Info("成人模式请求被拒绝：同意记录缺失或过期",
			zap.String("session", in.SessionID))
		return false, aiinterface.NewError(aiinterface.KindConsentInvalidOrExpired,
			"会话缺少有效的成人内容同意记录")
	}
	return true, nil
}

// wrapOperationError 包装注册表错误为操作级错误，保留底层分类。
// 限流错误的 RetryAfter 提示一并透传。
func wrapOperationError(operation string, err error) error {
	var ce *aiinterface.ClientError
	if errors.As(err, &ce) {
		return &aiinterface.ClientError{
			Kind:          ce.Kind,
			Message:       fmt.Sprintf("%s: %s", operation, ce.Message),
			RetryAfterSec: ce.RetryAfterSec,
			Err:           ce,
		}
	}
	return aiinterface.WrapError(aiinterface.KindAPIError, operation, err)
}
