// Package openai 实现 OpenAI 协议的提供商适配器。
// DeepSeek、Venice 等 OpenAI 兼容提供商通过 NewCompatibleClient 复用本实现。
package openai

import (
	"context"
	"strings"
	"time"

	"backend/pkg/aiinterface"

	openai "github.com/sashabaranov/go-openai"
)

// Client OpenAI 协议适配器
type Client struct {
	client     *openai.Client
	descriptor aiinterface.ProviderDescriptor
	apiKey     string
	maxRetries int
}

// NewClient 创建 OpenAI 官方端点的适配器
func NewClient(config *aiinterface.ClientConfig) (*Client, error) {
	descriptor := aiinterface.ProviderDescriptor{
		ID:    config.ProviderID,
		Name:  "OpenAI",
		Class: aiinterface.ClassMainstream,
		Capabilities: aiinterface.Capabilities{
			SupportsJSONMode:  true,
			SupportsImages:    true,
			SupportsStreaming: true,
			MaxContextTokens:  128000,
			Modalities:        []string{"text", "image"},
		},
		Compliance: aiinterface.ComplianceMeta{
			AllowsAdultContent:  false,
			HasBuiltInFiltering: true,
		},
		DefaultModel:    "gpt-4o-mini",
		AvailableModels: []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo"},
	}
	if config.Model != "" {
		descriptor.DefaultModel = config.Model
	}
	return NewCompatibleClient(config, descriptor)
}

// NewCompatibleClient 创建任意 OpenAI 兼容端点的适配器，
// 描述信息由调用方（工厂）给出。
func NewCompatibleClient(config *aiinterface.ClientConfig, descriptor aiinterface.ProviderDescriptor) (*Client, error) {
	if config.APIKey == "" {
		return nil, aiinterface.NewError(aiinterface.KindConfigError,
			descriptor.Name+" API Key 不能为空")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.OrgID != "" {
		clientConfig.OrgID = config.OrgID
	}

	maxRetries := config.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	return &Client{
		client:     openai.NewClientWithConfig(clientConfig),
		descriptor: descriptor,
		apiKey:     config.APIKey,
		maxRetries: maxRetries,
	}, nil
}

// Generate 生成内容
func (c *Client) Generate(ctx context.Context, req *aiinterface.GenerateRequest, adultMode bool) (*aiinterface.GenerateResponse, error) {
	if err := aiinterface.GuardAdultMode(c.descriptor, adultMode); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = c.descriptor.DefaultModel
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	openaiReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if req.ResponseFormat == aiinterface.FormatJSON && c.descriptor.Capabilities.SupportsJSONMode {
		openaiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	// 调用 API（带重试），仅重试可恢复错误
	var resp openai.ChatCompletionResponse
	var err error
	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.client.CreateChatCompletion(ctx, openaiReq)
		if err == nil {
			break
		}
		wrapped := wrapError(c.descriptor.Name, err)
		if !wrapped.IsTransient() || i == c.maxRetries {
			return nil, wrapped
		}
		// 指数退避，响应上下文取消
		select {
		case <-time.After(time.Duration(1<<uint(i)) * time.Second):
		case <-ctx.Done():
			return nil, aiinterface.WrapError(aiinterface.KindTimeout, "请求被取消", ctx.Err())
		}
	}

	if len(resp.Choices) == 0 {
		return nil, aiinterface.NewError(aiinterface.KindAPIError, c.descriptor.Name+" 返回空响应")
	}

	content := resp.Choices[0].Message.Content
	usage := &aiinterface.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage = aiinterface.EstimateUsage(req, content, model)
	}

	return &aiinterface.GenerateResponse{
		Content:    content,
		Model:      resp.Model,
		ProviderID: c.descriptor.ID,
		Usage:      usage,
	}, nil
}

// CheckHealth 通过模型列表接口探测可用性
func (c *Client) CheckHealth(ctx context.Context) *aiinterface.HealthStatus {
	start := time.Now()
	models, err := c.client.ListModels(ctx)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return &aiinterface.HealthStatus{
			Healthy:      false,
			LatencyMs:    latency,
			ErrorMessage: err.Error(),
		}
	}

	available := make([]string, 0, len(models.Models))
	for _, m := range models.Models {
		available = append(available, m.ID)
	}

	return &aiinterface.HealthStatus{
		Healthy:         true,
		LatencyMs:       latency,
		AvailableModels: available,
	}
}

// ValidateConfig 校验配置
func (c *Client) ValidateConfig() bool {
	return c.apiKey != "" && c.descriptor.ID != ""
}

// Descriptor 返回提供商描述信息
func (c *Client) Descriptor() aiinterface.ProviderDescriptor {
	return c.descriptor
}

// wrapError 将 go-openai 错误映射为统一错误分类
func wrapError(name string, err error) *aiinterface.ClientError {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "invalid api key"):
		return aiinterface.WrapError(aiinterface.KindConfigError, name+" 认证失败", err)
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return &aiinterface.ClientError{
			Kind:          aiinterface.KindRateLimit,
			Message:       name + " 速率限制",
			RetryAfterSec: 60,
			Err:           err,
		}
	case strings.Contains(msg, "content_policy") || strings.Contains(msg, "content policy") || strings.Contains(msg, "content_filter"):
		return aiinterface.WrapError(aiinterface.KindContentFiltered, name+" 内容审核拒绝", err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return aiinterface.WrapError(aiinterface.KindTimeout, name+" 请求超时", err)
	default:
		return aiinterface.WrapError(aiinterface.KindAPIError, name+" API 错误", err)
	}
}
