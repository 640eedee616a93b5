// Package anthropic 实现 Anthropic Messages API 的提供商适配器。
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"backend/pkg/aiinterface"
)

// Client Anthropic 适配器
type Client struct {
	apiKey     string
	baseURL    string
	descriptor aiinterface.ProviderDescriptor
	httpClient *http.Client
	maxRetries int
}

// NewClient 创建 Anthropic 适配器
func NewClient(config *aiinterface.ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, aiinterface.NewError(aiinterface.KindConfigError, "Anthropic API Key 不能为空")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	maxRetries := config.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 60
	}

	descriptor := aiinterface.ProviderDescriptor{
		ID:    config.ProviderID,
		Name:  "Anthropic",
		Class: aiinterface.ClassMainstream,
		Capabilities: aiinterface.Capabilities{
			SupportsJSONMode:  false,
			SupportsStreaming: true,
			MaxContextTokens:  200000,
			Modalities:        []string{"text", "image"},
		},
		Compliance: aiinterface.ComplianceMeta{
			AllowsAdultContent:  false,
			HasBuiltInFiltering: true,
		},
		DefaultModel:    "claude-3-5-sonnet-20241022",
		AvailableModels: []string{"claude-3-5-sonnet-20241022", "claude-3-5-haiku-20241022", "claude-3-opus-20240229"},
	}
	if config.Model != "" {
		descriptor.DefaultModel = config.Model
	}

	return &Client{
		apiKey:     config.APIKey,
		baseURL:    baseURL,
		descriptor: descriptor,
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		maxRetries: maxRetries,
	}, nil
}

// anthropicRequest Anthropic API 请求
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
}

// anthropicMessage Anthropic 消息
type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse Anthropic API 响应
type anthropicResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Content []anthropicContent `json:"content"`
	Usage   anthropicUsage     `json:"usage"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// anthropicModelList 模型列表响应（健康探测用）
type anthropicModelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
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

	// Anthropic 将 system 消息单独处理
	messages := make([]anthropicMessage, 0, len(req.Messages))
	var systemPrompt string
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			systemPrompt = msg.Content
		} else {
			messages = append(messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096 // Anthropic 要求必填
	}

	anthropicReq := anthropicRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		System:      systemPrompt,
	}

	var resp *anthropicResponse
	var err error
	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.doRequest(ctx, anthropicReq)
		if err == nil {
			break
		}
		if ce, ok := err.(*aiinterface.ClientError); ok && !ce.IsTransient() {
			return nil, err
		}
		if i == c.maxRetries {
			return nil, err
		}
		select {
		case <-time.After(time.Duration(1<<uint(i)) * time.Second):
		case <-ctx.Done():
			return nil, aiinterface.WrapError(aiinterface.KindTimeout, "请求被取消", ctx.Err())
		}
	}

	var content string
	if len(resp.Content) > 0 {
		content = resp.Content[0].Text
	}

	usage := &aiinterface.Usage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
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

// doRequest 发送一次 messages 请求
func (c *Client) doRequest(ctx context.Context, req anthropicRequest) (*anthropicResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, aiinterface.WrapError(aiinterface.KindAPIError, "序列化请求失败", err)
	}

	url := fmt.Sprintf("%s/v1/messages", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, aiinterface.WrapError(aiinterface.KindAPIError, "创建 HTTP 请求失败", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, aiinterface.WrapError(aiinterface.KindTimeout, "Anthropic API 调用失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, wrapHTTPError(resp.StatusCode, string(bodyBytes))
	}

	var anthropicResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&anthropicResp); err != nil {
		return nil, aiinterface.WrapError(aiinterface.KindAPIError, "解析响应失败", err)
	}
	return &anthropicResp, nil
}

// CheckHealth 健康探测
func (c *Client) CheckHealth(ctx context.Context) *aiinterface.HealthStatus {
	start := time.Now()

	url := fmt.Sprintf("%s/v1/models", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &aiinterface.HealthStatus{Healthy: false, ErrorMessage: err.Error()}
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return &aiinterface.HealthStatus{Healthy: false, LatencyMs: latency, ErrorMessage: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &aiinterface.HealthStatus{
			Healthy:      false,
			LatencyMs:    latency,
			ErrorMessage: fmt.Sprintf("HTTP %d", resp.StatusCode),
		}
	}

	var list anthropicModelList
	var available []string
	if err := json.NewDecoder(resp.Body).Decode(&list); err == nil {
		for _, m := range list.Data {
			available = append(available, m.ID)
		}
	}

	return &aiinterface.HealthStatus{Healthy: true, LatencyMs: latency, AvailableModels: available}
}

// ValidateConfig 校验配置
func (c *Client) ValidateConfig() bool {
	return c.apiKey != "" && c.baseURL != "" && c.descriptor.ID != ""
}

// Descriptor 返回提供商描述信息
func (c *Client) Descriptor() aiinterface.ProviderDescriptor {
	return c.descriptor
}

// wrapHTTPError 按状态码映射错误分类
func wrapHTTPError(status int, body string) *aiinterface.ClientError {
	msg := fmt.Sprintf("Anthropic HTTP %d: %s", status, body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return aiinterface.NewError(aiinterface.KindConfigError, msg)
	case status == http.StatusTooManyRequests:
		return &aiinterface.ClientError{Kind: aiinterface.KindRateLimit, Message: msg, RetryAfterSec: 60}
	case status == http.StatusBadRequest && strings.Contains(body, "content"):
		return aiinterface.NewError(aiinterface.KindContentFiltered, msg)
	default:
		return aiinterface.NewError(aiinterface.KindAPIError, msg)
	}
}
