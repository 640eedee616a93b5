// Package google 实现 Google Gemini generateContent API 的提供商适配器。
package google

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

// Client Gemini 适配器
type Client struct {
	apiKey     string
	baseURL    string
	descriptor aiinterface.ProviderDescriptor
	httpClient *http.Client
	maxRetries int
}

// NewClient 创建 Gemini 适配器
func NewClient(config *aiinterface.ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, aiinterface.NewError(aiinterface.KindConfigError, "Gemini API Key 不能为空")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
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
		Name:  "Google Gemini",
		Class: aiinterface.ClassMainstream,
		Capabilities: aiinterface.Capabilities{
			SupportsJSONMode:  true,
			SupportsImages:    true,
			SupportsStreaming: true,
			MaxContextTokens:  1000000,
			Modalities:        []string{"text", "image"},
		},
		Compliance: aiinterface.ComplianceMeta{
			AllowsAdultContent:  false,
			HasBuiltInFiltering: true,
		},
		DefaultModel:    "gemini-1.5-flash",
		AvailableModels: []string{"gemini-1.5-pro", "gemini-1.5-flash", "gemini-2.0-flash"},
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

// geminiRequest Gemini API 请求
type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"` // user, model
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

// geminiResponse Gemini API 响应
type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// geminiModelList 模型列表响应（健康探测用）
type geminiModelList struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
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

	geminiReq := c.convertRequest(req)

	var resp *geminiResponse
	var err error
	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.doRequest(ctx, model, geminiReq)
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

	if len(resp.Candidates) == 0 {
		return nil, aiinterface.NewError(aiinterface.KindAPIError, "Gemini 返回空响应")
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == "SAFETY" {
		return nil, aiinterface.NewError(aiinterface.KindContentFiltered, "Gemini 安全过滤拒绝了该请求")
	}

	var content string
	if len(candidate.Content.Parts) > 0 {
		content = candidate.Content.Parts[0].Text
	}

	usage := &aiinterface.Usage{
		PromptTokens:     resp.UsageMetadata.PromptTokenCount,
		CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      resp.UsageMetadata.TotalTokenCount,
	}
	if usage.TotalTokens == 0 {
		usage = aiinterface.EstimateUsage(req, content, model)
	}

	return &aiinterface.GenerateResponse{
		Content:    content,
		Model:      model,
		ProviderID: c.descriptor.ID,
		Usage:      usage,
	}, nil
}

// convertRequest 转换统一请求为 Gemini 格式。
// system 消息转为 systemInstruction，assistant 角色映射为 model。
func (c *Client) convertRequest(req *aiinterface.GenerateRequest) *geminiRequest {
	geminiReq := &geminiRequest{}

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			geminiReq.SystemInstruction = &geminiContent{
				Parts: []geminiPart{{Text: msg.Content}},
			}
		case "assistant":
			geminiReq.Contents = append(geminiReq.Contents, geminiContent{
				Role:  "model",
				Parts: []geminiPart{{Text: msg.Content}},
			})
		default:
			geminiReq.Contents = append(geminiReq.Contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: msg.Content}},
			})
		}
	}

	cfg := &generationConfig{
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxTokens,
	}
	if req.ResponseFormat == aiinterface.FormatJSON {
		cfg.ResponseMimeType = "application/json"
	}
	geminiReq.GenerationConfig = cfg

	return geminiReq
}

// doRequest 发送一次 generateContent 请求
func (c *Client) doRequest(ctx context.Context, model string, req *geminiRequest) (*geminiResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, aiinterface.WrapError(aiinterface.KindAPIError, "序列化请求失败", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, aiinterface.WrapError(aiinterface.KindAPIError, "创建 HTTP 请求失败", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, aiinterface.WrapError(aiinterface.KindTimeout, "Gemini API 调用失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, wrapHTTPError(resp.StatusCode, string(bodyBytes))
	}

	var geminiResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return nil, aiinterface.WrapError(aiinterface.KindAPIError, "解析响应失败", err)
	}
	return &geminiResp, nil
}

// CheckHealth 健康探测
func (c *Client) CheckHealth(ctx context.Context) *aiinterface.HealthStatus {
	start := time.Now()

	url := fmt.Sprintf("%s/models?key=%s", c.baseURL, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &aiinterface.HealthStatus{Healthy: false, ErrorMessage: err.Error()}
	}

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

	var list geminiModelList
	var available []string
	if err := json.NewDecoder(resp.Body).Decode(&list); err == nil {
		for _, m := range list.Models {
			available = append(available, strings.TrimPrefix(m.Name, "models/"))
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
	msg := fmt.Sprintf("Gemini HTTP %d: %s", status, body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return aiinterface.NewError(aiinterface.KindConfigError, msg)
	case status == http.StatusTooManyRequests:
		return &aiinterface.ClientError{Kind: aiinterface.KindRateLimit, Message: msg, RetryAfterSec: 60}
	default:
		return aiinterface.NewError(aiinterface.KindAPIError, msg)
	}
}
