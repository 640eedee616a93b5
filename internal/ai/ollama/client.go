// Package ollama 实现 Ollama 自托管模型的提供商适配器。
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"backend/pkg/aiinterface"
)

// Client Ollama 适配器。
// 自托管实例不经过任何厂商侧内容过滤，
// 是否允许成人内容由部署方在配置中决定。
type Client struct {
	baseURL    string
	descriptor aiinterface.ProviderDescriptor
	httpClient *http.Client
}

// NewClient 创建 Ollama 适配器
func NewClient(config *aiinterface.ClientConfig) (*Client, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 120 // 本地推理可能较慢
	}

	allowsAdult := false
	if v, ok := config.Extra["allows_adult_content"].(bool); ok {
		allowsAdult = v
	}

	descriptor := aiinterface.ProviderDescriptor{
		ID:    config.ProviderID,
		Name:  "Ollama",
		Class: aiinterface.ClassSelfHosted,
		Capabilities: aiinterface.Capabilities{
			SupportsJSONMode:  true,
			SupportsStreaming: true,
			MaxContextTokens:  32768,
			Modalities:        []string{"text"},
		},
		Compliance: aiinterface.ComplianceMeta{
			AllowsAdultContent:      allowsAdult,
			RequiresExplicitConsent: allowsAdult,
			HasBuiltInFiltering:     false,
		},
		DefaultModel: config.Model,
	}
	if descriptor.DefaultModel == "" {
		descriptor.DefaultModel = "llama3.1"
	}

	return &Client{
		baseURL:    baseURL,
		descriptor: descriptor,
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}, nil
}

// ollamaRequest Ollama /api/chat 请求
type ollamaRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Stream   bool             `json:"stream"`
	Format   string           `json:"format,omitempty"`
	Options  map[string]any   `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaResponse Ollama /api/chat 响应
type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

// ollamaTags /api/tags 响应（健康探测用）
type ollamaTags struct {
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

	messages := make([]ollamaMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = ollamaMessage{Role: msg.Role, Content: msg.Content}
	}

	ollamaReq := ollamaRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options: map[string]any{
			"temperature": req.Temperature,
		},
	}
	if req.MaxTokens > 0 {
		ollamaReq.Options["num_predict"] = req.MaxTokens
	}
	if req.ResponseFormat == aiinterface.FormatJSON {
		ollamaReq.Format = "json"
	}

	body, err := json.Marshal(ollamaReq)
	if err != nil {
		return nil, aiinterface.WrapError(aiinterface.KindAPIError, "序列化请求失败", err)
	}

	url := fmt.Sprintf("%s/api/chat", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, aiinterface.WrapError(aiinterface.KindAPIError, "创建 HTTP 请求失败", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, aiinterface.WrapError(aiinterface.KindTimeout, "Ollama API 调用失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, aiinterface.NewError(aiinterface.KindAPIError,
			fmt.Sprintf("Ollama HTTP %d: %s", resp.StatusCode, string(bodyBytes)))
	}

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, aiinterface.WrapError(aiinterface.KindAPIError, "解析响应失败", err)
	}

	usage := &aiinterface.Usage{
		PromptTokens:     ollamaResp.PromptEvalCount,
		CompletionTokens: ollamaResp.EvalCount,
		TotalTokens:      ollamaResp.PromptEvalCount + ollamaResp.EvalCount,
	}
	if usage.TotalTokens == 0 {
		usage = aiinterface.EstimateUsage(req, ollamaResp.Message.Content, model)
	}

	return &aiinterface.GenerateResponse{
		Content:    ollamaResp.Message.Content,
		Model:      ollamaResp.Model,
		ProviderID: c.descriptor.ID,
		Usage:      usage,
	}, nil
}

// CheckHealth 通过 /api/tags 探测实例可用性并获取已安装模型
func (c *Client) CheckHealth(ctx context.Context) *aiinterface.HealthStatus {
	start := time.Now()

	url := fmt.Sprintf("%s/api/tags", c.baseURL)
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

	var tags ollamaTags
	var available []string
	if err := json.NewDecoder(resp.Body).Decode(&tags); err == nil {
		for _, m := range tags.Models {
			available = append(available, m.Name)
		}
	}

	return &aiinterface.HealthStatus{Healthy: true, LatencyMs: latency, AvailableModels: available}
}

// ValidateConfig 校验配置。Ollama 无需 API Key，只要求 baseURL 与标识。
func (c *Client) ValidateConfig() bool {
	return c.baseURL != "" && c.descriptor.ID != ""
}

// Descriptor 返回提供商描述信息
func (c *Client) Descriptor() aiinterface.ProviderDescriptor {
	return c.descriptor
}
