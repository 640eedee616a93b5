// Package horde 实现 AI Horde 社区推理网络的提供商适配器。
//
// Horde 是异步作业模式：提交生成作业后轮询状态接口直到完成。
// 轮询有界：超过最大次数后返回 KindTimeout，不会无限等待。
package horde

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

const (
	defaultBaseURL = "https://aihorde.net/api"

	// maxPollAttempts 轮询次数上限
	maxPollAttempts = 30

	// basePollDelay 初始轮询间隔，之后逐次递增
	basePollDelay = 2 * time.Second

	// maxPollDelay 轮询间隔上限
	maxPollDelay = 15 * time.Second
)

// Client AI Horde 适配器
type Client struct {
	apiKey     string
	baseURL    string
	descriptor aiinterface.ProviderDescriptor
	httpClient *http.Client

	pollAttempts int
	pollDelay    time.Duration
}

// NewClient 创建 Horde 适配器。
// 匿名访问使用 "0000000000" 作为 API Key（Horde 约定）。
func NewClient(config *aiinterface.ClientConfig) (*Client, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = "0000000000"
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30
	}

	descriptor := aiinterface.ProviderDescriptor{
		ID:    config.ProviderID,
		Name:  "AI Horde",
		Class: aiinterface.ClassAdultFriendly,
		Capabilities: aiinterface.Capabilities{
			SupportsStreaming: false,
			MaxContextTokens:  8192,
			Modalities:        []string{"text"},
		},
		Compliance: aiinterface.ComplianceMeta{
			AllowsAdultContent:      true,
			RequiresExplicitConsent: true,
			HasBuiltInFiltering:     false,
		},
		DefaultModel: config.Model,
	}
	if descriptor.DefaultModel == "" {
		descriptor.DefaultModel = "koboldcpp/LLaMA2-13B-Tiefighter"
	}

	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		descriptor: descriptor,
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		pollAttempts: maxPollAttempts,
		pollDelay:    basePollDelay,
	}, nil
}

// submitRequest 作业提交请求
type submitRequest struct {
	Prompt string       `json:"prompt"`
	Params submitParams `json:"params"`
	Models []string     `json:"models,omitempty"`
	NSFW   bool         `json:"nsfw"`
}

type submitParams struct {
	MaxLength  int     `json:"max_length,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// submitResponse 作业提交响应
type submitResponse struct {
	ID string `json:"id"`
}

// statusResponse 作业状态响应
type statusResponse struct {
	Done        bool `json:"done"`
	Faulted     bool `json:"faulted"`
	Generations []struct {
		Text  string `json:"text"`
		Model string `json:"model"`
	} `json:"generations"`
}

// heartbeatResponse /v2/status/heartbeat 响应
type heartbeatResponse struct {
	Message string `json:"message"`
}

// Generate 提交生成作业并轮询至完成
func (c *Client) Generate(ctx context.Context, req *aiinterface.GenerateRequest, adultMode bool) (*aiinterface.GenerateResponse, error) {
	if err := aiinterface.GuardAdultMode(c.descriptor, adultMode); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = c.descriptor.DefaultModel
	}

	jobID, err := c.submit(ctx, req, model, adultMode)
	if err != nil {
		return nil, err
	}

	text, usedModel, err := c.poll(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &aiinterface.GenerateResponse{
		Content:    text,
		Model:      usedModel,
		ProviderID: c.descriptor.ID,
		// Horde 不报告 Token 用量，始终估算
		Usage: aiinterface.EstimateUsage(req, text, model),
	}, nil
}

// submit 提交作业，返回作业 ID
func (c *Client) submit(ctx context.Context, req *aiinterface.GenerateRequest, model string, nsfw bool) (string, error) {
	submitReq := submitRequest{
		Prompt: flattenMessages(req.Messages),
		Params: submitParams{
			MaxLength:   req.MaxTokens,
			Temperature: req.Temperature,
		},
		Models: []string{model},
		NSFW:   nsfw,
	}

	body, err := json.Marshal(submitReq)
	if err != nil {
		return "", aiinterface.WrapError(aiinterface.KindAPIError, "序列化请求失败", err)
	}

	url := fmt.Sprintf("%s/v2/generate/text/async", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", aiinterface.WrapError(aiinterface.KindAPIError, "创建 HTTP 请求失败", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", aiinterface.WrapError(aiinterface.KindTimeout, "Horde 作业提交失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", wrapHTTPError(resp.StatusCode, string(bodyBytes))
	}

	var submitResp submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		return "", aiinterface.WrapError(aiinterface.KindAPIError, "解析提交响应失败", err)
	}
	if submitResp.ID == "" {
		return "", aiinterface.NewError(aiinterface.KindAPIError, "Horde 未返回作业 ID")
	}
	return submitResp.ID, nil
}

// poll 轮询作业状态直到完成或超出次数上限。
// 间隔逐次递增直至 maxPollDelay。
func (c *Client) poll(ctx context.Context, jobID string) (string, string, error) {
	delay := c.pollDelay

	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", "", aiinterface.WrapError(aiinterface.KindTimeout, "轮询被取消", ctx.Err())
		}

		status, err := c.fetchStatus(ctx, jobID)
		if err != nil {
			return "", "", err
		}

		if status.Faulted {
			return "", "", aiinterface.NewError(aiinterface.KindAPIError, "Horde 作业执行失败")
		}
		if status.Done {
			if len(status.Generations) == 0 {
				return "", "", aiinterface.NewError(aiinterface.KindAPIError, "Horde 作业完成但无生成结果")
			}
			return status.Generations[0].Text, status.Generations[0].Model, nil
		}

		delay += basePollDelay
		if delay > maxPollDelay {
			delay = maxPollDelay
		}
	}

	return "", "", aiinterface.NewError(aiinterface.KindTimeout,
		fmt.Sprintf("Horde 作业 %s 超过 %d 次轮询仍未完成", jobID, c.pollAttempts))
}

// fetchStatus 获取一次作业状态
func (c *Client) fetchStatus(ctx context.Context, jobID string) (*statusResponse, error) {
	url := fmt.Sprintf("%s/v2/generate/text/status/%s", c.baseURL, jobID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, aiinterface.WrapError(aiinterface.KindAPIError, "创建 HTTP 请求失败", err)
	}
	httpReq.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, aiinterface.WrapError(aiinterface.KindTimeout, "Horde 状态查询失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, wrapHTTPError(resp.StatusCode, string(bodyBytes))
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, aiinterface.WrapError(aiinterface.KindAPIError, "解析状态响应失败", err)
	}
	return &status, nil
}

// CheckHealth 通过 heartbeat 接口探测网络可用性
func (c *Client) CheckHealth(ctx context.Context) *aiinterface.HealthStatus {
	start := time.Now()

	url := fmt.Sprintf("%s/v2/status/heartbeat", c.baseURL)
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

	var hb heartbeatResponse
	_ = json.NewDecoder(resp.Body).Decode(&hb)

	return &aiinterface.HealthStatus{Healthy: true, LatencyMs: latency}
}

// ValidateConfig 校验配置
func (c *Client) ValidateConfig() bool {
	return c.apiKey != "" && c.baseURL != "" && c.descriptor.ID != ""
}

// Descriptor 返回提供商描述信息
func (c *Client) Descriptor() aiinterface.ProviderDescriptor {
	return c.descriptor
}

// flattenMessages 将对话消息拍平为 Horde 的单段 prompt
func flattenMessages(messages []aiinterface.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			sb.WriteString(msg.Content)
			sb.WriteString("\n\n")
		case "assistant":
			sb.WriteString("Assistant: ")
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		default:
			sb.WriteString("User: ")
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("Assistant:")
	return sb.String()
}

// wrapHTTPError 按状态码映射错误分类
func wrapHTTPError(status int, body string) *aiinterface.ClientError {
	msg := fmt.Sprintf("Horde HTTP %d: %s", status, body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return aiinterface.NewError(aiinterface.KindConfigError, msg)
	case status == http.StatusTooManyRequests:
		return &aiinterface.ClientError{Kind: aiinterface.KindRateLimit, Message: msg, RetryAfterSec: 60}
	default:
		return aiinterface.NewError(aiinterface.KindAPIError, msg)
	}
}
