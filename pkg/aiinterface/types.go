package aiinterface

import "context"

// ProviderClass 提供商类别
type ProviderClass string

const (
	ClassMainstream    ProviderClass = "mainstream"     // 主流商业提供商（OpenAI、Anthropic 等）
	ClassAdultFriendly ProviderClass = "adult_friendly" // 内容政策宽松的提供商
	ClassSelfHosted    ProviderClass = "self_hosted"    // 自托管（Ollama 等）
)

// Message 消息结构
type Message struct {
	Role    string `json:"role"`    // system, user, assistant
	Content string `json:"content"` // 消息内容
}

// ResponseFormat 期望的响应格式
type ResponseFormat string

const (
	FormatText ResponseFormat = "text"
	FormatJSON ResponseFormat = "json"
)

// GenerateRequest 统一生成请求
type GenerateRequest struct {
	Messages       []Message      `json:"messages"`                  // 消息列表（按顺序）
	Temperature    float64        `json:"temperature,omitempty"`     // 温度参数（0-2）
	MaxTokens      int            `json:"max_tokens,omitempty"`      // 最大输出 Token 数
	ResponseFormat ResponseFormat `json:"response_format,omitempty"` // 期望响应格式
	Model          string         `json:"model,omitempty"`           // 指定模型，为空时使用提供商默认模型
}

// GenerateResponse 统一生成响应
type GenerateResponse struct {
	Content    string `json:"content"`         // 生成的内容
	Model      string `json:"model"`           // 实际使用的模型
	ProviderID string `json:"provider_id"`     // 实际产出响应的提供商（回退后可能与请求的不同）
	Usage      *Usage `json:"usage,omitempty"` // Token 使用情况（提供商未报告时为估算值）
}

// Usage Token 使用情况
type Usage struct {
	PromptTokens     int  `json:"prompt_tokens"`     // 输入 Token 数
	CompletionTokens int  `json:"completion_tokens"` // 输出 Token 数
	TotalTokens      int  `json:"total_tokens"`      // 总 Token 数
	Estimated        bool `json:"estimated"`         // 是否为估算值
}

// Capabilities 提供商能力元数据
type Capabilities struct {
	SupportsJSONMode  bool     `json:"supports_json_mode"`
	SupportsImages    bool     `json:"supports_images"`
	SupportsStreaming bool     `json:"supports_streaming"`
	MaxContextTokens  int      `json:"max_context_tokens"`
	Modalities        []string `json:"modalities"` // text, image
}

// ComplianceMeta 提供商合规元数据
type ComplianceMeta struct {
	AllowsAdultContent      bool `json:"allows_adult_content"`      // 是否允许成人内容
	RequiresExplicitConsent bool `json:"requires_explicit_consent"` // 访问前是否要求显式同意
	HasBuiltInFiltering     bool `json:"has_built_in_filtering"`    // 提供商侧是否有内置过滤
}

// ProviderDescriptor 提供商描述信息，适配器构造后不可变
type ProviderDescriptor struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Class           ProviderClass  `json:"class"`
	Capabilities    Capabilities   `json:"capabilities"`
	Compliance      ComplianceMeta `json:"compliance"`
	DefaultModel    string         `json:"default_model"`
	AvailableModels []string       `json:"available_models"`
}

// HealthStatus 健康探测结果
type HealthStatus struct {
	Healthy         bool     `json:"healthy"`
	LatencyMs       int64    `json:"latency_ms,omitempty"`
	ErrorMessage    string   `json:"error_message,omitempty"`
	AvailableModels []string `json:"available_models,omitempty"`
}

// ProviderAdapter AI 提供商统一适配器接口
//
// Generate 在 adultMode 为 true 且提供商不允许成人内容时，
// 必须在发起任何网络调用之前返回 KindAdultModeNotSupported。
type ProviderAdapter interface {
	// Generate 生成内容（非流式）
	Generate(ctx context.Context, req *GenerateRequest, adultMode bool) (*GenerateResponse, error)

	// CheckHealth 健康探测
	CheckHealth(ctx context.Context) *HealthStatus

	// ValidateConfig 校验适配器配置是否完整
	ValidateConfig() bool

	// Descriptor 返回提供商描述信息
	Descriptor() ProviderDescriptor
}

// ClientConfig 适配器配置
type ClientConfig struct {
	ProviderID string         // 提供商标识（注册到 Registry 的 key）
	APIKey     string         // API Key
	BaseURL    string         // 基础 URL
	Model      string         // 默认模型标识
	OrgID      string         // 组织 ID（OpenAI）
	MaxRetries int            // 最大重试次数
	Timeout    int            // 超时时间（秒）
	Extra      map[string]any // 额外配置
}
