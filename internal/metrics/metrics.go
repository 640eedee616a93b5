package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigateway_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aigateway_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 提供商调度指标
var (
	// GenerationsTotal 生成请求总数
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigateway_generations_total",
			Help: "按提供商统计的生成请求总数",
		},
		[]string{"provider", "status"},
	)

	// GenerationDuration 生成耗时（秒）
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aigateway_generation_duration_seconds",
			Help:    "生成请求耗时分布",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	// GenerationTokens Token 用量
	GenerationTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigateway_generation_tokens_total",
			Help: "按提供商与方向统计的 Token 用量",
		},
		[]string{"provider", "direction"}, // direction: prompt, completion
	)

	// FallbackAttemptsTotal 故障转移尝试次数
	FallbackAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigateway_fallback_attempts_total",
			Help: "故障转移链中的提供商尝试次数",
		},
		[]string{"provider", "outcome"}, // outcome: success, retryable, aborted
	)
)

// 合规与限流指标
var (
	// ComplianceRejectionsTotal 内容筛查拦截总数
	ComplianceRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigateway_compliance_rejections_total",
			Help: "按拦截类别统计的内容筛查拦截数",
		},
		[]string{"category"}, // illegal, adult_without_mode
	)

	// RateLimitRejectionsTotal 限流拒绝总数
	RateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigateway_rate_limit_rejections_total",
			Help: "按提供商与流量桶统计的限流拒绝数",
		},
		[]string{"provider", "bucket"},
	)

	// ConsentOperationsTotal 同意记录操作总数
	ConsentOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigateway_consent_operations_total",
			Help: "按操作与结果统计的同意记录操作数",
		},
		[]string{"operation", "result"},
	)
)

// 健康状态指标
var (
	// ProviderHealthy 提供商健康状态（1 健康 / 0 不健康）
	ProviderHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aigateway_provider_healthy",
			Help: "提供商健康状态",
		},
		[]string{"provider"},
	)

	// ProviderHealthLatency 健康探测延迟（毫秒）
	ProviderHealthLatency = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aigateway_provider_health_latency_ms",
			Help: "最近一次健康探测延迟",
		},
		[]string{"provider"},
	)
)
