// Package registry 是提供商编排的入口：
// 持有全部适配器，串联成人模式门禁、内容筛查、限流、调用与审计。
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"backend/internal/audit"
	"backend/internal/compliance"
	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/ratelimit"
	"backend/pkg/aiinterface"
)

const (
	// DefaultHealthTTL 健康状态缓存有效期
	DefaultHealthTTL = 5 * time.Minute

	// DefaultProbeTimeout 单次健康探测超时
	DefaultProbeTimeout = 10 * time.Second
)

// Options Registry 构造参数
type Options struct {
	Limiter      *ratelimit.Limiter
	Trail        *audit.Trail
	HealthTTL    time.Duration
	ProbeTimeout time.Duration
}

// Registry 提供商注册表。
// 显式构造、依赖注入，不做包级单例，便于测试隔离。
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]aiinterface.ProviderAdapter

	limiter *ratelimit.Limiter
	trail   *audit.Trail
	tracer  trace.Tracer

	healthMu     sync.Mutex
	health       map[string]*healthEntry
	healthTTL    time.Duration
	probeTimeout time.Duration

	now func() time.Time
}

// NewRegistry 创建注册表
func NewRegistry(opts Options) *Registry {
	healthTTL := opts.HealthTTL
	if healthTTL == 0 {
		healthTTL = DefaultHealthTTL
	}
	probeTimeout := opts.ProbeTimeout
	if probeTimeout == 0 {
		probeTimeout = DefaultProbeTimeout
	}

	return &Registry{
		adapters:     make(map[string]aiinterface.ProviderAdapter),
		limiter:      opts.Limiter,
		trail:        opts.Trail,
		tracer:       otel.Tracer("backend/internal/registry"),
		health:       make(map[string]*healthEntry),
		healthTTL:    healthTTL,
		probeTimeout: probeTimeout,
		now:          time.Now,
	}
}

// Register 注册一个适配器。ID 重复或配置无效直接报错。
func (r *Registry) Register(adapter aiinterface.ProviderAdapter) error {
	descriptor := adapter.Descriptor()
	if descriptor.ID == "" {
		return aiinterface.NewError(aiinterface.KindConfigError, "提供商缺少 ID")
	}
	if !adapter.ValidateConfig() {
		return aiinterface.NewError(aiinterface.KindConfigError,
			fmt.Sprintf("提供商 %s 配置校验未通过", descriptor.ID))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[descriptor.ID]; exists {
		return aiinterface.NewError(aiinterface.KindConfigError,
			fmt.Sprintf("提供商 %s 已注册", descriptor.ID))
	}
	r.adapters[descriptor.ID] = adapter

	logger.Get().Info("提供商已注册",
		zap.String("provider", descriptor.ID),
		zap.String("class", string(descriptor.Class)),
		zap.Bool("allows_adult", descriptor.Compliance.AllowsAdultContent))
	return nil
}

// Get 按 ID 获取适配器
func (r *Registry) Get(providerID string) (aiinterface.ProviderAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[providerID]
	if !ok {
		return nil, aiinterface.NewError(aiinterface.KindProviderNotFound,
			fmt.Sprintf("提供商 %s 未注册", providerID))
	}
	return adapter, nil
}

// List 返回全部提供商描述，按 ID 排序
func (r *Registry) List() []aiinterface.ProviderDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]aiinterface.ProviderDescriptor, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		descriptors = append(descriptors, adapter.Descriptor())
	}
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].ID < descriptors[j].ID
	})
	return descriptors
}

// Generate 执行单提供商生成。
// 顺序：解析提供商 → 成人模式门禁 → 内容筛查 → 限流记账 → 调用 → 审计。
// 筛查拒绝发生在限流记账之前，不消耗该提供商的限额，也绝不触达厂商。
func (r *Registry) Generate(ctx context.Context, providerID, clientKey, sessionID string,
	req *aiinterface.GenerateRequest, adultMode bool) (*aiinterface.GenerateResponse, error) {

	ctx, span := r.tracer.Start(ctx, "Registry.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider", providerID),
		attribute.Bool("adult_mode", adultMode),
	)

	adapter, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}

	// 成人模式门禁：在任何限流记账与网络调用之前失败
	if err := aiinterface.GuardAdultMode(adapter.Descriptor(), adultMode); err != nil {
		r.record(providerID, sessionID, "generate", false, 0, err)
		return nil, err
	}

	if err := r.screenMessages(ctx, req, adultMode); err != nil {
		r.record(providerID, sessionID, "generate", false, 0, err)
		return nil, err
	}

	bucket := ratelimit.BucketRegular
	if adultMode {
		bucket = ratelimit.BucketAdult
	}
	if allowed, retryAfter := r.limiter.Allow(providerID, clientKey, bucket); !allowed {
		metrics.RateLimitRejectionsTotal.WithLabelValues(providerID, string(bucket)).Inc()
		limitErr := &aiinterface.ClientError{
			Kind:          aiinterface.KindRateLimit,
			Message:       fmt.Sprintf("提供商 %s 的 %s 流量桶已达上限", providerID, bucket),
			RetryAfterSec: int(retryAfter.Seconds()),
		}
		r.record(providerID, sessionID, "generate", false, 0, limitErr)
		return nil, limitErr
	}

	start := r.now()
	resp, err := adapter.Generate(ctx, req, adultMode)
	duration := r.now().Sub(start)

	metrics.GenerationDuration.WithLabelValues(providerID).Observe(duration.Seconds())
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues(providerID, "error").Inc()
		r.record(providerID, sessionID, "generate", false, duration, err)
		return nil, err
	}

	metrics.GenerationsTotal.WithLabelValues(providerID, "success").Inc()
	if resp.Usage != nil {
		metrics.GenerationTokens.WithLabelValues(providerID, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.GenerationTokens.WithLabelValues(providerID, "completion").Add(float64(resp.Usage.CompletionTokens))
	}
	r.record(providerID, sessionID, "generate", true, duration, nil)
	return resp, nil
}

// GenerateWithFallback 按顺序尝试首选与候补提供商。
// 可重试错误（限流、厂商故障、超时、厂商侧过滤）在非末位候选上继续链路；
// 配置错误与策略性拒绝（非法内容、需要成人模式、成人模式不支持）立即中止，
// 静默切换提供商会掩盖这类问题。末位候选的错误原样返回。
func (r *Registry) GenerateWithFallback(ctx context.Context, preferredID string, fallbackIDs []string,
	clientKey, sessionID string, req *aiinterface.GenerateRequest, adultMode bool) (*aiinterface.GenerateResponse, error) {

	ctx, span := r.tracer.Start(ctx, "Registry.GenerateWithFallback")
	defer span.End()

	candidates := append([]string{preferredID}, fallbackIDs...)
	span.SetAttributes(attribute.StringSlice("candidates", candidates))

	var lastErr error
	for i, candidate := range candidates {
		resp, err := r.Generate(ctx, candidate, clientKey, sessionID, req, adultMode)
		if err == nil {
			metrics.FallbackAttemptsTotal.WithLabelValues(candidate, "success").Inc()
			return resp, nil
		}

		lastErr = err
		isLast := i == len(candidates)-1

		if ce, ok := asClientError(err); ok && ce.IsRetryable() && !isLast {
			metrics.FallbackAttemptsTotal.WithLabelValues(candidate, "retryable").Inc()
			logger.FromContext(ctx).Warn("提供商失败，继续故障转移链",
				zap.String("provider", candidate),
				zap.String("kind", string(ce.Kind)),
				zap.Error(err))
			continue
		}

		metrics.FallbackAttemptsTotal.WithLabelValues(candidate, "aborted").Inc()
		return nil, err
	}
	return nil, lastErr
}

// screenMessages 对请求中的全部消息做内容筛查。
// 非法内容无条件拦截；非成人模式下额外做成人内容筛查；
// 极端内容只产生警告，记录日志后放行。
func (r *Registry) screenMessages(ctx context.Context, req *aiinterface.GenerateRequest, adultMode bool) error {
	for _, msg := range req.Messages {
		if result := compliance.Screen(msg.Content); !result.IsCompliant {
			metrics.ComplianceRejectionsTotal.WithLabelValues("illegal").Inc()
			logger.FromContext(ctx).Warn("内容筛查拦截非法内容",
				zap.Strings("violations", result.Violations))
			return aiinterface.NewError(aiinterface.KindIllegalContent,
				fmt.Sprintf("请求包含非法内容: %s", strings.Join(result.Violations, ", ")))
		}

		if !adultMode {
			if result := compliance.ScreenAdult(msg.Content); !result.IsCompliant {
				metrics.ComplianceRejectionsTotal.WithLabelValues("adult_without_mode").Inc()
				return aiinterface.NewError(aiinterface.KindContentRequiresAdult,
					fmt.Sprintf("内容需要成人模式: %s", strings.Join(result.Violations, ", ")))
			}
		}

		if result := compliance.ScreenExtreme(msg.Content); len(result.Warnings) > 0 {
			logger.FromContext(ctx).Warn("内容筛查产生极端内容警告",
				zap.Strings("warnings", result.Warnings))
		}
	}
	return nil
}

// record 追加一条审计记录
func (r *Registry) record(providerID, sessionID, operation string, success bool, duration time.Duration, err error) {
	if r.trail == nil {
		return
	}
	entry := audit.Entry{
		Timestamp:  r.now(),
		ProviderID: providerID,
		SessionID:  sessionID,
		Operation:  operation,
		Success:    success,
		Duration:   duration,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	r.trail.Append(entry)
}

func asClientError(err error) (*aiinterface.ClientError, bool) {
	var ce *aiinterface.ClientError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
