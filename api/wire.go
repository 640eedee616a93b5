package api

import (
	"context"
	"fmt"
	"time"

	auditpkg "backend/internal/audit"
	"backend/internal/ai"
	"backend/internal/config"
	"backend/internal/consent"
	"backend/internal/orchestrator"
	"backend/internal/ratelimit"
	"backend/internal/registry"
)

// AppContainer 进程级服务容器。
// 所有状态（限流、同意、审计、健康缓存）都挂在显式构造的实例上，
// 由启动流程持有，不使用包级单例。
type AppContainer struct {
	Config       *config.Config
	Limiter      *ratelimit.Limiter
	Trail        *auditpkg.Trail
	Registry     *registry.Registry
	Consent      *consent.Manager
	Orchestrator *orchestrator.Service

	stopLimiterCleanup func()
}

// BuildContainer 根据配置装配服务容器
func BuildContainer(cfg *config.Config) (*AppContainer, error) {
	limiter := ratelimit.NewLimiter(buildPolicies(cfg.RateLimit))

	capacity := cfg.Audit.Capacity
	if capacity <= 0 {
		capacity = auditpkg.DefaultCapacity
	}
	trail := auditpkg.NewTrail(capacity)

	reg := registry.NewRegistry(registry.Options{
		Limiter:      limiter,
		Trail:        trail,
		HealthTTL:    parseDuration(cfg.Health.CheckInterval, registry.DefaultHealthTTL),
		ProbeTimeout: parseDuration(cfg.Health.ProbeTimeout, registry.DefaultProbeTimeout),
	})

	adapters, err := ai.BuildAdapters(cfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("装配提供商适配器失败: %w", err)
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("未配置任何可用的提供商")
	}
	for _, adapter := range adapters {
		if err := reg.Register(adapter); err != nil {
			return nil, fmt.Errorf("注册提供商失败: %w", err)
		}
	}

	consentMgr := consent.NewManager()

	return &AppContainer{
		Config:       cfg,
		Limiter:      limiter,
		Trail:        trail,
		Registry:     reg,
		Consent:      consentMgr,
		Orchestrator: orchestrator.NewService(reg, consentMgr),
	}, nil
}

// StartBackground 启动后台任务：健康刷新、同意记录清扫、限流状态回收。
// ctx 取消后健康刷新与清扫退出；限流清理在 Stop 时停止。
func (a *AppContainer) StartBackground(ctx context.Context) {
	a.Registry.StartHealthRefresh(ctx, parseDuration(a.Config.Health.CheckInterval, registry.DefaultHealthTTL))
	a.Consent.StartSweeper(ctx, parseDuration(a.Config.Consent.SweepInterval, time.Hour))
	a.stopLimiterCleanup = a.Limiter.StartCleanup(10*time.Minute, 2*time.Hour)
}

// Stop 停止容器持有的后台资源
func (a *AppContainer) Stop() {
	if a.stopLimiterCleanup != nil {
		a.stopLimiterCleanup()
	}
}

// buildPolicies 把配置中的限流覆盖项转换为限流器策略表
func buildPolicies(cfg config.RateLimitConfig) map[string]ratelimit.Policy {
	policies := make(map[string]ratelimit.Policy, len(cfg.Overrides))
	for providerID, override := range cfg.Overrides {
		policies[providerID] = ratelimit.Policy{
			Regular: ratelimit.BucketPolicy{
				PerMinute: override.Regular.PerMinute,
				PerHour:   override.Regular.PerHour,
				PerDay:    override.Regular.PerDay,
			},
			Adult: ratelimit.BucketPolicy{
				PerMinute: override.Adult.PerMinute,
				PerHour:   override.Adult.PerHour,
				PerDay:    override.Adult.PerDay,
			},
		}
	}
	return policies
}

// parseDuration 解析配置中的时长字符串，解析失败时退回默认值
func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
