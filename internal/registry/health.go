package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/pkg/aiinterface"
)

// healthEntry 单个提供商的健康状态缓存。
// entry 级互斥保证同一缓存周期内只有一次真实探测，
// 并发调用方在锁上等待后直接读到新鲜结果。
type healthEntry struct {
	mu        sync.Mutex
	status    *aiinterface.HealthStatus
	checkedAt time.Time
}

// ProviderStatus 返回提供商健康状态。
// 缓存期内返回缓存值；过期则探测一次并刷新。
func (r *Registry) ProviderStatus(ctx context.Context, providerID string) (*aiinterface.HealthStatus, error) {
	adapter, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}
	return r.refreshIfStale(ctx, providerID, adapter, false), nil
}

// AllStatuses 返回全部提供商的健康状态（按需探测）
func (r *Registry) AllStatuses(ctx context.Context) map[string]*aiinterface.HealthStatus {
	statuses := make(map[string]*aiinterface.HealthStatus)
	for _, descriptor := range r.List() {
		adapter, err := r.Get(descriptor.ID)
		if err != nil {
			continue
		}
		statuses[descriptor.ID] = r.refreshIfStale(ctx, descriptor.ID, adapter, false)
	}
	return statuses
}

// StartHealthRefresh 启动后台健康刷新任务。
// 后台刷新与按需探测写同一份缓存，共用同一套原子更新规则。
func (r *Registry) StartHealthRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHealthTTL
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				for _, descriptor := range r.List() {
					adapter, err := r.Get(descriptor.ID)
					if err != nil {
						continue
					}
					r.refreshIfStale(ctx, descriptor.ID, adapter, true)
				}
			case <-ctx.Done():
				logger.Get().Info("健康刷新任务已停止")
				return
			}
		}
	}()
}

// refreshIfStale 返回缓存的健康状态，必要时探测刷新。
// force 为 true 时无视缓存有效期强制探测（后台刷新路径）。
func (r *Registry) refreshIfStale(ctx context.Context, providerID string,
	adapter aiinterface.ProviderAdapter, force bool) *aiinterface.HealthStatus {

	entry := r.healthEntryFor(providerID)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if !force && entry.status != nil && r.now().Sub(entry.checkedAt) < r.healthTTL {
		return entry.status
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	status := adapter.CheckHealth(probeCtx)
	if status == nil {
		status = &aiinterface.HealthStatus{Healthy: false, ErrorMessage: "探测未返回结果"}
	}
	entry.status = status
	entry.checkedAt = r.now()

	healthyValue := 0.0
	if status.Healthy {
		healthyValue = 1.0
	}
	metrics.ProviderHealthy.WithLabelValues(providerID).Set(healthyValue)
	metrics.ProviderHealthLatency.WithLabelValues(providerID).Set(float64(status.LatencyMs))

	if !status.Healthy {
		logger.FromContext(ctx).Warn("提供商健康探测失败",
			zap.String("provider", providerID),
			zap.String("error", status.ErrorMessage))
	}
	return status
}

// healthEntryFor 获取（或惰性创建）提供商的缓存条目
func (r *Registry) healthEntryFor(providerID string) *healthEntry {
	r.healthMu.Lock()
	defer r.healthMu.Unlock()

	entry, ok := r.health[providerID]
	if !ok {
		entry = &healthEntry{}
		r.health[providerID] = entry
	}
	return entry
}
