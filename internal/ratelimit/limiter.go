// Package ratelimit 实现按提供商与客户端双桶滑动窗口限流。
package ratelimit

import (
	"sync"
	"time"
)

// Window 滑动窗口长度，超过该时长的时间戳在每次检查时被剪除
const Window = time.Minute

// Bucket 流量桶类别。常规与成人流量各自独立计数，互不占用额度。
type Bucket string

const (
	BucketRegular Bucket = "regular"
	BucketAdult   Bucket = "adult"
)

// BucketPolicy 单个流量桶的限额
type BucketPolicy struct {
	PerMinute int `mapstructure:"per_minute"` // 每分钟请求上限，0 表示不限制
	PerHour   int `mapstructure:"per_hour"`   // 每小时请求上限，0 表示不限制
	PerDay    int `mapstructure:"per_day"`    // 每天请求上限，0 表示不限制
}

// Policy 提供商限流策略
type Policy struct {
	Regular BucketPolicy `mapstructure:"regular"`
	Adult   BucketPolicy `mapstructure:"adult"`
}

// DefaultPolicy 未配置策略的提供商使用的默认限额
func DefaultPolicy() Policy {
	return Policy{
		Regular: BucketPolicy{PerMinute: 60, PerHour: 1000, PerDay: 10000},
		Adult:   BucketPolicy{PerMinute: 20, PerHour: 200, PerDay: 2000},
	}
}

// keyState 单个 (providerID, clientKey) 的计数状态
type keyState struct {
	regular []time.Time // 常规流量时间戳（升序）
	adult   []time.Time // 成人流量时间戳（升序）
	touched time.Time   // 最后访问时间，供清理协程判断
}

// Limiter 滑动窗口限流器。
// 剪除-比较-追加在同一临界区内完成，避免两个并发请求
// 同时通过上限检查（check-then-act 竞态）。
type Limiter struct {
	mu       sync.Mutex
	policies map[string]Policy // providerID -> policy
	states   map[string]*keyState
	now      func() time.Time
}

// NewLimiter 创建限流器
func NewLimiter(policies map[string]Policy) *Limiter {
	if policies == nil {
		policies = make(map[string]Policy)
	}
	return &Limiter{
		policies: policies,
		states:   make(map[string]*keyState),
		now:      time.Now,
	}
}

// SetPolicy 设置提供商限流策略
func (l *Limiter) SetPolicy(providerID string, policy Policy) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.policies[providerID] = policy
}

// Allow 检查并记账一次请求。
// 允许时在对应桶追加当前时间戳并返回 (true, 0)；
// 超限时返回 (false, retryAfter)，retryAfter 为窗口长度的提示值。
func (l *Limiter) Allow(providerID, clientKey string, bucket Bucket) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := providerID + "|" + clientKey

	state, ok := l.states[key]
	if !ok {
		state = &keyState{}
		l.states[key] = state
	}
	state.touched = now

	policy, ok := l.policies[providerID]
	if !ok {
		policy = DefaultPolicy()
	}

	var stamps *[]time.Time
	var bp BucketPolicy
	if bucket == BucketAdult {
		stamps = &state.adult
		bp = policy.Adult
	} else {
		stamps = &state.regular
		bp = policy.Regular
	}

	// 剪除整个天级窗口之外的时间戳（小时、分钟窗口是它的子集）
	*stamps = prune(*stamps, now.Add(-24*time.Hour))

	if bp.PerDay > 0 && len(*stamps) >= bp.PerDay {
		return false, 24 * time.Hour
	}
	if bp.PerHour > 0 && countSince(*stamps, now.Add(-time.Hour)) >= bp.PerHour {
		return false, time.Hour
	}
	if bp.PerMinute > 0 && countSince(*stamps, now.Add(-Window)) >= bp.PerMinute {
		return false, Window
	}

	*stamps = append(*stamps, now)
	return true, 0
}

// StartCleanup 启动清理协程，回收长时间未活动的计数状态。
// 返回用于停止协程的函数。
func (l *Limiter) StartCleanup(interval, idleTTL time.Duration) func() {
	stopCh := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.mu.Lock()
				cutoff := l.now().Add(-idleTTL)
				for key, state := range l.states {
					if state.touched.Before(cutoff) {
						delete(l.states, key)
					}
				}
				l.mu.Unlock()
			case <-stopCh:
				return
			}
		}
	}()

	return func() { close(stopCh) }
}

// prune 删除 cutoff 之前的时间戳，依赖时间戳升序
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(stamps) && !stamps[idx].After(cutoff) {
		idx++
	}
	return stamps[idx:]
}

// countSince 统计 cutoff 之后的时间戳数量
func countSince(stamps []time.Time, cutoff time.Time) int {
	count := 0
	for i := len(stamps) - 1; i >= 0; i-- {
		if stamps[i].After(cutoff) {
			count++
		} else {
			break
		}
	}
	return count
}
