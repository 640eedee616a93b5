// Package audit 记录已完成的生成调用，提供用量与运维可见性。
package audit

import (
	"sync"
	"time"

	"backend/internal/logger"

	"go.uber.org/zap"
)

// DefaultCapacity 默认保留的最近条目数
const DefaultCapacity = 1000

// Entry 审计条目，每次完成（成功或失败）的生成调用追加一条
type Entry struct {
	Timestamp  time.Time     `json:"timestamp"`
	ProviderID string        `json:"provider_id"`
	SessionID  string        `json:"session_id"`
	Operation  string        `json:"operation"`
	Success    bool          `json:"success"`
	Duration   time.Duration `json:"duration_ms"`
	Error      string        `json:"error,omitempty"`
}

// Trail 有界滚动审计日志。
// 这是进程内的滚动窗口而非持久存储：容量满时淘汰最旧条目。
type Trail struct {
	mu       sync.Mutex
	entries  []Entry
	start    int // 环形缓冲起始下标
	count    int
	capacity int
}

// NewTrail 创建审计日志，capacity <= 0 时使用默认容量
func NewTrail(capacity int) *Trail {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Trail{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Append 追加一条审计条目，容量满时覆盖最旧的一条
func (t *Trail) Append(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	t.mu.Lock()
	idx := (t.start + t.count) % t.capacity
	t.entries[idx] = entry
	if t.count < t.capacity {
		t.count++
	} else {
		t.start = (t.start + 1) % t.capacity
	}
	t.mu.Unlock()

	if !entry.Success {
		logger.Warn("生成调用失败",
			zap.String("provider_id", entry.ProviderID),
			zap.String("operation", entry.Operation),
			zap.String("error", entry.Error),
			zap.Duration("duration", entry.Duration),
		)
	}
}

// Recent 返回最近 n 条审计条目（新→旧）。
// n <= 0 或超出当前条目数时返回全部。
func (t *Trail) Recent(n int) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n <= 0 || n > t.count {
		n = t.count
	}

	result := make([]Entry, n)
	for i := 0; i < n; i++ {
		idx := (t.start + t.count - 1 - i + t.capacity) % t.capacity
		result[i] = t.entries[idx]
	}
	return result
}

// Len 返回当前保留的条目数
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}
