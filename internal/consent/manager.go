// Package consent 管理受限内容访问的会话级同意记录。
package consent

import (
	"context"
	"errors"
	"sync"
	"time"

	"backend/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// CurrentSchemaVersion 当前同意条款版本，版本不匹配的记录视为无效
	CurrentSchemaVersion = "2025-03"

	// ValidityWindow 同意记录有效期
	ValidityWindow = 24 * time.Hour

	// MinimumAge 允许记录同意的最低年龄
	MinimumAge = 18
)

var (
	ErrUnderage            = errors.New("用户年龄不满 18 周岁")
	ErrJurisdictionBlocked = errors.New("所在司法辖区不允许访问受限内容")
	ErrSessionRequired     = errors.New("缺少会话标识")
)

// Record 同意记录
type Record struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	ClientAddress string    `json:"client_address"`
	ClientAgent   string    `json:"client_agent"`
	SchemaVersion string    `json:"schema_version"`
	Acknowledged  bool      `json:"acknowledged"`
}

// Status 会话同意状态查询结果
type Status struct {
	HasConsent bool       `json:"has_consent"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Manager 同意记录管理器。
// 记录仅保存在进程内存中，生命周期与进程一致；
// 后台清扫只负责回收过期记录的内存，有效性判断始终走惰性过期检查。
type Manager struct {
	mu      sync.RWMutex
	records map[string]*Record // sessionID -> record
	now     func() time.Time   // 便于测试注入模拟时钟
}

// NewManager 创建同意记录管理器
func NewManager() *Manager {
	return &Manager{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// RecordConsent 记录一次同意。
// 年龄或辖区校验失败时直接拒绝，不产生任何记录或副作用，
// 返回的错误列出所有未通过的校验项。
func (m *Manager) RecordConsent(sessionID, userID string, age int, jurisdictionOK bool, clientAddr, clientAgent string) (*Record, error) {
	if sessionID == "" {
		return nil, ErrSessionRequired
	}

	var errs []error
	if age < MinimumAge {
		errs = append(errs, ErrUnderage)
	}
	if !jurisdictionOK {
		errs = append(errs, ErrJurisdictionBlocked)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	record := &Record{
		ID:            uuid.New().String(),
		SessionID:     sessionID,
		UserID:        userID,
		Timestamp:     m.now(),
		ClientAddress: clientAddr,
		ClientAgent:   clientAgent,
		SchemaVersion: CurrentSchemaVersion,
		Acknowledged:  true,
	}

	m.mu.Lock()
	m.records[sessionID] = record
	m.mu.Unlock()

	logger.Info("记录受限内容访问同意",
		zap.String("session_id", sessionID),
		zap.String("client_addr", clientAddr),
	)

	return record, nil
}

// IsAdultModeAllowed 判断会话当前是否允许成人模式。
// 这是唯一的权威判断入口：自行执行惰性过期检查，
// 不依赖后台清扫（清扫只提供最终的内存回收）。
func (m *Manager) IsAdultModeAllowed(sessionID string) bool {
	m.mu.RLock()
	record, ok := m.records[sessionID]
	m.mu.RUnlock()

	if !ok {
		return false
	}
	return m.isValid(record)
}

// GetStatus 查询会话的同意状态
func (m *Manager) GetStatus(sessionID string) Status {
	m.mu.RLock()
	record, ok := m.records[sessionID]
	m.mu.RUnlock()

	if !ok || !m.isValid(record) {
		return Status{HasConsent: false}
	}

	expires := record.Timestamp.Add(ValidityWindow)
	return Status{HasConsent: true, ExpiresAt: &expires}
}

// RevokeConsent 撤销会话的同意记录，记录不存在时也视为成功
func (m *Manager) RevokeConsent(sessionID string) {
	m.mu.Lock()
	_, existed := m.records[sessionID]
	delete(m.records, sessionID)
	m.mu.Unlock()

	if existed {
		logger.Info("撤销受限内容访问同意", zap.String("session_id", sessionID))
	}
}

// StartSweeper 启动后台清扫协程，定期删除过期记录以约束内存。
// ctx 取消后协程退出。
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				removed := m.sweep()
				if removed > 0 {
					logger.Debug("清理过期同意记录", zap.Int("removed", removed))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// sweep 删除过期记录，返回删除数量
func (m *Manager) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for sessionID, record := range m.records {
		if !m.isValid(record) {
			delete(m.records, sessionID)
			removed++
		}
	}
	return removed
}

// isValid 判断记录在当前时刻是否有效
func (m *Manager) isValid(record *Record) bool {
	if record == nil || !record.Acknowledged {
		return false
	}
	if record.SchemaVersion != CurrentSchemaVersion {
		return false
	}
	return m.now().Sub(record.Timestamp) < ValidityWindow
}
