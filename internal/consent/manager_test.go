package consent

import (
	"errors"
	"os"
	"testing"
	"time"

	"backend/internal/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init("error", "console", "stderr")
	os.Exit(m.Run())
}

func TestRecordConsent_Underage(t *testing.T) {
	m := NewManager()

	record, err := m.RecordConsent("sess-1", "user-1", 17, true, "10.0.0.1", "test-agent")
	if !errors.Is(err, ErrUnderage) {
		t.Fatalf("RecordConsent() error = %v, want ErrUnderage", err)
	}
	if record != nil {
		t.Error("年龄校验失败时不应产生同意记录")
	}
	if m.IsAdultModeAllowed("sess-1") {
		t.Error("年龄校验失败后 IsAdultModeAllowed 必须保持 false")
	}
}

func TestRecordConsent_JurisdictionBlocked(t *testing.T) {
	m := NewManager()

	_, err := m.RecordConsent("sess-1", "", 30, false, "10.0.0.1", "test-agent")
	if !errors.Is(err, ErrJurisdictionBlocked) {
		t.Fatalf("RecordConsent() error = %v, want ErrJurisdictionBlocked", err)
	}
}

func TestRecordConsent_CollectsAllValidationErrors(t *testing.T) {
	m := NewManager()

	_, err := m.RecordConsent("sess-1", "", 16, false, "10.0.0.1", "test-agent")
	if !errors.Is(err, ErrUnderage) || !errors.Is(err, ErrJurisdictionBlocked) {
		t.Fatalf("RecordConsent() 应同时返回所有校验错误, got %v", err)
	}
}

func TestConsentLifecycle(t *testing.T) {
	m := NewManager()
	base := time.Now()
	m.now = func() time.Time { return base }

	if _, err := m.RecordConsent("sess-1", "user-1", 25, true, "10.0.0.1", "test-agent"); err != nil {
		t.Fatalf("RecordConsent() error = %v", err)
	}

	if !m.IsAdultModeAllowed("sess-1") {
		t.Fatal("成功记录同意后应立即允许成人模式")
	}

	// 23 小时后仍然有效
	m.now = func() time.Time { return base.Add(23 * time.Hour) }
	if !m.IsAdultModeAllowed("sess-1") {
		t.Error("有效期内的同意记录不应失效")
	}

	// 超过 24 小时后惰性过期，无需显式撤销
	m.now = func() time.Time { return base.Add(24*time.Hour + time.Minute) }
	if m.IsAdultModeAllowed("sess-1") {
		t.Error("超过有效期后 IsAdultModeAllowed 必须返回 false")
	}
}

func TestRevokeConsent(t *testing.T) {
	m := NewManager()

	if _, err := m.RecordConsent("sess-1", "", 30, true, "10.0.0.1", "test-agent"); err != nil {
		t.Fatalf("RecordConsent() error = %v", err)
	}

	m.RevokeConsent("sess-1")
	if m.IsAdultModeAllowed("sess-1") {
		t.Error("撤销后不应再允许成人模式")
	}

	// 撤销不存在的会话也不报错
	m.RevokeConsent("sess-missing")
}

func TestGetStatus(t *testing.T) {
	m := NewManager()
	base := time.Now()
	m.now = func() time.Time { return base }

	if status := m.GetStatus("sess-1"); status.HasConsent {
		t.Error("未记录同意的会话状态应为无同意")
	}

	if _, err := m.RecordConsent("sess-1", "", 21, true, "10.0.0.1", "test-agent"); err != nil {
		t.Fatalf("RecordConsent() error = %v", err)
	}

	status := m.GetStatus("sess-1")
	if !status.HasConsent {
		t.Fatal("记录同意后状态应为有同意")
	}
	if status.ExpiresAt == nil || !status.ExpiresAt.Equal(base.Add(ValidityWindow)) {
		t.Errorf("GetStatus() ExpiresAt = %v, want %v", status.ExpiresAt, base.Add(ValidityWindow))
	}
}

func TestSweepRemovesExpiredRecords(t *testing.T) {
	m := NewManager()
	base := time.Now()
	m.now = func() time.Time { return base }

	_, _ = m.RecordConsent("stale", "", 30, true, "10.0.0.1", "agent")

	m.now = func() time.Time { return base.Add(25 * time.Hour) }
	_, _ = m.RecordConsent("fresh", "", 30, true, "10.0.0.2", "agent")

	if removed := m.sweep(); removed != 1 {
		t.Errorf("sweep() removed = %d, want 1", removed)
	}
	if m.IsAdultModeAllowed("stale") {
		t.Error("过期记录应被清扫")
	}
	if !m.IsAdultModeAllowed("fresh") {
		t.Error("有效记录不应被清扫")
	}
}

func TestSchemaVersionMismatchInvalidatesRecord(t *testing.T) {
	m := NewManager()

	record, err := m.RecordConsent("sess-1", "", 30, true, "10.0.0.1", "agent")
	if err != nil {
		t.Fatalf("RecordConsent() error = %v", err)
	}

	record.SchemaVersion = "2024-01"
	if m.IsAdultModeAllowed("sess-1") {
		t.Error("条款版本不匹配的记录应视为无效")
	}
}
