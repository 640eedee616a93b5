package orchestrator

import (
	"context"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend/internal/audit"
	"backend/internal/consent"
	"backend/internal/logger"
	"backend/internal/ratelimit"
	"backend/internal/registry"
	"backend/pkg/aiinterface"
)

func TestMain(m *testing.M) {
	logger.Init("error", "console", "stderr")
	os.Exit(m.Run())
}

type stubAdapter struct {
	id          string
	allowsAdult bool
	generateErr error
	calls       int32
	lastRequest *aiinterface.GenerateRequest
}

func (s *stubAdapter) Generate(ctx context.Context, req *aiinterface.GenerateRequest, adultMode bool) (*aiinterface.GenerateResponse, error) {
	atomic.AddInt32(&s.calls, 1)
	s.lastRequest = req
	if s.generateErr != nil {
		return nil, s.generateErr
	}
	return &aiinterface.GenerateResponse{Content: "回答", Model: "stub", ProviderID: s.id}, nil
}

func (s *stubAdapter) CheckHealth(ctx context.Context) *aiinterface.HealthStatus {
	return &aiinterface.HealthStatus{Healthy: true}
}

func (s *stubAdapter) ValidateConfig() bool { return true }

func (s *stubAdapter) Descriptor() aiinterface.ProviderDescriptor {
	return aiinterface.ProviderDescriptor{
		ID:         s.id,
		Class:      aiinterface.ClassMainstream,
		Compliance: aiinterface.ComplianceMeta{AllowsAdultContent: s.allowsAdult},
	}
}

func newTestService(t *testing.T, adapters ...*stubAdapter) (*Service, *consent.Manager) {
	t.Helper()
	reg := registry.NewRegistry(registry.Options{
		Limiter: ratelimit.NewLimiter(nil),
		Trail:   audit.NewTrail(100),
	})
	for _, a := range adapters {
		require.NoError(t, reg.Register(a))
	}
	consentMgr := consent.NewManager()
	return NewService(reg, consentMgr), consentMgr
}

func plainInput(providerID, sessionID string, adultMode bool) *GenerateInput {
	return &GenerateInput{
		SessionID:          sessionID,
		ClientKey:          "client-1",
		ProviderID:         providerID,
		AdultModeRequested: adultMode,
		Request: &aiinterface.GenerateRequest{
			Messages: []aiinterface.Message{{Role: "user", Content: "你好"}},
		},
	}
}

func TestGenerateText_ConsentGate(t *testing.T) {
	t.Run("无同意记录时拒绝成人模式", func(t *testing.T) {
		adapter := &stubAdapter{id: "beta", allowsAdult: true}
		svc, _ := newTestService(t, adapter)

		_, err := svc.GenerateText(context.Background(), plainInput("beta", "sess-1", true))
		require.Error(t, err)
		assert.Equal(t, aiinterface.KindConsentInvalidOrExpired, aiinterface.KindOf(err))
		// 同意门禁在注册表之前，适配器不应被调用
		assert.EqualValues(t, 0, atomic.LoadInt32(&adapter.calls))
	})

	t.Run("有效同意记录放行成人模式", func(t *testing.T) {
		adapter := &stubAdapter{id: "beta", allowsAdult: true}
		svc, consentMgr := newTestService(t, adapter)

		_, err := consentMgr.RecordConsent("sess-1", "user-1", 25, true, "10.0.0.1", "test-agent")
		require.NoError(t, err)

		resp, err := svc.GenerateText(context.Background(), plainInput("beta", "sess-1", true))
		require.NoError(t, err)
		assert.Equal(t, "beta", resp.ProviderID)
	})

	t.Run("未请求成人模式时无需同意记录", func(t *testing.T) {
		adapter := &stubAdapter{id: "alpha"}
		svc, _ := newTestService(t, adapter)

		_, err := svc.GenerateText(context.Background(), plainInput("alpha", "sess-x", false))
		require.NoError(t, err)
	})
}

// 场景：主流提供商 alpha 不支持成人模式，自托管提供商 beta 支持。
func TestGenerateText_AlphaBetaScenario(t *testing.T) {
	alpha := &stubAdapter{id: "alpha", allowsAdult: false}
	beta := &stubAdapter{id: "beta", allowsAdult: true}
	svc, consentMgr := newTestService(t, alpha, beta)

	// 有同意记录的会话请求 alpha 的成人模式 → 提供商级拒绝
	_, err := consentMgr.RecordConsent("sess-ok", "user-1", 30, true, "10.0.0.1", "test-agent")
	require.NoError(t, err)

	_, err = svc.GenerateText(context.Background(), plainInput("alpha", "sess-ok", true))
	require.Error(t, err)
	assert.Equal(t, aiinterface.KindAdultModeNotSupported, aiinterface.KindOf(err))
	assert.EqualValues(t, 0, atomic.LoadInt32(&alpha.calls))

	// 无同意记录的会话请求 beta 的成人模式 → 门面级同意拒绝，而非限流
	_, err = svc.GenerateText(context.Background(), plainInput("beta", "sess-none", true))
	require.Error(t, err)
	assert.Equal(t, aiinterface.KindConsentInvalidOrExpired, aiinterface.KindOf(err))
}

func TestGenerateText_Fallback(t *testing.T) {
	failing := &stubAdapter{id: "a", generateErr: aiinterface.NewError(aiinterface.KindAPIError, "上游故障")}
	backup := &stubAdapter{id: "b"}
	svc, _ := newTestService(t, failing, backup)

	in := plainInput("a", "sess-1", false)
	in.FallbackProviderIDs = []string{"b"}

	resp, err := svc.GenerateText(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "b", resp.ProviderID)
}

func TestGenerateText_PreservesErrorKind(t *testing.T) {
	adapter := &stubAdapter{id: "a", generateErr: &aiinterface.ClientError{
		Kind:          aiinterface.KindRateLimit,
		Message:       "上限",
		RetryAfterSec: 60,
	}}
	svc, _ := newTestService(t, adapter)

	_, err := svc.GenerateText(context.Background(), plainInput("a", "sess-1", false))
	require.Error(t, err)
	assert.Equal(t, aiinterface.KindRateLimit, aiinterface.KindOf(err))

	var ce *aiinterface.ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 60, ce.RetryAfterSec)
}

func TestExplainText(t *testing.T) {
	adapter := &stubAdapter{id: "alpha"}
	svc, _ := newTestService(t, adapter)

	resp, err := svc.ExplainText(context.Background(), plainInput("alpha", "sess-1", false),
		"segfault at 0x0 in libfoo.so")
	require.NoError(t, err)
	assert.Equal(t, "回答", resp.Content)

	require.NotNil(t, adapter.lastRequest)
	require.Len(t, adapter.lastRequest.Messages, 2)
	assert.Equal(t, "system", adapter.lastRequest.Messages[0].Role)
	assert.Contains(t, adapter.lastRequest.Messages[1].Content, "segfault")
}

func TestSummarizeLog(t *testing.T) {
	adapter := &stubAdapter{id: "alpha"}
	svc, _ := newTestService(t, adapter)

	_, err := svc.SummarizeLog(context.Background(), plainInput("alpha", "sess-1", false),
		"2026-08-25T10:00:00Z ERROR connection refused")
	require.NoError(t, err)

	require.NotNil(t, adapter.lastRequest)
	assert.Contains(t, adapter.lastRequest.Messages[1].Content, "connection refused")
}
