package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend/internal/config"
	"backend/pkg/aiinterface"
)

func TestBuildAdapters(t *testing.T) {
	t.Run("按配置装配多种类型", func(t *testing.T) {
		adapters, err := BuildAdapters([]config.ProviderConfig{
			{ID: "openai-main", Type: "openai", APIKey: "sk-1"},
			{ID: "claude-main", Type: "anthropic", APIKey: "sk-2"},
			{ID: "gemini-main", Type: "gemini", APIKey: "sk-3"},
			{ID: "ollama-local", Type: "ollama", AllowsAdultContent: true},
			{ID: "horde-community", Type: "horde"},
		})
		require.NoError(t, err)
		require.Len(t, adapters, 5)

		byID := make(map[string]aiinterface.ProviderDescriptor)
		for _, a := range adapters {
			byID[a.Descriptor().ID] = a.Descriptor()
		}
		assert.Equal(t, aiinterface.ClassMainstream, byID["openai-main"].Class)
		assert.Equal(t, aiinterface.ClassSelfHosted, byID["ollama-local"].Class)
		assert.True(t, byID["ollama-local"].Compliance.AllowsAdultContent)
		assert.Equal(t, aiinterface.ClassAdultFriendly, byID["horde-community"].Class)
	})

	t.Run("跳过禁用的提供商", func(t *testing.T) {
		adapters, err := BuildAdapters([]config.ProviderConfig{
			{ID: "a", Type: "openai", APIKey: "sk"},
			{ID: "b", Type: "openai", APIKey: "sk", Disabled: true},
		})
		require.NoError(t, err)
		assert.Len(t, adapters, 1)
	})

	t.Run("未知类型报错", func(t *testing.T) {
		_, err := BuildAdapters([]config.ProviderConfig{
			{ID: "x", Type: "unknown-vendor"},
		})
		require.Error(t, err)
	})

	t.Run("缺少 ID 报错", func(t *testing.T) {
		_, err := BuildAdapters([]config.ProviderConfig{
			{Type: "openai", APIKey: "sk"},
		})
		require.Error(t, err)
	})

	t.Run("配置缺陷快速失败", func(t *testing.T) {
		// OpenAI 协议适配器要求 API Key
		_, err := BuildAdapters([]config.ProviderConfig{
			{ID: "openai-main", Type: "openai"},
		})
		require.Error(t, err)
	})
}

func TestBuildAdapters_CompatibleVendors(t *testing.T) {
	t.Run("deepseek 走 OpenAI 兼容协议", func(t *testing.T) {
		adapters, err := BuildAdapters([]config.ProviderConfig{
			{ID: "ds", Type: "deepseek", APIKey: "sk"},
		})
		require.NoError(t, err)
		d := adapters[0].Descriptor()
		assert.Equal(t, "DeepSeek", d.Name)
		assert.Equal(t, aiinterface.ClassMainstream, d.Class)
		assert.Equal(t, "deepseek-chat", d.DefaultModel)
		assert.False(t, d.Compliance.AllowsAdultContent)
	})

	t.Run("venice 标记为成人友好且要求显式同意", func(t *testing.T) {
		adapters, err := BuildAdapters([]config.ProviderConfig{
			{ID: "vn", Type: "venice", APIKey: "vk"},
		})
		require.NoError(t, err)
		d := adapters[0].Descriptor()
		assert.Equal(t, aiinterface.ClassAdultFriendly, d.Class)
		assert.True(t, d.Compliance.AllowsAdultContent)
		assert.True(t, d.Compliance.RequiresExplicitConsent)
	})

	t.Run("api_key_env 从环境变量解析", func(t *testing.T) {
		t.Setenv("TEST_VENDOR_KEY", "from-env")
		adapters, err := BuildAdapters([]config.ProviderConfig{
			{ID: "env-vendor", Type: "openai", APIKeyEnv: "TEST_VENDOR_KEY"},
		})
		require.NoError(t, err)
		assert.True(t, adapters[0].ValidateConfig())
	})
}
