// Package ai 将提供商配置装配为适配器实例。
package ai

import (
	"fmt"

	"backend/internal/ai/anthropic"
	"backend/internal/ai/google"
	"backend/internal/ai/horde"
	"backend/internal/ai/ollama"
	"backend/internal/ai/openai"
	"backend/internal/config"
	"backend/pkg/aiinterface"
)

// BuildAdapters 根据配置构建适配器列表。
// 未知类型或配置不完整的提供商直接报错，启动时快速失败。
func BuildAdapters(configs []config.ProviderConfig) ([]aiinterface.ProviderAdapter, error) {
	adapters := make([]aiinterface.ProviderAdapter, 0, len(configs))

	for _, pc := range configs {
		if pc.Disabled {
			continue
		}
		if pc.ID == "" {
			return nil, fmt.Errorf("提供商配置缺少 id（type=%s）", pc.Type)
		}

		adapter, err := buildAdapter(pc)
		if err != nil {
			return nil, fmt.Errorf("构建提供商 %s 失败: %w", pc.ID, err)
		}
		adapters = append(adapters, adapter)
	}

	return adapters, nil
}

// buildAdapter 构建单个适配器
func buildAdapter(pc config.ProviderConfig) (aiinterface.ProviderAdapter, error) {
	clientConfig := &aiinterface.ClientConfig{
		ProviderID: pc.ID,
		APIKey:     pc.ResolveAPIKey(),
		BaseURL:    pc.BaseURL,
		Model:      pc.Model,
		Timeout:    pc.Timeout,
		MaxRetries: pc.MaxRetries,
	}

	switch pc.Type {
	case "openai":
		return openai.NewClient(clientConfig)
	case "anthropic":
		return anthropic.NewClient(clientConfig)
	case "google", "gemini":
		return google.NewClient(clientConfig)
	case "ollama":
		clientConfig.Extra = map[string]any{
			"allows_adult_content": pc.AllowsAdultContent,
		}
		return ollama.NewClient(clientConfig)
	case "horde":
		return horde.NewClient(clientConfig)
	case "deepseek":
		// DeepSeek 兼容 OpenAI 协议
		if clientConfig.BaseURL == "" {
			clientConfig.BaseURL = "https://api.deepseek.com/v1"
		}
		return openai.NewCompatibleClient(clientConfig, deepseekDescriptor(pc))
	case "venice":
		// Venice 兼容 OpenAI 协议，内容政策宽松
		if clientConfig.BaseURL == "" {
			clientConfig.BaseURL = "https://api.venice.ai/api/v1"
		}
		return openai.NewCompatibleClient(clientConfig, veniceDescriptor(pc))
	default:
		return nil, fmt.Errorf("未知的提供商类型: %s", pc.Type)
	}
}

func deepseekDescriptor(pc config.ProviderConfig) aiinterface.ProviderDescriptor {
	model := pc.Model
	if model == "" {
		model = "deepseek-chat"
	}
	return aiinterface.ProviderDescriptor{
		ID:    pc.ID,
		Name:  "DeepSeek",
		Class: aiinterface.ClassMainstream,
		Capabilities: aiinterface.Capabilities{
			SupportsJSONMode:  true,
			SupportsStreaming: true,
			MaxContextTokens:  64000,
			Modalities:        []string{"text"},
		},
		Compliance: aiinterface.ComplianceMeta{
			AllowsAdultContent:  false,
			HasBuiltInFiltering: true,
		},
		DefaultModel:    model,
		AvailableModels: []string{"deepseek-chat", "deepseek-reasoner"},
	}
}

func veniceDescriptor(pc config.ProviderConfig) aiinterface.ProviderDescriptor {
	model := pc.Model
	if model == "" {
		model = "venice-uncensored"
	}
	return aiinterface.ProviderDescriptor{
		ID:    pc.ID,
		Name:  "Venice",
		Class: aiinterface.ClassAdultFriendly,
		Capabilities: aiinterface.Capabilities{
			SupportsJSONMode:  true,
			SupportsImages:    true,
			SupportsStreaming: true,
			MaxContextTokens:  32768,
			Modalities:        []string{"text", "image"},
		},
		Compliance: aiinterface.ComplianceMeta{
			AllowsAdultContent:      true,
			RequiresExplicitConsent: true,
			HasBuiltInFiltering:     false,
		},
		DefaultModel:    model,
		AvailableModels: []string{"venice-uncensored", "llama-3.3-70b"},
	}
}
