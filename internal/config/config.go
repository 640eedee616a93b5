package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Log       LogConfig        `mapstructure:"log"`
	Providers []ProviderConfig `mapstructure:"providers"`
	RateLimit RateLimitConfig  `mapstructure:"rate_limit"`
	Consent   ConsentConfig    `mapstructure:"consent"`
	Health    HealthConfig     `mapstructure:"health"`
	Audit     AuditConfig      `mapstructure:"audit"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// ProviderConfig 单个提供商配置
type ProviderConfig struct {
	ID                 string `mapstructure:"id"`
	Type               string `mapstructure:"type"` // openai, anthropic, google, ollama, horde, deepseek, venice
	APIKey             string `mapstructure:"api_key"`
	APIKeyEnv          string `mapstructure:"api_key_env"` // 从环境变量读取 Key
	BaseURL            string `mapstructure:"base_url"`
	Model              string `mapstructure:"model"`
	Timeout            int    `mapstructure:"timeout"` // 秒
	MaxRetries         int    `mapstructure:"max_retries"`
	AllowsAdultContent bool   `mapstructure:"allows_adult_content"` // 仅自托管提供商可配置
	Disabled           bool   `mapstructure:"disabled"`
}

// ResolveAPIKey 解析 API Key：优先使用明文配置，其次环境变量
func (p *ProviderConfig) ResolveAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return strings.TrimSpace(os.Getenv(p.APIKeyEnv))
	}
	return ""
}

// BucketLimitConfig 单个流量桶的限额配置
type BucketLimitConfig struct {
	PerMinute int `mapstructure:"per_minute"`
	PerHour   int `mapstructure:"per_hour"`
	PerDay    int `mapstructure:"per_day"`
}

// ProviderLimitConfig 提供商级限流配置
type ProviderLimitConfig struct {
	Regular BucketLimitConfig `mapstructure:"regular"`
	Adult   BucketLimitConfig `mapstructure:"adult"`
}

// RateLimitConfig 限流配置，按提供商 ID 覆盖默认策略
type RateLimitConfig struct {
	Overrides map[string]ProviderLimitConfig `mapstructure:"overrides"`
}

// ConsentConfig 同意记录配置
type ConsentConfig struct {
	SweepInterval string `mapstructure:"sweep_interval"` // 如 "1h"
}

// HealthConfig 健康检查配置
type HealthConfig struct {
	CheckInterval string `mapstructure:"check_interval"` // 如 "5m"
	ProbeTimeout  string `mapstructure:"probe_timeout"`  // 如 "10s"
}

// AuditConfig 审计日志配置
type AuditConfig struct {
	Capacity int `mapstructure:"capacity"` // 保留的最近条目数
}

var globalConfig *Config

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()

	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}

	v.SetConfigType("yaml")

	// 环境变量优先级高于配置文件
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}
