package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oct1/countdown-agent/internal/cache"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值（可带小数）等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(seconds * float64(time.Second)))
		return nil
	}

	return fmt.Errorf("无法解析 Duration 字段: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// 缓存后端类型沿用 cache 包的定义，避免两处取值漂移。
const (
	BackendFS      = cache.BackendFS
	BackendLevelDB = cache.BackendLevelDB
)

// GlobalConfig 描述进程级运行参数：监听端口、日志与缓存存储。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StorageBackend  string   `mapstructure:"StorageBackend"`
	StoragePath     string   `mapstructure:"StoragePath"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// AgentConfig 是缓存代理本身的注入配置：源站、缓存代号与预热清单。
type AgentConfig struct {
	Origin       string   `mapstructure:"Origin"`
	CacheName    string   `mapstructure:"CacheName"`
	SeedAssets   []string `mapstructure:"SeedAssets"`
	SeedManifest string   `mapstructure:"SeedManifest"`
	SyncTag      string   `mapstructure:"SyncTag"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Agent  AgentConfig  `mapstructure:"Agent"`
}

// 默认值与页面部署保持一致。
const (
	DefaultCacheName = "oct-1-countdown-v1"
	DefaultSyncTag   = "countdown-sync"
)

// DefaultSeedAssets 返回安装阶段预热的资源列表副本。
func DefaultSeedAssets() []string {
	return []string{"/", "/index.html", "/manifest.json"}
}
