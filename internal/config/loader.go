package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}
	return decode(v, filepath.Dir(path))
}

// decode 将 viper 中的键值映射为 Config，baseDir 用于解析相对的清单路径。
func decode(v *viper.Viper, baseDir string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyAgentDefaults(&cfg.Agent)

	if manifest := strings.TrimSpace(cfg.Agent.SeedManifest); manifest != "" {
		if !filepath.IsAbs(manifest) {
			manifest = filepath.Join(baseDir, manifest)
		}
		assets, err := LoadSeedManifest(manifest)
		if err != nil {
			return nil, err
		}
		cfg.Agent.SeedManifest = manifest
		cfg.Agent.SeedAssets = assets
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StorageBackend", BackendFS)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("Agent.CacheName", DefaultCacheName)
	v.SetDefault("Agent.SyncTag", DefaultSyncTag)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	g.StorageBackend = strings.ToLower(strings.TrimSpace(g.StorageBackend))
	if g.StorageBackend == "" {
		g.StorageBackend = BackendFS
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
}

func applyAgentDefaults(a *AgentConfig) {
	a.Origin = strings.TrimRight(strings.TrimSpace(a.Origin), "/")
	a.CacheName = strings.TrimSpace(a.CacheName)
	if a.CacheName == "" {
		a.CacheName = DefaultCacheName
	}
	if strings.TrimSpace(a.SyncTag) == "" {
		a.SyncTag = DefaultSyncTag
	}
	if len(a.SeedAssets) == 0 && strings.TrimSpace(a.SeedManifest) == "" {
		a.SeedAssets = DefaultSeedAssets()
	}
}

// decodeHooks 字符串交给 Duration.UnmarshalText，数值按秒换算。
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		durationDecodeHook(),
	)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case *Duration:
			return *v, nil
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
