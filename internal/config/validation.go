package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	switch g.StorageBackend {
	case BackendFS, BackendLevelDB:
	default:
		return newFieldError("Global.StorageBackend", "仅支持 fs|leveldb")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	a := c.Agent
	if err := validateOrigin(a.Origin); err != nil {
		return fmt.Errorf("%s: %w", agentField("Origin"), err)
	}
	if a.CacheName == "" {
		return newFieldError(agentField("CacheName"), "不能为空")
	}
	if strings.ContainsAny(a.CacheName, `/\`) {
		return newFieldError(agentField("CacheName"), "不允许包含路径分隔符")
	}
	if len(a.SeedAssets) == 0 {
		return newFieldError(agentField("SeedAssets"), "至少需要一个资源")
	}
	for _, asset := range a.SeedAssets {
		if !strings.HasPrefix(asset, "/") {
			return newFieldError(agentField("SeedAssets"), fmt.Sprintf("资源路径必须以 / 开头: %s", asset))
		}
	}
	return nil
}

func validateOrigin(raw string) error {
	if raw == "" {
		return errors.New("缺少源站地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，源站: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("源站缺少 Host: %s", raw)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return fmt.Errorf("源站不应包含路径: %s", raw)
	}
	return nil
}
