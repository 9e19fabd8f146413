package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadSeedManifest 读取 YAML 形式的预热清单，文件内容为路径序列：
//
//	- /
//	- /index.html
//	- /manifest.json
func LoadSeedManifest(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取预热清单失败: %w", err)
	}

	var entries []string
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("解析预热清单失败: %w", err)
	}

	assets := make([]string, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		assets = append(assets, entry)
	}
	if len(assets) == 0 {
		return nil, newFieldError(agentField("SeedManifest"), "清单为空")
	}
	return assets, nil
}
