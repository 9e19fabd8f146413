package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/oct1/countdown-agent/internal/logging"
)

// UpgradeReport 汇总一次代号切换的安装与激活结果。
type UpgradeReport struct {
	Previous string         `json:"previous"`
	Install  InstallReport  `json:"install"`
	Activate ActivateReport `json:"activate"`
}

// Upgrade 切换到新的缓存代号与预热清单，随后依次执行 Install 与 Activate。
// seed 为空时沿用当前清单。
func (a *Agent) Upgrade(ctx context.Context, cacheName string, seed []string) (UpgradeReport, error) {
	cacheName = strings.TrimSpace(cacheName)
	if cacheName == "" {
		return UpgradeReport{}, errors.New("cache name is required")
	}

	a.mu.Lock()
	previous := a.cacheName
	a.cacheName = cacheName
	if len(seed) > 0 {
		a.seed = append([]string(nil), seed...)
	}
	a.mu.Unlock()

	fields := logging.LifecycleFields("upgrade", cacheName)
	fields["previous"] = previous
	a.logger.WithFields(fields).Info("cache_generation_changed")

	report := UpgradeReport{Previous: previous}
	report.Install = a.Install(ctx)
	report.Activate = a.Activate(ctx)
	return report, nil
}
