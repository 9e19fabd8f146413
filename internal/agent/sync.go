package agent

import (
	"context"

	"github.com/oct1/countdown-agent/internal/logging"
)

// SyncResult 表示后台同步事件是否被处理。
type SyncResult struct {
	Tag     string `json:"tag"`
	Handled bool   `json:"handled"`
}

// Sync 处理后台同步事件。目前只记录匹配标签的事件，不做任何数据同步。
func (a *Agent) Sync(_ context.Context, tag string) SyncResult {
	result := SyncResult{Tag: tag}
	if a.syncTag == "" || tag != a.syncTag {
		return result
	}
	fields := logging.LifecycleFields("sync", a.CacheName())
	fields["tag"] = tag
	a.logger.WithFields(fields).Info("background_sync")
	result.Handled = true
	return result
}
