package agent

import (
	"context"
	"time"

	"github.com/oct1/countdown-agent/internal/cache"
	"github.com/oct1/countdown-agent/internal/logging"
)

// InstallReport 记录安装阶段的预热结果；Err 非空表示预热失败但不阻止激活。
type InstallReport struct {
	Generation string   `json:"generation"`
	Assets     []string `json:"assets"`
	Err        error    `json:"-"`
}

// Install 打开当前代号并预热全部种子资源。失败只记录日志，不重试。
func (a *Agent) Install(ctx context.Context) InstallReport {
	started := time.Now()
	generation, seed := a.snapshot()
	report := InstallReport{Generation: generation, Assets: seed}

	fields := logging.LifecycleFields("install", generation)
	fields["assets"] = len(seed)

	store, err := a.storage.Open(ctx, generation)
	if err == nil {
		a.logger.WithFields(fields).Debug("cache_opened")
		reqs := make([]*cache.Request, len(seed))
		for i, path := range seed {
			reqs[i] = cache.NewRequest(a.ResolveURL(path))
		}
		err = cache.AddAll(ctx, store, a.fetcher, reqs)
	}

	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		report.Err = err
		a.logger.WithFields(fields).WithError(err).Error("install_failed")
		return report
	}
	a.logger.WithFields(fields).Info("install_complete")
	return report
}
