package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oct1/countdown-agent/internal/logging"
)

// ActivateReport 记录每个旧代号的清理结果，替代未处理的 Promise 拒绝。
type ActivateReport struct {
	Current  string           `json:"current"`
	Deleted  []string         `json:"deleted"`
	Failed   map[string]error `json:"-"`
	KeysErr  error            `json:"-"`
	Elapsed  time.Duration    `json:"-"`
	Examined int              `json:"examined"`
}

// Err 汇总枚举与删除阶段的全部错误。
func (r ActivateReport) Err() error {
	errs := make([]error, 0, len(r.Failed)+1)
	if r.KeysErr != nil {
		errs = append(errs, fmt.Errorf("list caches: %w", r.KeysErr))
	}
	names := make([]string, 0, len(r.Failed))
	for name := range r.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		errs = append(errs, fmt.Errorf("delete %s: %w", name, r.Failed[name]))
	}
	return errors.Join(errs...)
}

// Activate 并发删除除当前代号外的所有缓存代号，等待全部删除结束后返回。
// 删除失败不会中断其它删除，只记录在报告与日志中。
func (a *Agent) Activate(ctx context.Context) ActivateReport {
	started := time.Now()
	current := a.CacheName()
	report := ActivateReport{Current: current, Failed: map[string]error{}}

	names, err := a.storage.Keys(ctx)
	if err != nil {
		report.KeysErr = err
		a.logger.WithFields(logging.LifecycleFields("activate", current)).WithError(err).Error("activate_failed")
		return report
	}
	report.Examined = len(names)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, name := range names {
		if name == current {
			continue
		}
		name := name
		g.Go(func() error {
			fields := logging.LifecycleFields("activate", current)
			fields["stale_cache"] = name
			a.logger.WithFields(fields).Info("deleting_old_cache")

			deleted, err := a.storage.Delete(ctx, name)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed[name] = err
				a.logger.WithFields(fields).WithError(err).Warn("delete_cache_failed")
			case deleted:
				report.Deleted = append(report.Deleted, name)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Deleted)
	report.Elapsed = time.Since(started)

	fields := logging.LifecycleFields("activate", current)
	fields["deleted"] = len(report.Deleted)
	fields["failed"] = len(report.Failed)
	fields["elapsed_ms"] = report.Elapsed.Milliseconds()
	a.logger.WithFields(fields).Info("activate_complete")
	return report
}
