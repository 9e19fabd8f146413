package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/oct1/countdown-agent/internal/cache"
	"github.com/oct1/countdown-agent/internal/logging"
)

// FetchResult 是拦截一次请求的结果。WriteBack 仅在响应被回写缓存时非空。
type FetchResult struct {
	Response   *cache.Response
	CacheHit   bool
	Generation string
	WriteBack  *Task
}

// Fetch 先查缓存，未命中再走网络；合格的网络响应在后台写入当前代号。
// 网络错误原样返回，不回退到任何旧缓存。
func (a *Agent) Fetch(ctx context.Context, req *cache.Request) (*FetchResult, error) {
	generation := a.CacheName()

	cached, err := a.storage.Match(ctx, req)
	switch {
	case err == nil:
		return &FetchResult{Response: cached, CacheHit: true, Generation: generation}, nil
	case errors.Is(err, cache.ErrNotFound):
	default:
		a.logger.WithFields(logging.FetchFields("", req.Method, req.URL, generation, false)).
			WithError(err).Warn("cache_match_failed")
	}

	resp, err := a.fetcher.Fetch(ctx, req.Clone())
	if err != nil {
		return nil, fmt.Errorf("network fetch %s: %w", req.URL, err)
	}

	result := &FetchResult{Response: resp, Generation: generation}
	if !shouldWriteBack(resp) {
		return result, nil
	}
	result.WriteBack = a.writeBack(ctx, generation, req.Clone(), resp.Clone())
	return result, nil
}

// shouldWriteBack 只接受状态码恰为 200 且投递类型为 basic 的响应。
func shouldWriteBack(resp *cache.Response) bool {
	return resp != nil && resp.Status == http.StatusOK && resp.Type == cache.TypeBasic
}

func (a *Agent) writeBack(ctx context.Context, generation string, req *cache.Request, resp *cache.Response) *Task {
	task := newTask()
	bg := context.WithoutCancel(ctx)

	a.pending.Add(1)
	go func() {
		defer a.pending.Done()

		store, err := a.storage.Open(bg, generation)
		if err == nil {
			err = store.Put(bg, req, resp)
		}
		if err != nil {
			a.logger.WithFields(logging.FetchFields("", req.Method, req.URL, generation, false)).
				WithError(err).Warn("cache_put_failed")
		}
		task.finish(err)
	}()
	return task
}
