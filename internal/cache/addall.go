package cache

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ErrBadResponse 表示批量预热时某个资源返回了非 2xx 状态。
var ErrBadResponse = errors.New("bad response status")

// Fetcher 负责把请求发往网络。
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// AddAll 并发拉取全部请求，全部成功后再依次写入 store；任一失败则整体放弃，不写入任何条目。
func AddAll(ctx context.Context, store Store, fetcher Fetcher, reqs []*Request) error {
	for _, req := range reqs {
		if _, err := RequestKey(req); err != nil {
			return err
		}
	}

	responses := make([]*Response, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			resp, err := fetcher.Fetch(gctx, req.Clone())
			if err != nil {
				return fmt.Errorf("fetch %s: %w", req.URL, err)
			}
			if !resp.OK() {
				return fmt.Errorf("%w: %s responded %d", ErrBadResponse, req.URL, resp.Status)
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, req := range reqs {
		if err := store.Put(ctx, req, responses[i]); err != nil {
			return fmt.Errorf("put %s: %w", req.URL, err)
		}
	}
	return nil
}
