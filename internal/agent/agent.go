package agent

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/oct1/countdown-agent/internal/cache"
)

// Options 汇总构造 Agent 所需的注入依赖与配置。
type Options struct {
	CacheName  string
	Origin     string
	SeedAssets []string
	SyncTag    string

	Storage  cache.Storage
	Fetcher  cache.Fetcher
	Notifier Notifier
	Windows  WindowOpener
	Logger   *logrus.Logger
}

// Agent 持有当前缓存代号与所有外部协作者，所有方法可并发调用。
type Agent struct {
	storage  cache.Storage
	fetcher  cache.Fetcher
	notifier Notifier
	windows  WindowOpener
	logger   *logrus.Logger
	origin   *url.URL
	syncTag  string

	mu        sync.RWMutex
	cacheName string
	seed      []string

	pending sync.WaitGroup
}

// New 校验依赖并构建 Agent。
func New(opts Options) (*Agent, error) {
	if opts.Storage == nil {
		return nil, errors.New("cache storage is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if opts.Windows == nil {
		return nil, errors.New("window opener is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(opts.CacheName) == "" {
		return nil, errors.New("cache name is required")
	}
	origin, err := url.Parse(strings.TrimRight(opts.Origin, "/"))
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid origin %q", opts.Origin)
	}

	return &Agent{
		storage:   opts.Storage,
		fetcher:   opts.Fetcher,
		notifier:  opts.Notifier,
		windows:   opts.Windows,
		logger:    opts.Logger,
		origin:    origin,
		syncTag:   opts.SyncTag,
		cacheName: opts.CacheName,
		seed:      append([]string(nil), opts.SeedAssets...),
	}, nil
}

// CacheName 返回当前缓存代号。
func (a *Agent) CacheName() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cacheName
}

// SeedAssets 返回当前预热清单副本。
func (a *Agent) SeedAssets() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.seed...)
}

// Origin 返回页面源站，例如 https://countdown.example.com。
func (a *Agent) Origin() string {
	return a.origin.String()
}

// ResolveURL 将站内路径解析为源站上的绝对地址。只取路径与查询串，
// 调用方给出的 scheme 与 host（如 //other/x、http://other/y）一律丢弃，请求永远落在源站上。
func (a *Agent) ResolveURL(path string) string {
	target := *a.origin
	target.User = nil
	target.Path = "/"
	target.RawPath = ""
	target.RawQuery = ""
	target.Fragment = ""
	target.RawFragment = ""

	ref, err := url.Parse(path)
	if err != nil {
		rawPath, rawQuery, _ := strings.Cut(path, "?")
		target.Path = "/" + strings.TrimLeft(rawPath, "/")
		target.RawQuery = rawQuery
		return target.String()
	}
	if ref.Path != "" {
		target.Path = "/" + strings.TrimLeft(ref.Path, "/")
		if ref.RawPath != "" {
			target.RawPath = "/" + strings.TrimLeft(ref.RawPath, "/")
		}
	}
	target.RawQuery = ref.RawQuery
	return target.String()
}

// Storage 暴露底层缓存存储，供诊断接口使用。
func (a *Agent) Storage() cache.Storage {
	return a.storage
}

// Drain 等待所有后台回写结束，关闭存储前调用。
func (a *Agent) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Agent) snapshot() (string, []string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cacheName, append([]string(nil), a.seed...)
}
