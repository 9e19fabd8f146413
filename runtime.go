package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oct1/countdown-agent/internal/agent"
	"github.com/oct1/countdown-agent/internal/cache"
	"github.com/oct1/countdown-agent/internal/config"
	"github.com/oct1/countdown-agent/internal/logging"
	"github.com/oct1/countdown-agent/internal/notify"
	"github.com/oct1/countdown-agent/internal/proxy"
	"github.com/oct1/countdown-agent/internal/server"
)

// agentRuntime 持有一次 CLI 调用共享的配置、日志、缓存与代理实例。
type agentRuntime struct {
	configPath string
	cfg        *config.Config
	logger     *logrus.Logger
	storage    cache.Storage
	center     *notify.Center
	agent      *agent.Agent
}

// loadRuntime 遵循“配置 → 日志 → 缓存存储 → 上游客户端 → Agent”顺序构建运行时，
// 保证所有请求共享统一的缓存实例。
func loadRuntime(configPath string) (*agentRuntime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	storage, err := cache.NewStorage(cfg.Global.StorageBackend, cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存存储失败: %w", err)
	}

	fetcher, err := proxy.NewNetworkFetcher(server.NewUpstreamClient(cfg), cfg.Agent.Origin)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	center := notify.NewCenter(logger)
	a, err := agent.New(agent.Options{
		CacheName:  cfg.Agent.CacheName,
		Origin:     cfg.Agent.Origin,
		SeedAssets: cfg.Agent.SeedAssets,
		SyncTag:    cfg.Agent.SyncTag,
		Storage:    storage,
		Fetcher:    fetcher,
		Notifier:   center,
		Windows:    center,
		Logger:     logger,
	})
	if err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("构建代理失败: %w", err)
	}

	return &agentRuntime{
		configPath: configPath,
		cfg:        cfg,
		logger:     logger,
		storage:    storage,
		center:     center,
		agent:      a,
	}, nil
}

// Close 等待后台回写结束后关闭存储。
func (r *agentRuntime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.agent.Drain(ctx); err != nil {
		r.logger.WithError(err).Warn("drain_timeout")
	}
	return r.storage.Close()
}

// onConfigChange 在缓存代号或预热清单变化时切换代号；其它字段需要重启生效。
func (r *agentRuntime) onConfigChange(ctx context.Context, next *config.Config) {
	fields := logging.BaseFields("config_reload", r.configPath)
	fields["cache_name"] = next.Agent.CacheName
	if next.Agent.CacheName == r.agent.CacheName() {
		r.logger.WithFields(fields).Info("配置已重新加载，缓存代号未变化")
		return
	}

	report, err := r.agent.Upgrade(ctx, next.Agent.CacheName, next.Agent.SeedAssets)
	if err != nil {
		r.logger.WithFields(fields).WithError(err).Error("upgrade_failed")
		return
	}
	fields["previous"] = report.Previous
	fields["deleted"] = report.Activate.Deleted
	if report.Install.Err != nil {
		fields["install_error"] = report.Install.Err.Error()
	}
	if err := report.Activate.Err(); err != nil {
		fields["activate_error"] = err.Error()
	}
	r.logger.WithFields(fields).Info("upgrade_complete")
}
