package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/oct1/countdown-agent/internal/config"
	"github.com/oct1/countdown-agent/internal/logging"
	"github.com/oct1/countdown-agent/internal/proxy"
	"github.com/oct1/countdown-agent/internal/server"
	"github.com/oct1/countdown-agent/internal/server/routes"
	"github.com/oct1/countdown-agent/internal/version"
)

func newServeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the cache proxy in front of the page origin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts.configPath())
		},
	}
}

func runServe(cmd *cobra.Command, configPath string) error {
	rt, err := loadRuntime(configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	fields := logging.BaseFields("startup", configPath)
	fields["listen_port"] = rt.cfg.Global.ListenPort
	fields["origin"] = rt.cfg.Agent.Origin
	fields["generation"] = rt.cfg.Agent.CacheName
	fields["storage_backend"] = rt.cfg.Global.StorageBackend
	fields["version"] = version.Full()
	rt.logger.WithFields(fields).Info("配置加载完成")

	// 启动顺序与首次注册一致：先预热当前代号，再清理旧代号，预热失败不阻止激活。
	rt.agent.Install(ctx)
	rt.agent.Activate(ctx)

	if err := config.Watch(configPath, func(next *config.Config) {
		rt.onConfigChange(ctx, next)
	}, func(err error) {
		rt.logger.WithFields(logging.BaseFields("config_reload", configPath)).
			WithError(err).Warn("配置重新加载失败，继续使用旧配置")
	}); err != nil {
		return err
	}

	port := rt.cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     rt.logger,
		Fetch:      proxy.NewForwarder(proxy.NewHandler(rt.agent, rt.logger), rt.logger),
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterLifecycleRoutes(app, rt.agent, rt.center)

	rt.logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		rt.logger.WithFields(logrus.Fields{"action": "shutdown"}).Info("收到退出信号，停止服务")
		return app.Shutdown()
	}
}

func newInstallCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Pre-cache the seed assets into the current cache generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(opts.configPath())
			if err != nil {
				return err
			}
			defer rt.Close()

			report := rt.agent.Install(cmd.Context())
			if report.Err != nil {
				return fmt.Errorf("install %s: %w", report.Generation, report.Err)
			}
			fmt.Fprintf(stdOut, "installed %s (%d assets)\n", report.Generation, len(report.Assets))
			return nil
		},
	}
}

func newActivateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activate",
		Short: "Delete every cache generation except the current one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(opts.configPath())
			if err != nil {
				return err
			}
			defer rt.Close()

			report := rt.agent.Activate(cmd.Context())
			for _, name := range report.Deleted {
				fmt.Fprintf(stdOut, "deleted %s\n", name)
			}
			fmt.Fprintf(stdOut, "current %s\n", report.Current)
			return report.Err()
		},
	}
}

func newPushCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "push [payload]",
		Short: "Deliver a push payload and print the resulting notification",
		Long: `Deliver a push payload to the agent. The payload is a JSON object with
optional "title" and "body" fields; other fields are kept as notification data.
Without an argument the payload is read from stdin.`,
		Example: `  countdown-agent push '{"title":"T-minus 1 day"}'
  echo '{}' | countdown-agent push`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			if len(args) == 1 {
				data = []byte(args[0])
			} else {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read payload: %w", err)
				}
				data = raw
			}

			rt, err := loadRuntime(opts.configPath())
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.agent.Push(cmd.Context(), data)
			if err != nil {
				return err
			}
			if n == nil {
				fmt.Fprintln(stdOut, "empty payload, no notification shown")
				return nil
			}
			enc := json.NewEncoder(stdOut)
			enc.SetIndent("", "  ")
			return enc.Encode(n)
		},
	}
}

func newCheckConfigCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath()
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("加载配置失败: %w", err)
			}
			logger, err := logging.InitLogger(cfg.Global)
			if err != nil {
				return fmt.Errorf("初始化日志失败: %w", err)
			}

			fields := logging.BaseFields("check_config", path)
			fields["generation"] = cfg.Agent.CacheName
			fields["seed_assets"] = strings.Join(cfg.Agent.SeedAssets, ",")
			fields["storage_backend"] = cfg.Global.StorageBackend
			fields["result"] = "ok"
			logger.WithFields(fields).Info("配置校验通过")
			return nil
		},
	}
}
