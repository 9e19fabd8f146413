package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const configEnv = "COUNTDOWN_AGENT_CONFIG"

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

// cliOptions 汇总全局标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configFlag string
}

// configPath 结合环境变量计算最终的配置路径：flag > 环境变量 > ./config.toml。
func (o *cliOptions) configPath() string {
	if o.configFlag != "" {
		return o.configFlag
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return "config.toml"
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

// execute 构建命令树并执行，返回退出码，方便测试。
func execute(ctx context.Context, args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdOut)
	root.SetErr(stdErr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "countdown-agent",
		Short:         "Offline cache agent for the October 1st countdown page",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 "+configEnv+" 覆盖）")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newInstallCmd(opts))
	root.AddCommand(newActivateCmd(opts))
	root.AddCommand(newPushCmd(opts))
	root.AddCommand(newCheckConfigCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}
