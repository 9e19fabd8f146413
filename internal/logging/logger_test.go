package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/oct1/countdown-agent/internal/config"
)

func TestConfigureDefaultsToStdout(t *testing.T) {
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "info"})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("未指定文件时应输出到 stdout")
	}
}

func TestInitLoggerFallbackOnPermissionDenied(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	cfg := config.GlobalConfig{
		LogLevel:    "info",
		LogFilePath: filepath.Join(blocked, "sub", "countdown-agent.log"),
	}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("初始化不应失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("fallback 时应退回 stdout")
	}
}

func TestConfigureCreatesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "countdown-agent.log")
	cfg := config.GlobalConfig{LogLevel: "debug", LogFilePath: path}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	logger.Info("test")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("预期创建日志文件: %v", err)
	}
}

func TestFetchFieldsCarryCacheState(t *testing.T) {
	fields := FetchFields("req-1", "GET", "http://origin/index.html", "oct-1-countdown-v1", true)
	if fields["action"] != "fetch" {
		t.Fatalf("action 字段应为 fetch，得到 %v", fields["action"])
	}
	if fields["cache_hit"] != true {
		t.Fatalf("cache_hit 字段应为 true")
	}
	if fields["generation"] != "oct-1-countdown-v1" {
		t.Fatalf("generation 字段不符: %v", fields["generation"])
	}
}

func TestLoggerStampsServiceAndAction(t *testing.T) {
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "info"})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	buf := &bytes.Buffer{}
	logger.SetOutput(buf)

	logger.Info("plain")
	logger.WithFields(LifecycleFields("install", "oct-1-countdown-v1")).Info("install_complete")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("期望两行日志，得到 %d", len(lines))
	}
	var plain, lifecycle map[string]any
	if err := json.Unmarshal(lines[0], &plain); err != nil {
		t.Fatalf("日志应为 JSON: %v", err)
	}
	if err := json.Unmarshal(lines[1], &lifecycle); err != nil {
		t.Fatalf("日志应为 JSON: %v", err)
	}
	if plain["service"] != ServiceName || plain["action"] != "agent" {
		t.Fatalf("未声明 action 的日志应补齐默认字段，得到 %v", plain)
	}
	if lifecycle["action"] != "install" || lifecycle["generation"] != "oct-1-countdown-v1" {
		t.Fatalf("显式字段不应被覆盖，得到 %v", lifecycle)
	}
}

func TestInitLoggerLevels(t *testing.T) {
	logger, err := InitLogger(config.GlobalConfig{})
	if err != nil {
		t.Fatalf("空级别应默认为 info: %v", err)
	}
	if logger.GetLevel().String() != "info" {
		t.Fatalf("空级别应默认为 info，得到 %s", logger.GetLevel())
	}
	if _, err := InitLogger(config.GlobalConfig{LogLevel: "loud"}); err == nil {
		t.Fatalf("非法级别应返回错误")
	}
}
