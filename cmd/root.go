// Package cmd 提供 perf-gate CLI 的命令实现
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"yqhp/perf-gate/internal/config"
	"yqhp/perf-gate/pkg/logger"
	"yqhp/perf-gate/pkg/types"
)

// Version 是当前版本号
var Version = "0.1.0"

// ExitError 携带进程退出码，Err 为空时只退出不打印
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// options 是全局 flags
type options struct {
	configFile string
	thresholds string
	logLevel   string
	logFormat  string
	debug      bool
	noColor    bool
	overrides  map[string]string

	cfg *config.Config
}

// NewRootCommand 创建根命令
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "perf-gate",
		Short: "压测结果聚合与质量门禁",
		Long: `perf-gate 把一次压测的分散遥测（各 worker 计数、各阶段结果、运行汇总）
合并为一份对账后的指标记录，再按场景配置的门禁依次判定 PASS / WARNING / FAIL，
并以稳定的退出码供 CI 使用：
  0 通过  1 不变量违规  2 输入或配置错误  3 门禁失败`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "perf-gate.yaml", "配置文件路径")
	flags.StringVar(&opts.thresholds, "thresholds", "", "阈值配置文件路径 (覆盖 thresholds_file)")
	flags.StringVar(&opts.logLevel, "log-level", "", "日志级别 (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "日志格式 (console, json)")
	flags.BoolVar(&opts.debug, "debug", false, "启用调试日志")
	flags.BoolVar(&opts.noColor, "no-color", false, "禁用彩色输出")
	flags.StringToStringVar(&opts.overrides, "set", nil, "覆盖配置项，格式: path=value (可多次指定)")

	// 禁用默认的 completion 命令
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		newEvaluateCommand(opts),
		newValidateAllCommand(opts),
		newValidateProfilingCommand(opts),
		newVersionCommand(),
	)
	return root
}

// load 按 默认值 < 配置文件 < 环境变量 < 命令行 的顺序加载配置并初始化日志
func (o *options) load() error {
	args := make(map[string]string, len(o.overrides)+4)
	for k, v := range o.overrides {
		args[k] = v
	}
	if o.thresholds != "" {
		args["thresholds_file"] = o.thresholds
	}
	if o.logLevel != "" {
		args["logging.level"] = o.logLevel
	}
	if o.logFormat != "" {
		args["logging.format"] = o.logFormat
	}
	if o.noColor {
		args["reporters.color"] = "false"
	}

	cfg, err := config.NewLoader().WithConfigPath(o.configFile).WithCmdArgs(args).Load()
	if err != nil {
		return &types.ConfigurationError{Field: "config", Err: err}
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return &types.ConfigurationError{Field: "config", Err: err}
	}

	logger.Init(&cfg.Logging)
	if o.debug {
		logger.EnableDebug()
	}
	o.cfg = cfg
	return nil
}

// thresholdConfig 加载阈值配置
func (o *options) thresholdConfig() (*types.ThresholdConfig, error) {
	tc, err := config.LoadThresholds(o.cfg.ThresholdsFile)
	if err != nil {
		return nil, &types.ConfigurationError{Field: "thresholds_file", Err: err}
	}
	return tc, nil
}

// ExitCode 把命令错误映射为进程退出码
func ExitCode(err error) int {
	if err == nil {
		return types.ExitPass
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var coder types.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	// 参数错误等同于输入错误
	return types.ExitMalformed
}

// Execute 执行根命令并以对应退出码结束进程
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()

	if err != nil {
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || exitErr.Err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	os.Exit(ExitCode(err))
}
