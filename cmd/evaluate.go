package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/perf-gate/internal/history"
	"yqhp/perf-gate/internal/pipeline"
	"yqhp/perf-gate/internal/reporter"
	"yqhp/perf-gate/pkg/logger"
)

func newEvaluateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <result_dir> <scenario>",
		Short: "判定一次压测结果",
		Long: `读取结果目录中的运行记录、阶段记录与 worker 计数，按场景阈值依次执行门禁：
输入校验、写方法契约、结构效率、吞吐、回归保护、延迟上限、错误率。

报告逐行输出到标准输出，最后一行为判定结果；日志输出到标准错误。`,
		Example: `  # 判定 put_orders 场景
  perf-gate evaluate ./results/run-42 put_orders

  # 指定阈值文件并输出 JSON 判定
  perf-gate evaluate --thresholds thresholds.yaml --set reporters.verdict_file=verdict.json ./results/run-42 put_orders`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := opts.cfg

			tc, err := opts.thresholdConfig()
			if err != nil {
				return err
			}

			reporters, err := reporter.NewManager(nil, &cfg.Reporters, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer reporters.Close(ctx)

			var hist history.Store
			if cfg.History.Enabled {
				s, err := history.Open(ctx, &cfg.History)
				if err != nil {
					// 历史库不可用时继续判定，只是没有基线
					logger.Warn("history store unavailable", zap.Error(err))
				} else {
					defer s.Close()
					hist = s
				}
			}

			v, err := pipeline.New(&cfg.Store, tc, hist, reporters).Evaluate(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if v.ExitCode != 0 {
				return &ExitError{Code: v.ExitCode}
			}
			return nil
		},
	}
}
