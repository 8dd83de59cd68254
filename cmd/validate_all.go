package cmd

import (
	"errors"
	"io/fs"

	"github.com/spf13/cobra"

	"yqhp/perf-gate/internal/validator"
	"yqhp/perf-gate/pkg/types"
)

func newValidateAllCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-all <root_dir>",
		Short: "校验目录下全部结果记录的计数不变量",
		Long: `递归扫描结果记录，逐条检查 requests == Σstatus_counts + Σsocket_errors (+ Σexcluded)，
并对 full_replace 场景检查写方法契约。收集全部违规，有违规时退出码为 1。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// 阈值文件可选，没有时按记录中的 operation 判断契约
			var tc *types.ThresholdConfig
			loaded, err := opts.thresholdConfig()
			switch {
			case err == nil:
				tc = loaded
			case !errors.Is(err, fs.ErrNotExist):
				return err
			}

			report, err := validator.New(tc, opts.cfg.Validator.Concurrency).Run(cmd.Context(), args[0])
			if err != nil {
				return &types.ConfigurationError{Field: "root_dir", Err: err}
			}
			report.Render(cmd.OutOrStdout())
			if code := report.ExitCode(); code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}
}
