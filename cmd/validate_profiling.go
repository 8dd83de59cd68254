package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"yqhp/perf-gate/internal/profiling"
	"yqhp/perf-gate/pkg/types"
)

func newValidateProfilingCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-profiling-artifacts <artifact_dir>",
		Short: "检查性能剖析产物是否完整",
		Long: `检查采集到的剖析产物：不得包含失败标记字符串，折叠栈文件每行须为 "frame;frame;... <count>"，
SVG 火焰图须包含 <svg 根元素。有问题时退出码为 1。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := opts.cfg.Profiling
			report, err := profiling.NewChecker(p.Sentinels, p.Extensions).Check(args[0])
			if err != nil {
				return &types.ConfigurationError{Field: "artifact_dir", Err: err}
			}

			out := cmd.OutOrStdout()
			for _, f := range report.Findings {
				fmt.Fprintln(out, f.String())
			}
			fmt.Fprintf(out, "checked %d artifact(s): %d problem(s)\n", report.Files, len(report.Findings))
			if code := report.ExitCode(); code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}
}
