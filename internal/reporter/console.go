package reporter

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"yqhp/perf-gate/internal/config"
	"yqhp/perf-gate/pkg/types"
)

// ConsoleReporter 逐行打印报告，按状态着色。
type ConsoleReporter struct {
	writer io.Writer
	pass   *color.Color
	warn   *color.Color
	fail   *color.Color
	bold   *color.Color
}

// NewConsoleReporter 创建控制台报告器，writer 为空时写到标准输出。
func NewConsoleReporter(writer io.Writer, colored bool) *ConsoleReporter {
	if writer == nil {
		writer = os.Stdout
	}
	r := &ConsoleReporter{
		writer: writer,
		pass:   color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
		fail:   color.New(color.FgRed),
		bold:   color.New(color.Bold),
	}
	for _, c := range []*color.Color{r.pass, r.warn, r.fail, r.bold} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

func newConsoleFromConfig(cfg *config.ReportersConfig, out io.Writer) (Reporter, error) {
	if !cfg.Console {
		return nil, nil
	}
	return NewConsoleReporter(out, cfg.Color), nil
}

// Name 返回报告器名称。
func (r *ConsoleReporter) Name() string {
	return "console"
}

// Report 打印报告行与最终判定。
func (r *ConsoleReporter) Report(_ context.Context, v *types.GateVerdict) error {
	for _, line := range v.Messages {
		c := r.pass
		switch {
		case strings.HasPrefix(line, "VERDICT:"):
			c = r.bold
		case strings.HasPrefix(line, string(types.StatusWarning)):
			c = r.warn
		case strings.HasPrefix(line, string(types.StatusFail)):
			c = r.fail
		}
		if _, err := c.Fprintln(r.writer, line); err != nil {
			return err
		}
	}
	return nil
}

// Close 关闭报告器。
func (r *ConsoleReporter) Close(context.Context) error {
	return nil
}
