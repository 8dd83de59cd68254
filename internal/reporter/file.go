package reporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"

	"yqhp/perf-gate/internal/config"
	"yqhp/perf-gate/pkg/types"
)

// TextReporter 把报告行写入文本文件。
type TextReporter struct {
	path string
}

// NewTextReporter 创建文本报告器。
func NewTextReporter(path string) *TextReporter {
	return &TextReporter{path: path}
}

func newTextFromConfig(cfg *config.ReportersConfig, _ io.Writer) (Reporter, error) {
	if cfg.ReportFile == "" {
		return nil, nil
	}
	return NewTextReporter(cfg.ReportFile), nil
}

// Name 返回报告器名称。
func (r *TextReporter) Name() string {
	return "text"
}

// Report 写入报告文件。
func (r *TextReporter) Report(_ context.Context, v *types.GateVerdict) error {
	data := strings.Join(v.Messages, "\n") + "\n"
	return writeFile(r.path, []byte(data))
}

// Close 关闭报告器。
func (r *TextReporter) Close(context.Context) error {
	return nil
}

// JSONReporter 把完整判定写入 JSON 文件。
type JSONReporter struct {
	path string
}

// NewJSONReporter 创建 JSON 判定报告器。
func NewJSONReporter(path string) *JSONReporter {
	return &JSONReporter{path: path}
}

func newJSONFromConfig(cfg *config.ReportersConfig, _ io.Writer) (Reporter, error) {
	if cfg.VerdictFile == "" {
		return nil, nil
	}
	return NewJSONReporter(cfg.VerdictFile), nil
}

// Name 返回报告器名称。
func (r *JSONReporter) Name() string {
	return "json"
}

// Report 写入判定文件。
func (r *JSONReporter) Report(_ context.Context, v *types.GateVerdict) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化判定失败: %w", err)
	}
	return writeFile(r.path, append(data, '\n'))
}

// Close 关闭报告器。
func (r *JSONReporter) Close(context.Context) error {
	return nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建目录失败: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", path, err)
	}
	return nil
}
