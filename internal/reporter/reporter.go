// Package reporter 输出判定结果：控制台、文本报告、JSON 判定文件与 Prometheus Pushgateway。
package reporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"yqhp/perf-gate/internal/config"
	"yqhp/perf-gate/pkg/types"
)

// Reporter 定义了判定输出的接口。
type Reporter interface {
	// Name 返回报告器名称。
	Name() string

	// Report 输出一次判定结果。
	Report(ctx context.Context, v *types.GateVerdict) error

	// Close 关闭报告器并释放资源。
	Close(ctx context.Context) error
}

// ReporterType 定义报告器类型。
type ReporterType string

const (
	// ReporterTypeConsole 输出到控制台。
	ReporterTypeConsole ReporterType = "console"
	// ReporterTypeText 输出到文本报告文件。
	ReporterTypeText ReporterType = "text"
	// ReporterTypeJSON 输出到 JSON 判定文件。
	ReporterTypeJSON ReporterType = "json"
	// ReporterTypePrometheus 推送到 Prometheus Pushgateway。
	ReporterTypePrometheus ReporterType = "prometheus"
)

// ReporterFactory 根据配置创建报告器，配置未启用时返回 nil。
type ReporterFactory func(cfg *config.ReportersConfig, out io.Writer) (Reporter, error)

// Registry 管理报告器的注册和创建。
type Registry struct {
	factories map[ReporterType]ReporterFactory
	mu        sync.RWMutex
}

// NewRegistry 创建一个新的报告器注册表。
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[ReporterType]ReporterFactory),
	}
}

// Register 为指定类型注册报告器工厂。
func (r *Registry) Register(reporterType ReporterType, factory ReporterFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[reporterType]; exists {
		return fmt.Errorf("报告器类型已注册: %s", reporterType)
	}

	r.factories[reporterType] = factory
	return nil
}

// Create 创建指定类型的报告器。
func (r *Registry) Create(reporterType ReporterType, cfg *config.ReportersConfig, out io.Writer) (Reporter, error) {
	r.mu.RLock()
	factory, exists := r.factories[reporterType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("未知的报告器类型: %s", reporterType)
	}

	return factory(cfg, out)
}

// ListTypes 返回所有已注册的报告器类型，按名称排序。
func (r *Registry) ListTypes() []ReporterType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]ReporterType, 0, len(r.factories))
	for t := range r.factories {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}

// NewDefaultRegistry 创建注册了全部内置报告器的注册表。
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(ReporterTypeConsole, newConsoleFromConfig)
	_ = r.Register(ReporterTypeText, newTextFromConfig)
	_ = r.Register(ReporterTypeJSON, newJSONFromConfig)
	_ = r.Register(ReporterTypePrometheus, newPrometheusFromConfig)
	return r
}

// Manager 把一次判定分发给所有已启用的报告器。
type Manager struct {
	reporters []Reporter
}

// NewManager 按配置创建所有已启用的报告器，out 是控制台输出。
func NewManager(registry *Registry, cfg *config.ReportersConfig, out io.Writer) (*Manager, error) {
	if registry == nil {
		registry = NewDefaultRegistry()
	}
	m := &Manager{}
	// 控制台优先输出，文件与推送随后
	for _, t := range []ReporterType{ReporterTypeConsole, ReporterTypeText, ReporterTypeJSON, ReporterTypePrometheus} {
		r, err := registry.Create(t, cfg, out)
		if err != nil {
			return nil, fmt.Errorf("创建报告器 %s 失败: %w", t, err)
		}
		if r != nil {
			m.reporters = append(m.reporters, r)
		}
	}
	return m, nil
}

// Add 添加报告器。
func (m *Manager) Add(r Reporter) {
	m.reporters = append(m.reporters, r)
}

// Names 返回已启用报告器的名称。
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.reporters))
	for _, r := range m.reporters {
		names = append(names, r.Name())
	}
	return names
}

// Report 把判定发送给所有报告器。单个报告器失败不影响其他报告器。
func (m *Manager) Report(ctx context.Context, v *types.GateVerdict) error {
	var errs []error
	for _, r := range m.reporters {
		if err := r.Report(ctx, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close 关闭所有报告器。
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	for _, r := range m.reporters {
		if err := r.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}
	return errors.Join(errs...)
}
