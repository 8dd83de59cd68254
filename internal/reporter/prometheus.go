package reporter

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"yqhp/perf-gate/internal/config"
	"yqhp/perf-gate/pkg/types"
)

// PrometheusReporter 把判定结果作为 gauge 推送到 Pushgateway。
type PrometheusReporter struct {
	url        string
	job        string
	httpClient *http.Client
}

// NewPrometheusReporter 创建 Pushgateway 报告器。
func NewPrometheusReporter(cfg *config.PrometheusConfig) *PrometheusReporter {
	return &PrometheusReporter{
		url:        cfg.PushURL,
		job:        cfg.Job,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func newPrometheusFromConfig(cfg *config.ReportersConfig, _ io.Writer) (Reporter, error) {
	if !cfg.Prometheus.Enabled {
		return nil, nil
	}
	if cfg.Prometheus.PushURL == "" {
		return nil, fmt.Errorf("prometheus push_url 不能为空")
	}
	return NewPrometheusReporter(&cfg.Prometheus), nil
}

// Name 返回报告器名称。
func (r *PrometheusReporter) Name() string {
	return "prometheus"
}

// gateValue 把门禁状态映射为 gauge 值。
func gateValue(s types.GateStatus) float64 {
	switch s {
	case types.StatusWarning:
		return 1
	case types.StatusFail:
		return 2
	case types.StatusSkip:
		return -1
	}
	return 0
}

// Collectors 构建一次判定对应的指标。
func Collectors(v *types.GateVerdict) []prometheus.Collector {
	exitCode := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "perf_gate_verdict_exit_code",
		Help: "Exit code of the last evaluation.",
	})
	exitCode.Set(float64(v.ExitCode))

	gates := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "perf_gate_gate_status",
		Help: "Gate outcome: 0 pass, 1 warning, 2 fail, -1 skipped.",
	}, []string{"gate"})
	for _, r := range v.Results {
		gates.WithLabelValues(r.Gate).Set(gateValue(r.Status))
	}

	metrics := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "perf_gate_metric",
		Help: "Metric values of the last evaluation. Undefined metrics are omitted.",
	}, []string{"metric"})
	if m := v.Metrics; m != nil {
		for _, name := range types.MetricNames {
			if value, ok := m.Value(name); ok {
				metrics.WithLabelValues(name).Set(value)
			}
		}
	}
	if p := v.Phases; p != nil {
		metrics.WithLabelValues(string(types.MetricPeakPhaseRPS)).Set(p.PeakPhaseRPS)
		metrics.WithLabelValues(string(types.MetricMinPhaseRPS)).Set(p.MinPhaseRPS)
		metrics.WithLabelValues(string(types.MetricWeightedRPS)).Set(p.WeightedRPS)
		if p.SustainPhase != "" || p.Fallback {
			metrics.WithLabelValues(string(types.MetricSustainPhaseRPS)).Set(p.SustainPhaseRPS)
		}
	}
	return []prometheus.Collector{exitCode, gates, metrics}
}

// Report 推送判定指标，按场景分组。
func (r *PrometheusReporter) Report(ctx context.Context, v *types.GateVerdict) error {
	registry := prometheus.NewRegistry()
	for _, c := range Collectors(v) {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	err := push.New(r.url, r.job).
		Client(r.httpClient).
		Gatherer(registry).
		Grouping("scenario", v.Scenario).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("推送指标失败: %w", err)
	}
	return nil
}

// Close 关闭报告器。
func (r *PrometheusReporter) Close(context.Context) error {
	return nil
}
