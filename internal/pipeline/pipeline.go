// Package pipeline runs one evaluation end to end: load the run's
// telemetry, merge and finalize it, derive the phase figures, evaluate the
// gates and report the verdict.
package pipeline

import (
	"context"
	"errors"
	"path/filepath"

	"go.uber.org/zap"

	"yqhp/perf-gate/internal/aggregator"
	"yqhp/perf-gate/internal/config"
	"yqhp/perf-gate/internal/finalizer"
	"yqhp/perf-gate/internal/gate"
	"yqhp/perf-gate/internal/history"
	"yqhp/perf-gate/internal/phase"
	"yqhp/perf-gate/internal/reporter"
	"yqhp/perf-gate/internal/resultdir"
	"yqhp/perf-gate/internal/store"
	"yqhp/perf-gate/pkg/logger"
	"yqhp/perf-gate/pkg/types"
)

// Pipeline evaluates runs against a threshold configuration.
type Pipeline struct {
	store      *config.StoreConfig
	thresholds *types.ThresholdConfig
	history    history.Store
	reporters  *reporter.Manager

	// Evaluator builds the evaluator of a scenario. Tests replace it to pin
	// ids and timestamps.
	Evaluator func(sc *types.ScenarioConfig) *gate.Evaluator
}

// New creates a pipeline. hist and reporters may be nil.
func New(storeCfg *config.StoreConfig, thresholds *types.ThresholdConfig, hist history.Store, reporters *reporter.Manager) *Pipeline {
	if storeCfg == nil {
		storeCfg = &config.StoreConfig{Type: "file"}
	}
	return &Pipeline{
		store:      storeCfg,
		thresholds: thresholds,
		history:    hist,
		reporters:  reporters,
		Evaluator:  gate.NewEvaluator,
	}
}

// Evaluate evaluates the run in dir against scenario. Malformed telemetry
// yields a verdict with exit code 2; an error is returned only when the
// scenario is unknown or no record can be read at all.
func (p *Pipeline) Evaluate(ctx context.Context, dir, scenario string) (*types.GateVerdict, error) {
	sc, err := p.thresholds.Scenario(scenario)
	if err != nil {
		return nil, &types.ConfigurationError{Field: "scenario", Err: err}
	}
	rec, err := resultdir.Load(dir, scenario)
	if err != nil {
		return nil, &types.ConfigurationError{Field: "result", Err: err}
	}

	in, err := p.prepare(ctx, dir, sc, rec)
	if err != nil {
		return nil, err
	}
	v := p.Evaluator(sc).Evaluate(in)

	if p.history != nil {
		if err := p.history.Save(ctx, v); err != nil {
			logger.Warn("verdict not saved to history", zap.String("scenario", scenario), zap.Error(err))
		}
	}
	if p.reporters != nil {
		if err := p.reporters.Report(ctx, v); err != nil {
			logger.Warn("verdict reporting failed", zap.String("scenario", scenario), zap.Error(err))
		}
	}
	return v, nil
}

// prepare turns the run directory into evaluator input. Telemetry problems
// are carried in the input so the input-validity gate reports them.
func (p *Pipeline) prepare(ctx context.Context, dir string, sc *types.ScenarioConfig, rec *types.RunRecord) (*gate.Input, error) {
	in := &gate.Input{Record: rec}

	if summary, err := aggregator.SummaryFromRecord(rec); err != nil {
		in.MetricsErr = err
	} else if handle, err := store.New(p.store, dir, runID(dir, rec)); err != nil {
		return nil, &types.ConfigurationError{Field: "store.type", Err: err}
	} else if merged, err := aggregator.Aggregate(ctx, handle, summary); err != nil {
		in.MetricsErr = err
	} else {
		p99, err := rec.P99LatencyMs()
		if err != nil {
			in.MetricsErr = err
		} else {
			in.Metrics = finalizer.Finalize(merged, finalizer.Input{Requests: summary.Requests, RecordedP99Ms: p99})
		}
	}

	if phases, err := resultdir.Phases(dir, rec); err != nil {
		in.PhasesErr = err
	} else if rps, err := rec.RPS(); err != nil {
		in.PhasesErr = err
	} else {
		in.Phases, in.PhasesErr = phase.NewBuilder(sc.Profile, sc.PhaseRoles).Build(phases, rps)
	}

	if sc.Regression != nil && sc.Regression.UseHistory && p.history != nil {
		baseline, err := p.history.LastPass(ctx, sc.Name)
		switch {
		case err == nil:
			in.Baseline = baseline
		case errors.Is(err, history.ErrNoBaseline):
			logger.Info("no baseline recorded yet", zap.String("scenario", sc.Name))
		default:
			logger.Warn("baseline lookup failed", zap.String("scenario", sc.Name), zap.Error(err))
		}
	}
	return in, nil
}

// runID identifies the run for the redis store: the record's run_id, else
// the result directory name.
func runID(dir string, rec *types.RunRecord) string {
	if id, ok := rec.Raw()["run_id"].(string); ok && id != "" {
		return id
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Base(dir)
	}
	return filepath.Base(abs)
}
