// Package gate decides whether a run passes its scenario's quality gates.
//
// Gates run in a fixed order. A FAIL does not stop later gates, so one run
// reports every problem it can; malformed input (exit 2) stops evaluation
// because nothing after it would be meaningful. WARNING findings accumulate
// alongside an eventual PASS.
package gate

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"yqhp/perf-gate/pkg/logger"
	"yqhp/perf-gate/pkg/types"
)

// Gate names as printed in the report.
const (
	GateInputValidity  = "input validity"
	GateReconciliation = "reconciliation"
	GateContract       = "write-method contract"
	GateStructural     = "structural efficiency"
	GateThroughput     = "throughput"
	GateRegression     = "regression guard"
	GateLatency        = "latency ceiling"
)

// Baseline is the last known good run of a scenario.
type Baseline struct {
	EvaluationID string
	P99LatencyMs *float64
	// RPS maps phase metric names to their values in the baseline run.
	RPS map[types.PhaseMetric]float64
}

// Input is one run's telemetry as seen by the evaluator.
type Input struct {
	// Record is the raw run record; raw fields are re-validated and
	// structural ratios recomputed from it.
	Record *types.RunRecord
	// Metrics is nil when the record could not be merged; MetricsErr says why.
	Metrics    *types.MergedMetrics
	MetricsErr error
	// Phases is nil when no throughput figure exists; PhasesErr says why.
	Phases    *types.PhaseMetrics
	PhasesErr error
	// Baseline is nil when no history is available.
	Baseline *Baseline
}

// Evaluator runs the ordered gates of one scenario.
type Evaluator struct {
	scenario *types.ScenarioConfig

	Now   func() time.Time
	NewID func() string
}

// NewEvaluator creates an evaluator for sc.
func NewEvaluator(sc *types.ScenarioConfig) *Evaluator {
	return &Evaluator{
		scenario: sc,
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
}

// evaluation is the state of one pass through the gates.
type evaluation struct {
	sc      *types.ScenarioConfig
	in      *Input
	results []types.GateResult
	halted  bool
}

func (ev *evaluation) add(r types.GateResult) {
	if r.Status == types.StatusFail && r.ExitCode == 0 {
		r.ExitCode = types.ExitFailure
	}
	ev.results = append(ev.results, r)
}

// halt records malformed input and stops evaluation.
func (ev *evaluation) halt(gate, detail string) {
	ev.results = append(ev.results, types.GateResult{
		Gate:     gate,
		Status:   types.StatusFail,
		Detail:   detail,
		ExitCode: types.ExitMalformed,
	})
	ev.halted = true
}

// Evaluate runs every gate and returns the verdict. It has no side effects
// and gives the same verdict for the same input.
func (e *Evaluator) Evaluate(in *Input) *types.GateVerdict {
	ev := &evaluation{sc: e.scenario, in: in}

	steps := []func(*evaluation){
		checkInputValidity,
		checkReconciliation,
		checkContract,
		checkStructuralEfficiency,
		checkThroughput,
		checkRegression,
		checkLatencyCeiling,
		checkRates,
	}
	for _, step := range steps {
		step(ev)
		if ev.halted {
			break
		}
	}

	v := &types.GateVerdict{
		ID:          e.NewID(),
		Scenario:    e.scenario.Name,
		Results:     ev.results,
		Halted:      ev.halted,
		Metrics:     in.Metrics,
		Phases:      in.Phases,
		EvaluatedAt: e.Now().UTC(),
	}
	v.Status, v.ExitCode = outcome(ev)
	v.Messages = v.Lines()

	logger.Info("scenario evaluated",
		zap.String("scenario", v.Scenario),
		zap.String("status", string(v.Status)),
		zap.Int("exit_code", v.ExitCode),
		zap.Int("gates", len(v.Results)))
	return v
}

func outcome(ev *evaluation) (types.GateStatus, int) {
	if ev.halted {
		return types.StatusFail, types.ExitMalformed
	}
	status, code := types.StatusPass, types.ExitPass
	for _, r := range ev.results {
		switch r.Status {
		case types.StatusFail:
			return types.StatusFail, types.ExitFailure
		case types.StatusWarning:
			status = types.StatusWarning
		}
	}
	return status, code
}
