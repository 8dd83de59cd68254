package gate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"yqhp/perf-gate/internal/phase"
	"yqhp/perf-gate/pkg/logger"
	"yqhp/perf-gate/pkg/types"
)

const mergePathRatio = "merge_path_ratio"

// checkInputValidity validates every raw field later gates consume and the
// telemetry the scenario's rules require.
func checkInputValidity(ev *evaluation) {
	r := ev.in.Record
	if r == nil {
		ev.halt(GateInputValidity, "run record not found")
		return
	}

	requests, err := r.Requests()
	if err != nil {
		ev.halt(GateInputValidity, err.Error())
		return
	}
	if requests == 0 {
		ev.halt(GateInputValidity, "requests must be > 0")
		return
	}

	if _, _, err := r.StatusCounts(); err != nil {
		ev.halt(GateInputValidity, err.Error())
		return
	}
	for _, key := range []string{"socket_errors", "excluded"} {
		if _, _, err := r.Counts(key); err != nil {
			ev.halt(GateInputValidity, err.Error())
			return
		}
	}
	if _, _, err := r.Non2xx(); err != nil {
		ev.halt(GateInputValidity, err.Error())
		return
	}
	if _, err := r.P99LatencyMs(); err != nil {
		ev.halt(GateInputValidity, err.Error())
		return
	}
	if d, err := r.OptionalFloat("duration_seconds"); err != nil || (d != nil && *d < 0) {
		ev.halt(GateInputValidity, "duration_seconds must be a non-negative number")
		return
	}
	if mp, err := r.Object("merge_path"); err == nil {
		for _, key := range []string{"bulk_samples", "fallback_samples"} {
			if !mp.Has(key) {
				continue
			}
			if _, err := mp.Count(key); err != nil {
				ev.halt(GateInputValidity, "merge_path."+err.Error())
				return
			}
		}
	}

	if ev.in.Metrics == nil {
		detail := "merged metrics unavailable"
		if ev.in.MetricsErr != nil {
			detail += ": " + ev.in.MetricsErr.Error()
		}
		ev.halt(GateInputValidity, detail)
		return
	}
	if err := ev.in.PhasesErr; err != nil && !errors.Is(err, types.ErrNoData) {
		ev.halt(GateInputValidity, "phases: "+err.Error())
		return
	}

	ceiling, floor, _ := regressionBounds(ev)
	if ev.in.Metrics.P99LatencyMs == nil && (ceiling != nil || ev.sc.Rule("p99_latency_ms") != nil) {
		ev.halt(GateInputValidity, "p99_latency_ms not found and no latency histograms recorded")
		return
	}
	if ev.in.Phases == nil && (floor != nil || ev.sc.ThroughputRule() != nil) {
		ev.halt(GateInputValidity, "no phase results and no run-level throughput")
		return
	}

	ev.add(types.GateResult{
		Gate:   GateInputValidity,
		Status: types.StatusPass,
		Metric: "requests",
		Value:  types.Float(float64(requests)),
	})
}

// checkReconciliation surfaces a totals mismatch as a warning.
func checkReconciliation(ev *evaluation) {
	if ev.in.Metrics.Consistent {
		return
	}
	ev.add(types.GateResult{
		Gate:   GateReconciliation,
		Status: types.StatusWarning,
		Detail: ev.in.Metrics.Inconsistency,
	})
}

// checkContract fails a full-replace scenario on any validation-error status.
// Status-patch scenarios follow a looser contract and skip this gate.
func checkContract(ev *evaluation) {
	sc := ev.sc
	if sc.Operation != types.OperationFullReplace {
		op := string(sc.Operation)
		if op == "" {
			op = "unspecified"
		}
		ev.add(types.GateResult{Gate: GateContract, Status: types.StatusSkip, Detail: "skipped: " + op + " operation"})
		return
	}

	m := ev.in.Metrics
	if m.Precision == types.PrecisionCoarse || m.Precision == types.PrecisionNone {
		ev.add(types.GateResult{
			Gate:   GateContract,
			Status: types.StatusWarning,
			Detail: fmt.Sprintf("status histogram unavailable at %s precision, contract not verified", m.Precision),
		})
		return
	}

	codes := sc.ValidationCodes()
	found := make(map[int]int64)
	for _, code := range codes {
		if n := m.StatusCounts[code]; n > 0 {
			found[code] = n
		}
	}
	if len(found) > 0 {
		violation := &types.ContractViolation{Scenario: sc.Name, Operation: sc.Operation, Codes: found}
		ev.add(types.GateResult{Gate: GateContract, Status: types.StatusFail, Detail: violation.Error()})
		return
	}

	names := make([]string, 0, len(codes))
	for _, c := range codes {
		names = append(names, fmt.Sprint(c))
	}
	ev.add(types.GateResult{
		Gate:   GateContract,
		Status: types.StatusPass,
		Detail: "no " + strings.Join(names, "/") + " responses",
	})
}

// checkStructuralEfficiency recomputes the bulk-path ratio from the raw
// sample counts. A stored ratio is never trusted.
func checkStructuralEfficiency(ev *evaluation) {
	cfg := ev.sc.MergePath
	if cfg == nil {
		ev.add(types.GateResult{Gate: GateStructural, Status: types.StatusSkip, Detail: "skipped: not configured"})
		return
	}

	missing := func(detail string) {
		if cfg.IsRequired() {
			ev.halt(GateStructural, detail)
			return
		}
		ev.add(types.GateResult{Gate: GateStructural, Status: types.StatusWarning, Detail: detail + " (bulk path not required)"})
	}

	mp, err := ev.in.Record.Object("merge_path")
	if err != nil {
		missing("merge_path not found or not an object")
		return
	}
	var samples [2]int64
	for i, key := range []string{"bulk_samples", "fallback_samples"} {
		n, err := mp.Count(key)
		if err != nil {
			missing(fmt.Sprintf("merge_path.%s not found or not a non-negative integer", key))
			return
		}
		samples[i] = n
	}
	bulk, fallback := samples[0], samples[1]
	if bulk+fallback == 0 {
		missing("merge_path has no samples")
		return
	}

	ratio := float64(bulk) / float64(bulk+fallback)
	var detail string
	if stored, err := mp.Float("ratio"); err == nil && math.Abs(stored-ratio) > 1e-9 {
		detail = fmt.Sprintf("stored ratio %.6f discarded", stored)
		logger.Warn("stored merge_path ratio disagrees with raw samples",
			zap.String("scenario", ev.sc.Name),
			zap.Float64("stored", stored),
			zap.Float64("recomputed", ratio))
	}

	rule := types.ThresholdRule{Metric: mergePathRatio, Error: types.Float(cfg.MinRatio), Comparator: types.AtLeast}
	out := rule.Evaluate(ratio)
	ev.add(types.GateResult{
		Gate:       GateStructural,
		Status:     out.Status,
		Metric:     mergePathRatio,
		Value:      types.Float(ratio),
		Comparator: types.AtLeast,
		Bound:      types.Float(out.Bound),
		Decimals:   6,
		Detail:     detail,
	})
}

// checkThroughput gates every composite figure a rule names. Each must be
// allowed for the profile.
func checkThroughput(ev *evaluation) {
	rules := ev.sc.ThroughputRules()
	if len(rules) == 0 {
		ev.add(types.GateResult{Gate: GateThroughput, Status: types.StatusSkip, Detail: "skipped: no throughput rule"})
		return
	}
	values := make([]float64, len(rules))
	for i, rule := range rules {
		value, err := phase.Select(ev.in.Phases, ev.sc, types.PhaseMetric(rule.Metric))
		if err != nil {
			ev.halt(GateThroughput, err.Error())
			return
		}
		values[i] = value
	}
	for i, rule := range rules {
		ev.addRule(GateThroughput, rule, values[i], 2)
		if ev.in.Phases.Fallback {
			ev.results[len(ev.results)-1].Detail = "single-phase fallback"
		}
	}
}

// addRule evaluates value against rule and records the result.
func (ev *evaluation) addRule(gate string, rule types.ThresholdRule, value float64, decimals int) {
	out := rule.Evaluate(value)
	r := types.GateResult{
		Gate:       gate,
		Status:     out.Status,
		Metric:     rule.Metric,
		Value:      types.Float(value),
		Comparator: rule.Comparator,
		Decimals:   decimals,
	}
	if out.Status != types.StatusSkip {
		r.Bound = types.Float(out.Bound)
	}
	if out.Status == types.StatusFail {
		logger.Debug("threshold violated",
			zap.String("scenario", ev.sc.Name),
			zap.String("gate", gate),
			zap.Error(&types.ThresholdViolation{Metric: rule.Metric, Value: value, Bound: out.Bound, Comparator: rule.Comparator}))
	}
	ev.add(r)
}

// regressionMetric is the throughput figure compared with the revert floor.
func regressionMetric(sc *types.ScenarioConfig) types.PhaseMetric {
	if sc.Regression != nil && sc.Regression.Metric != "" {
		return sc.Regression.Metric
	}
	if rule := sc.ThroughputRule(); rule != nil {
		return types.PhaseMetric(rule.Metric)
	}
	if allowed := phase.AllowedMetrics(sc); len(allowed) > 0 {
		return allowed[0]
	}
	return types.MetricWeightedRPS
}

// regressionBounds resolves the revert ceiling and floor. Explicit bounds
// win; otherwise the last known good run widened by margin_pct is used.
func regressionBounds(ev *evaluation) (ceiling, floor *float64, fromHistory bool) {
	rg := ev.sc.Regression
	if rg == nil {
		return nil, nil, false
	}
	ceiling, floor = rg.P99CeilingMs, rg.RPSFloor
	base := ev.in.Baseline
	if !rg.UseHistory || base == nil {
		return ceiling, floor, false
	}
	margin := rg.MarginPct / 100
	if ceiling == nil && base.P99LatencyMs != nil {
		ceiling = types.Float(*base.P99LatencyMs * (1 + margin))
		fromHistory = true
	}
	if floor == nil {
		if rps, ok := base.RPS[regressionMetric(ev.sc)]; ok {
			floor = types.Float(rps * (1 - margin))
			fromHistory = true
		}
	}
	return ceiling, floor, fromHistory
}

// checkRegression applies the revert ceiling on p99 and the revert floor on
// throughput. Either violation fails; both produce one combined message.
func checkRegression(ev *evaluation) {
	if ev.sc.Regression == nil {
		ev.add(types.GateResult{Gate: GateRegression, Status: types.StatusSkip, Detail: "skipped: not configured"})
		return
	}
	ceiling, floor, fromHistory := regressionBounds(ev)
	if ceiling == nil && floor == nil {
		ev.add(types.GateResult{Gate: GateRegression, Status: types.StatusSkip, Detail: "skipped: no baseline available"})
		return
	}

	var passed, violated []string
	if ceiling != nil {
		p99 := *ev.in.Metrics.P99LatencyMs
		if p99 > *ceiling {
			violated = append(violated, fmt.Sprintf("p99_latency_ms = %.2f exceeds revert ceiling %s", p99, types.FormatBound(*ceiling)))
		} else {
			passed = append(passed, fmt.Sprintf("p99_latency_ms = %.2f <= %s", p99, types.FormatBound(*ceiling)))
		}
	}
	if floor != nil {
		metric := regressionMetric(ev.sc)
		rps, err := phase.Select(ev.in.Phases, ev.sc, metric)
		if err != nil {
			ev.halt(GateRegression, err.Error())
			return
		}
		if rps < *floor {
			violated = append(violated, fmt.Sprintf("%s = %.2f below revert floor %s", metric, rps, types.FormatBound(*floor)))
		} else {
			passed = append(passed, fmt.Sprintf("%s = %.2f >= %s", metric, rps, types.FormatBound(*floor)))
		}
	}

	r := types.GateResult{Gate: GateRegression, Status: types.StatusPass, Detail: strings.Join(passed, ", ")}
	if len(violated) > 0 {
		r.Status = types.StatusFail
		r.Detail = strings.Join(violated, " and ")
	}
	if fromHistory && ev.in.Baseline.EvaluationID != "" {
		r.Detail += "; baseline " + ev.in.Baseline.EvaluationID
	}
	ev.add(r)
}

// checkLatencyCeiling applies the scenario's own latency rule, which is
// independent from and usually stricter than the revert ceiling.
func checkLatencyCeiling(ev *evaluation) {
	rules := ev.sc.RulesFor("p99_latency_ms")
	if len(rules) == 0 {
		ev.add(types.GateResult{Gate: GateLatency, Status: types.StatusSkip, Detail: "skipped: no latency rule"})
		return
	}
	for _, rule := range rules {
		ev.addRule(GateLatency, rule, *ev.in.Metrics.P99LatencyMs, 2)
	}
}

// checkRates applies the error-rate and conflict-rate rules, then any other
// record-level rule in configuration order.
func checkRates(ev *evaluation) {
	for _, name := range []string{"error_rate", "conflict_rate"} {
		rules := ev.sc.RulesFor(name)
		if len(rules) == 0 {
			ev.add(types.GateResult{Gate: gateName(name), Status: types.StatusSkip, Detail: "skipped: no rule"})
			continue
		}
		for _, rule := range rules {
			ev.addMetricRule(rule)
		}
	}

	var others []types.ThresholdRule
	for _, rule := range ev.sc.Rules {
		switch {
		case rule.Metric == "error_rate", rule.Metric == "conflict_rate", rule.Metric == "p99_latency_ms":
		case types.IsPhaseMetric(rule.Metric):
		default:
			others = append(others, rule)
		}
	}
	for _, rule := range others {
		ev.addMetricRule(rule)
	}
}

func (ev *evaluation) addMetricRule(rule types.ThresholdRule) {
	m := ev.in.Metrics
	value, ok := m.Value(rule.Metric)
	if !ok {
		reason := "no tracked requests"
		if m.TrackedRequests > 0 {
			reason = fmt.Sprintf("unknown at %s precision", m.Precision)
		}
		ev.add(types.GateResult{
			Gate:   gateName(rule.Metric),
			Status: types.StatusWarning,
			Detail: fmt.Sprintf("%s undefined: %s", rule.Metric, reason),
		})
		return
	}
	ev.addRule(gateName(rule.Metric), rule, value, decimalsFor(rule.Metric))
}

func gateName(metric string) string {
	return strings.ReplaceAll(metric, "_", " ")
}

func decimalsFor(metric string) int {
	if strings.HasSuffix(metric, "_rate") {
		return 6
	}
	if strings.HasSuffix(metric, "_requests") {
		return 0
	}
	return 2
}
