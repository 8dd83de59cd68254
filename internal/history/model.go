package history

import (
	"time"

	"yqhp/perf-gate/internal/gate"
	"yqhp/perf-gate/pkg/types"
)

// VerdictRecord 历史判定记录
type VerdictRecord struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	EvaluationID    string    `gorm:"size:36;uniqueIndex;not null" json:"evaluation_id"`
	Scenario        string    `gorm:"size:100;index:idx_scenario_status;not null" json:"scenario"`
	Status          string    `gorm:"size:10;index:idx_scenario_status;not null" json:"status"`
	ExitCode        int       `gorm:"not null" json:"exit_code"`
	Precision       string    `gorm:"size:20" json:"precision"`
	TotalRequests   int64     `json:"total_requests"`
	P99LatencyMs    *float64  `json:"p99_latency_ms"`
	PeakPhaseRPS    *float64  `json:"peak_phase_rps"`
	MinPhaseRPS     *float64  `json:"min_phase_rps"`
	WeightedRPS     *float64  `json:"weighted_rps"`
	SustainPhaseRPS *float64  `json:"sustain_phase_rps"`
	Report          string    `gorm:"type:text" json:"report"`
	EvaluatedAt     time.Time `gorm:"index;not null" json:"evaluated_at"`
}

// TableName 表名
func (VerdictRecord) TableName() string {
	return "pg_verdict_history"
}

// FromVerdict 把判定结果转换为历史记录
func FromVerdict(v *types.GateVerdict) *VerdictRecord {
	rec := &VerdictRecord{
		EvaluationID: v.ID,
		Scenario:     v.Scenario,
		Status:       string(v.Status),
		ExitCode:     v.ExitCode,
		EvaluatedAt:  v.EvaluatedAt,
	}
	for i, line := range v.Messages {
		if i > 0 {
			rec.Report += "\n"
		}
		rec.Report += line
	}
	if m := v.Metrics; m != nil {
		rec.Precision = string(m.Precision)
		rec.TotalRequests = m.TotalRequests
		rec.P99LatencyMs = m.P99LatencyMs
	}
	if p := v.Phases; p != nil {
		rec.PeakPhaseRPS = types.Float(p.PeakPhaseRPS)
		rec.MinPhaseRPS = types.Float(p.MinPhaseRPS)
		rec.WeightedRPS = types.Float(p.WeightedRPS)
		if p.SustainPhase != "" || p.Fallback {
			rec.SustainPhaseRPS = types.Float(p.SustainPhaseRPS)
		}
	}
	return rec
}

// Baseline 把历史记录转换为回归基线
func (r *VerdictRecord) Baseline() *gate.Baseline {
	b := &gate.Baseline{
		EvaluationID: r.EvaluationID,
		P99LatencyMs: r.P99LatencyMs,
		RPS:          make(map[types.PhaseMetric]float64),
	}
	for metric, v := range map[types.PhaseMetric]*float64{
		types.MetricPeakPhaseRPS:    r.PeakPhaseRPS,
		types.MetricMinPhaseRPS:     r.MinPhaseRPS,
		types.MetricWeightedRPS:     r.WeightedRPS,
		types.MetricSustainPhaseRPS: r.SustainPhaseRPS,
	} {
		if v != nil {
			b.RPS[metric] = *v
		}
	}
	return b
}
