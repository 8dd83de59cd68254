package types

// LoadProfile is the declared load shape of a scenario.
type LoadProfile string

const (
	// ProfileSteady holds a constant target rate.
	ProfileSteady LoadProfile = "steady"
	// ProfileBurst alternates a background rate with short bursts.
	ProfileBurst LoadProfile = "burst"
	// ProfileRampUpDown ramps up to a plateau and back down.
	ProfileRampUpDown LoadProfile = "ramp_up_down"
	// ProfileStepUp increases the target rate in discrete steps.
	ProfileStepUp LoadProfile = "step_up"
)

// IsValid reports whether p is a known profile.
func (p LoadProfile) IsValid() bool {
	switch p {
	case ProfileSteady, ProfileBurst, ProfileRampUpDown, ProfileStepUp:
		return true
	}
	return false
}

// PhaseRole marks what a phase represents within its profile.
type PhaseRole string

const (
	// RoleMain is the sustained phase of a steady run.
	RoleMain PhaseRole = "main"
	// RolePlateau is the plateau of a ramp_up_down run.
	RolePlateau PhaseRole = "plateau"
	// RoleBurst is a burst phase of a burst run.
	RoleBurst PhaseRole = "burst"
	// RoleRamp is a transition phase.
	RoleRamp PhaseRole = "ramp"
)

// PhaseResult is the summary of one completed phase. Immutable once written.
type PhaseResult struct {
	PhaseName       string    `json:"phase_name" yaml:"phase_name"`
	TargetRPS       float64   `json:"target_rps" yaml:"target_rps"`
	ActualRPS       float64   `json:"actual_rps" yaml:"actual_rps"`
	DurationSeconds float64   `json:"duration_seconds" yaml:"duration_seconds"`
	Role            PhaseRole `json:"role,omitempty" yaml:"role,omitempty"`
}

// PhaseMetric names one of the composite throughput figures.
type PhaseMetric string

const (
	MetricPeakPhaseRPS    PhaseMetric = "peak_phase_rps"
	MetricMinPhaseRPS     PhaseMetric = "min_phase_rps"
	MetricWeightedRPS     PhaseMetric = "weighted_rps"
	MetricSustainPhaseRPS PhaseMetric = "sustain_phase_rps"
)

// PhaseMetricNames lists every composite metric name.
var PhaseMetricNames = []PhaseMetric{
	MetricPeakPhaseRPS,
	MetricMinPhaseRPS,
	MetricWeightedRPS,
	MetricSustainPhaseRPS,
}

// IsPhaseMetric reports whether name is one of the composite throughput figures.
func IsPhaseMetric(name string) bool {
	for _, m := range PhaseMetricNames {
		if string(m) == name {
			return true
		}
	}
	return false
}

// PhaseMetrics holds the composite throughput figures derived from a run's phases.
// It is recomputed on every evaluation and never trusted from a prior run.
type PhaseMetrics struct {
	PhaseCount      int     `json:"phase_count"`
	PeakPhaseRPS    float64 `json:"peak_phase_rps"`
	MinPhaseRPS     float64 `json:"min_phase_rps"`
	WeightedRPS     float64 `json:"weighted_rps"`
	SustainPhaseRPS float64 `json:"sustain_phase_rps"`
	// SustainPhase names the phase sustain_phase_rps was taken from.
	// Empty when no phase qualified for the profile.
	SustainPhase string `json:"sustain_phase,omitempty"`
	// Fallback is set when the figures come from the run-level throughput.
	Fallback bool `json:"fallback,omitempty"`
}
