package phase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/duke-git/lancet/v2/slice"

	"yqhp/perf-gate/pkg/types"
)

// ErrNoSustainPhase is returned when sustain_phase_rps is selected but no
// phase qualified as the sustain phase for the profile.
var ErrNoSustainPhase = errors.New("no sustain phase for profile")

// DefaultAllowedMetrics is the built-in allowed-metric list per profile.
// A burst run is never gated on its transient peak.
var DefaultAllowedMetrics = map[types.LoadProfile][]types.PhaseMetric{
	types.ProfileSteady:     {types.MetricWeightedRPS, types.MetricSustainPhaseRPS},
	types.ProfileRampUpDown: {types.MetricSustainPhaseRPS, types.MetricWeightedRPS},
	types.ProfileStepUp:     {types.MetricSustainPhaseRPS, types.MetricPeakPhaseRPS},
	types.ProfileBurst:      {types.MetricWeightedRPS, types.MetricMinPhaseRPS},
}

// Builder derives PhaseMetrics for one load profile.
type Builder struct {
	profile types.LoadProfile
	roles   map[string]types.PhaseRole
}

// NewBuilder creates a builder. roles maps phase names to roles and takes
// precedence over naming conventions but not over a role stored in the record.
func NewBuilder(profile types.LoadProfile, roles map[string]types.PhaseRole) *Builder {
	return &Builder{profile: profile, roles: roles}
}

// Role resolves the role of a phase.
func (b *Builder) Role(p types.PhaseResult) types.PhaseRole {
	if p.Role != "" {
		return p.Role
	}
	if r, ok := b.roles[p.PhaseName]; ok {
		return r
	}
	name := strings.ToLower(p.PhaseName)
	switch {
	case strings.Contains(name, "plateau"), strings.Contains(name, "hold"):
		return types.RolePlateau
	case strings.HasPrefix(name, "burst"), strings.HasPrefix(name, "spike"):
		return types.RoleBurst
	case strings.Contains(name, "sustain"), strings.Contains(name, "main"), strings.Contains(name, "steady"):
		return types.RoleMain
	case strings.Contains(name, "ramp"), strings.Contains(name, "warm"), strings.Contains(name, "cool"):
		return types.RoleRamp
	}
	return ""
}

// Build computes the composite figures from the phases of a run. Without
// phases it falls back to the run-level throughput; with neither it returns
// types.ErrNoData, never a zero.
func (b *Builder) Build(phases []types.PhaseResult, runLevelRPS *float64) (*types.PhaseMetrics, error) {
	if len(phases) == 0 {
		if runLevelRPS == nil {
			return nil, types.ErrNoData
		}
		rps := *runLevelRPS
		return &types.PhaseMetrics{
			PhaseCount:      1,
			PeakPhaseRPS:    rps,
			MinPhaseRPS:     rps,
			WeightedRPS:     rps,
			SustainPhaseRPS: rps,
			Fallback:        true,
		}, nil
	}

	pm := &types.PhaseMetrics{
		PhaseCount:   len(phases),
		PeakPhaseRPS: phases[0].ActualRPS,
		MinPhaseRPS:  phases[0].ActualRPS,
		WeightedRPS:  weightedRPS(phases),
	}
	for _, p := range phases[1:] {
		if p.ActualRPS > pm.PeakPhaseRPS {
			pm.PeakPhaseRPS = p.ActualRPS
		}
		if p.ActualRPS < pm.MinPhaseRPS {
			pm.MinPhaseRPS = p.ActualRPS
		}
	}
	if sustain, ok := b.sustain(phases); ok {
		pm.SustainPhase = sustain.PhaseName
		pm.SustainPhaseRPS = sustain.ActualRPS
	}
	return pm, nil
}

// weightedRPS is Σ(rps·d)/Σd, computed as an offset from the first phase so
// that phases of identical throughput yield exactly that throughput. When
// every duration is zero it degrades to the arithmetic mean.
func weightedRPS(phases []types.PhaseResult) float64 {
	base := phases[0].ActualRPS
	var totalDuration, weighted float64
	for _, p := range phases {
		totalDuration += p.DurationSeconds
		weighted += (p.ActualRPS - base) * p.DurationSeconds
	}
	if totalDuration > 0 {
		return base + weighted/totalDuration
	}
	var sum float64
	for _, p := range phases {
		sum += p.ActualRPS - base
	}
	return base + sum/float64(len(phases))
}

// sustain picks the profile-specific sustain phase.
func (b *Builder) sustain(phases []types.PhaseResult) (types.PhaseResult, bool) {
	switch b.profile {
	case types.ProfileSteady:
		if len(phases) == 1 {
			return phases[0], true
		}
		return b.first(phases, types.RoleMain)
	case types.ProfileRampUpDown:
		return b.first(phases, types.RolePlateau)
	case types.ProfileStepUp:
		return phases[len(phases)-1], true
	case types.ProfileBurst:
		var best types.PhaseResult
		found := false
		for _, p := range phases {
			if b.Role(p) == types.RoleBurst && (!found || p.ActualRPS > best.ActualRPS) {
				best, found = p, true
			}
		}
		return best, found
	}
	return types.PhaseResult{}, false
}

func (b *Builder) first(phases []types.PhaseResult, role types.PhaseRole) (types.PhaseResult, bool) {
	for _, p := range phases {
		if b.Role(p) == role {
			return p, true
		}
	}
	return types.PhaseResult{}, false
}

// AllowedMetrics returns the phase metrics a scenario may gate on.
func AllowedMetrics(sc *types.ScenarioConfig) []types.PhaseMetric {
	if len(sc.AllowedMetrics) > 0 {
		return sc.AllowedMetrics
	}
	return DefaultAllowedMetrics[sc.Profile]
}

// Select returns the allowed composite figure named metric. Requesting a
// metric the scenario's profile does not allow is types.ErrInvalidMetric,
// never a fallback to another figure.
func Select(pm *types.PhaseMetrics, sc *types.ScenarioConfig, metric types.PhaseMetric) (float64, error) {
	allowed := AllowedMetrics(sc)
	if !slice.Contain(allowed, metric) {
		return 0, fmt.Errorf("%w: %s is not allowed for profile %s (allowed: %v)", types.ErrInvalidMetric, metric, sc.Profile, allowed)
	}
	switch metric {
	case types.MetricPeakPhaseRPS:
		return pm.PeakPhaseRPS, nil
	case types.MetricMinPhaseRPS:
		return pm.MinPhaseRPS, nil
	case types.MetricWeightedRPS:
		return pm.WeightedRPS, nil
	case types.MetricSustainPhaseRPS:
		if pm.SustainPhase == "" && !pm.Fallback {
			return 0, fmt.Errorf("%w %s", ErrNoSustainPhase, sc.Profile)
		}
		return pm.SustainPhaseRPS, nil
	}
	return 0, fmt.Errorf("%w: %s", types.ErrInvalidMetric, metric)
}
