package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"yqhp/perf-gate/pkg/types"
)

func ph(name string, rps, d float64) types.PhaseResult {
	return types.PhaseResult{PhaseName: name, TargetRPS: rps, ActualRPS: rps, DurationSeconds: d}
}

func TestBuildComposite(t *testing.T) {
	phases := []types.PhaseResult{
		ph("ramp_up", 100, 30),
		ph("plateau", 400, 120),
		ph("ramp_down", 100, 30),
	}
	pm, err := NewBuilder(types.ProfileRampUpDown, nil).Build(phases, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, pm.PhaseCount)
	assert.Equal(t, 400.0, pm.PeakPhaseRPS)
	assert.Equal(t, 100.0, pm.MinPhaseRPS)
	assert.InDelta(t, (100*30+400*120+100*30)/180.0, pm.WeightedRPS, 1e-9)
	assert.Equal(t, 400.0, pm.SustainPhaseRPS)
	assert.Equal(t, "plateau", pm.SustainPhase)
	assert.False(t, pm.Fallback)
}

func TestSustainPerProfile(t *testing.T) {
	tests := []struct {
		name    string
		profile types.LoadProfile
		roles   map[string]types.PhaseRole
		phases  []types.PhaseResult
		sustain string
		rps     float64
	}{
		{
			name:    "steady main phase",
			profile: types.ProfileSteady,
			phases:  []types.PhaseResult{ph("warmup", 50, 10), ph("main", 300, 60), ph("cooldown", 50, 10)},
			sustain: "main", rps: 300,
		},
		{
			name:    "steady single phase",
			profile: types.ProfileSteady,
			phases:  []types.PhaseResult{ph("only", 250, 60)},
			sustain: "only", rps: 250,
		},
		{
			name:    "step_up last step",
			profile: types.ProfileStepUp,
			phases:  []types.PhaseResult{ph("step-1", 100, 30), ph("step-2", 200, 30), ph("step-3", 280, 30)},
			sustain: "step-3", rps: 280,
		},
		{
			name:    "burst max among bursts",
			profile: types.ProfileBurst,
			phases:  []types.PhaseResult{ph("background", 900, 60), ph("burst-1", 500, 5), ph("burst-2", 700, 5)},
			sustain: "burst-2", rps: 700,
		},
		{
			name:    "configured role",
			profile: types.ProfileRampUpDown,
			roles:   map[string]types.PhaseRole{"p2": types.RolePlateau},
			phases:  []types.PhaseResult{ph("p1", 10, 10), ph("p2", 90, 10), ph("p3", 10, 10)},
			sustain: "p2", rps: 90,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm, err := NewBuilder(tt.profile, tt.roles).Build(tt.phases, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.sustain, pm.SustainPhase)
			assert.Equal(t, tt.rps, pm.SustainPhaseRPS)
		})
	}
}

func TestRoleResolutionOrder(t *testing.T) {
	b := NewBuilder(types.ProfileSteady, map[string]types.PhaseRole{"hold": types.RoleMain})

	explicit := ph("hold", 1, 1)
	explicit.Role = types.RoleBurst
	assert.Equal(t, types.RoleBurst, b.Role(explicit))
	assert.Equal(t, types.RoleMain, b.Role(ph("hold", 1, 1)))
	assert.Equal(t, types.RolePlateau, b.Role(ph("plateau_5m", 1, 1)))
	assert.Equal(t, types.RoleBurst, b.Role(ph("spike-2", 1, 1)))
	assert.Equal(t, types.RoleRamp, b.Role(ph("ramp_up", 1, 1)))
	assert.Equal(t, types.PhaseRole(""), b.Role(ph("phase-7", 1, 1)))
}

func TestBuildFallback(t *testing.T) {
	b := NewBuilder(types.ProfileSteady, nil)

	rps := 341.36
	pm, err := b.Build(nil, &rps)
	require.NoError(t, err)
	assert.Equal(t, 1, pm.PhaseCount)
	assert.True(t, pm.Fallback)
	for _, v := range []float64{pm.PeakPhaseRPS, pm.MinPhaseRPS, pm.WeightedRPS, pm.SustainPhaseRPS} {
		assert.Equal(t, rps, v)
	}

	_, err = b.Build(nil, nil)
	assert.ErrorIs(t, err, types.ErrNoData)
}

func TestWeightedZeroDurations(t *testing.T) {
	pm, err := NewBuilder(types.ProfileStepUp, nil).Build([]types.PhaseResult{ph("a", 100, 0), ph("b", 300, 0)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 200.0, pm.WeightedRPS)
}

// Phases of any durations that all ran at rps r average to exactly r.
func TestWeightedRPSIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := rapid.Float64Range(0, 1e5).Draw(t, "rps")
		n := rapid.IntRange(1, 20).Draw(t, "phases")
		d := rapid.Float64Range(0.001, 1e4).Draw(t, "duration")
		varied := rapid.Bool().Draw(t, "varied")

		phases := make([]types.PhaseResult, n)
		for i := range phases {
			dur := d
			if varied {
				dur = rapid.Float64Range(0, 1e4).Draw(t, "dur")
			}
			phases[i] = types.PhaseResult{PhaseName: "p", ActualRPS: r, DurationSeconds: dur}
		}
		if got := weightedRPS(phases); got != r {
			t.Fatalf("weighted_rps = %v, want exactly %v", got, r)
		}
	})
}

func TestSelect(t *testing.T) {
	pm := &types.PhaseMetrics{PhaseCount: 3, PeakPhaseRPS: 900, MinPhaseRPS: 200, WeightedRPS: 400, SustainPhaseRPS: 700, SustainPhase: "burst-1"}
	burst := &types.ScenarioConfig{Name: "bursty", Profile: types.ProfileBurst}

	v, err := Select(pm, burst, types.MetricMinPhaseRPS)
	require.NoError(t, err)
	assert.Equal(t, 200.0, v)

	_, err = Select(pm, burst, types.MetricPeakPhaseRPS)
	assert.ErrorIs(t, err, types.ErrInvalidMetric)

	override := &types.ScenarioConfig{Profile: types.ProfileBurst, AllowedMetrics: []types.PhaseMetric{types.MetricPeakPhaseRPS}}
	v, err = Select(pm, override, types.MetricPeakPhaseRPS)
	require.NoError(t, err)
	assert.Equal(t, 900.0, v)
}

func TestSelectMissingSustain(t *testing.T) {
	sc := &types.ScenarioConfig{Profile: types.ProfileSteady}
	pm, err := NewBuilder(types.ProfileSteady, nil).Build([]types.PhaseResult{ph("a", 1, 1), ph("b", 2, 1)}, nil)
	require.NoError(t, err)

	_, err = Select(pm, sc, types.MetricSustainPhaseRPS)
	assert.ErrorIs(t, err, ErrNoSustainPhase)
}
