package types

import "fmt"

// Comparator is the direction a threshold bound is checked in.
type Comparator string

const (
	// AtLeast passes when value >= bound.
	AtLeast Comparator = ">="
	// AtMost passes when value <= bound.
	AtMost Comparator = "<="
)

// IsValid reports whether c is a known comparator.
func (c Comparator) IsValid() bool {
	return c == AtLeast || c == AtMost
}

// ThresholdRule is one declarative bound on a metric.
// Both bounds are inclusive: a value exactly at a bound passes that bound.
type ThresholdRule struct {
	Metric     string     `yaml:"metric" json:"metric"`
	Warning    *float64   `yaml:"warning,omitempty" json:"warning,omitempty"`
	Error      *float64   `yaml:"error,omitempty" json:"error,omitempty"`
	Comparator Comparator `yaml:"comparator" json:"comparator"`
}

// RuleOutcome is the result of checking a value against a rule.
type RuleOutcome struct {
	Status GateStatus
	// Bound is the bound cited in the report line: the one that tripped,
	// or the tightest one that passed.
	Bound float64
}

// passes reports whether value satisfies bound under the rule's comparator.
func (r ThresholdRule) passes(value, bound float64) bool {
	if r.Comparator == AtMost {
		return value <= bound
	}
	return value >= bound
}

// Evaluate checks value against the rule's error and warning bounds.
func (r ThresholdRule) Evaluate(value float64) RuleOutcome {
	if r.Error != nil && !r.passes(value, *r.Error) {
		return RuleOutcome{Status: StatusFail, Bound: *r.Error}
	}
	if r.Warning != nil {
		if !r.passes(value, *r.Warning) {
			return RuleOutcome{Status: StatusWarning, Bound: *r.Warning}
		}
		return RuleOutcome{Status: StatusPass, Bound: *r.Warning}
	}
	if r.Error != nil {
		return RuleOutcome{Status: StatusPass, Bound: *r.Error}
	}
	return RuleOutcome{Status: StatusSkip}
}

// Validate checks that the rule is well formed.
func (r ThresholdRule) Validate() error {
	if r.Metric == "" {
		return fmt.Errorf("%w: rule without metric", ErrInvalidThreshold)
	}
	if !r.Comparator.IsValid() {
		return fmt.Errorf("%w: %s: comparator %q must be >= or <=", ErrInvalidThreshold, r.Metric, r.Comparator)
	}
	if r.Warning == nil && r.Error == nil {
		return fmt.Errorf("%w: %s: at least one of warning or error is required", ErrInvalidThreshold, r.Metric)
	}
	if r.Warning != nil && r.Error != nil {
		// The warning bound must be the stricter of the two.
		if r.Comparator == AtLeast && *r.Warning < *r.Error {
			return fmt.Errorf("%w: %s: warning %.4g is below error %.4g", ErrInvalidThreshold, r.Metric, *r.Warning, *r.Error)
		}
		if r.Comparator == AtMost && *r.Warning > *r.Error {
			return fmt.Errorf("%w: %s: warning %.4g is above error %.4g", ErrInvalidThreshold, r.Metric, *r.Warning, *r.Error)
		}
	}
	return nil
}

// OperationKind is the write method a scenario exercises.
type OperationKind string

const (
	// OperationFullReplace is a full-replace update (PUT).
	OperationFullReplace OperationKind = "full_replace"
	// OperationStatusPatch is a partial status update (PATCH).
	OperationStatusPatch OperationKind = "status_patch"
	// OperationCreate is a create (POST).
	OperationCreate OperationKind = "create"
	// OperationRead is a read-only scenario.
	OperationRead OperationKind = "read"
)

// DefaultValidationErrorCodes are the status codes treated as validation errors.
var DefaultValidationErrorCodes = []int{400, 422}

// MergePathConfig configures the structural-efficiency gate.
type MergePathConfig struct {
	// Required selects the strict variant: missing raw samples are malformed
	// telemetry (exit 2). Defaults to true.
	Required *bool   `yaml:"required,omitempty"`
	MinRatio float64 `yaml:"min_ratio"`
}

// IsRequired reports whether the strict variant applies.
func (c *MergePathConfig) IsRequired() bool {
	return c.Required == nil || *c.Required
}

// RegressionConfig configures the regression guard.
type RegressionConfig struct {
	P99CeilingMs *float64 `yaml:"p99_ceiling_ms,omitempty"`
	RPSFloor     *float64 `yaml:"rps_floor,omitempty"`
	// Metric is the throughput figure compared with the floor.
	// Defaults to the scenario's throughput rule metric, then weighted_rps.
	Metric PhaseMetric `yaml:"metric,omitempty"`
	// MarginPct widens a history-derived baseline: the ceiling becomes
	// p99 * (1 + margin) and the floor rps * (1 - margin).
	MarginPct float64 `yaml:"margin_pct,omitempty"`
	// UseHistory derives missing bounds from the last passing run.
	UseHistory bool `yaml:"use_history,omitempty"`
}

// ScenarioConfig is the gate configuration of one named scenario.
type ScenarioConfig struct {
	Name                 string               `yaml:"-"`
	Operation            OperationKind        `yaml:"operation"`
	Profile              LoadProfile          `yaml:"profile"`
	PhaseRoles           map[string]PhaseRole `yaml:"phase_roles,omitempty"`
	AllowedMetrics       []PhaseMetric        `yaml:"allowed_metrics,omitempty"`
	ValidationErrorCodes []int                `yaml:"validation_error_codes,omitempty"`
	MergePath            *MergePathConfig     `yaml:"merge_path,omitempty"`
	Regression           *RegressionConfig    `yaml:"regression,omitempty"`
	Rules                []ThresholdRule      `yaml:"rules,omitempty"`
}

// ValidationCodes returns the configured validation-error status codes.
func (s *ScenarioConfig) ValidationCodes() []int {
	if len(s.ValidationErrorCodes) > 0 {
		return s.ValidationErrorCodes
	}
	return DefaultValidationErrorCodes
}

// Rule returns the first rule declared for metric, or nil.
func (s *ScenarioConfig) Rule(metric string) *ThresholdRule {
	for i := range s.Rules {
		if s.Rules[i].Metric == metric {
			return &s.Rules[i]
		}
	}
	return nil
}

// RulesFor returns every rule declared for metric in configuration order.
func (s *ScenarioConfig) RulesFor(metric string) []ThresholdRule {
	var out []ThresholdRule
	for _, r := range s.Rules {
		if r.Metric == metric {
			out = append(out, r)
		}
	}
	return out
}

// ThroughputRule returns the first rule declared on a phase metric, or nil.
func (s *ScenarioConfig) ThroughputRule() *ThresholdRule {
	for i := range s.Rules {
		if IsPhaseMetric(s.Rules[i].Metric) {
			return &s.Rules[i]
		}
	}
	return nil
}

// ThroughputRules returns every rule declared on a phase metric in
// configuration order.
func (s *ScenarioConfig) ThroughputRules() []ThresholdRule {
	var out []ThresholdRule
	for _, r := range s.Rules {
		if IsPhaseMetric(r.Metric) {
			out = append(out, r)
		}
	}
	return out
}

// ThresholdConfig is the full threshold configuration file.
type ThresholdConfig struct {
	// AllowedMetrics overrides the built-in allowed-metric list per profile.
	AllowedMetrics map[LoadProfile][]PhaseMetric `yaml:"allowed_metrics,omitempty"`
	Scenarios      map[string]*ScenarioConfig    `yaml:"scenarios"`
}

// Scenario returns a copy of the named scenario with its profile-level
// defaults applied.
func (c *ThresholdConfig) Scenario(name string) (*ScenarioConfig, error) {
	stored, ok := c.Scenarios[name]
	if !ok || stored == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScenario, name)
	}
	sc := *stored
	sc.Name = name
	if len(sc.AllowedMetrics) == 0 {
		if allowed, ok := c.AllowedMetrics[sc.Profile]; ok {
			sc.AllowedMetrics = allowed
		}
	}
	return &sc, nil
}
