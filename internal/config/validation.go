package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"yqhp/perf-gate/pkg/types"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration values.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// addError adds a validation error.
func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate validates the application configuration and returns any errors.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	v.validateLogging(cfg)
	v.validateStore(&cfg.Store)
	v.validateHistory(&cfg.History)
	v.validateReporters(&cfg.Reporters)

	if cfg.Validator.Concurrency < 1 {
		v.addError("validator.concurrency", "must be at least 1")
	}

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateLogging(cfg *Config) {
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("invalid level %q, expected debug, info, warn or error", cfg.Logging.Level))
	}
	switch cfg.Logging.Format {
	case "json", "console":
	default:
		v.addError("logging.format", fmt.Sprintf("invalid format %q, expected json or console", cfg.Logging.Format))
	}
	switch cfg.Logging.Output {
	case "stderr", "both":
	case "file":
		if cfg.Logging.FilePath == "" {
			v.addError("logging.file_path", "file_path is required when output is file")
		}
	default:
		v.addError("logging.output", fmt.Sprintf("invalid output %q, expected stderr, file or both", cfg.Logging.Output))
	}
}

func (v *Validator) validateStore(cfg *StoreConfig) {
	switch cfg.Type {
	case "file", "memory":
	case "redis":
		if cfg.Redis.Host == "" {
			v.addError("store.redis.host", "host is required")
		}
		if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
			v.addError("store.redis.port", "port must be between 1 and 65535")
		}
		if cfg.Redis.TTL < 0 {
			v.addError("store.redis.ttl", "ttl must not be negative")
		}
	default:
		v.addError("store.type", fmt.Sprintf("invalid store type %q, expected file, redis or memory", cfg.Type))
	}
}

func (v *Validator) validateHistory(cfg *HistoryConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Driver != "mysql" && cfg.Driver != "postgres" {
		v.addError("history.driver", fmt.Sprintf("unsupported driver %q, expected mysql or postgres", cfg.Driver))
	}
	if cfg.Host == "" {
		v.addError("history.host", "host is required")
	}
	if cfg.Database == "" {
		v.addError("history.database", "database is required")
	}
}

func (v *Validator) validateReporters(cfg *ReportersConfig) {
	if !cfg.Prometheus.Enabled {
		return
	}
	if cfg.Prometheus.PushURL == "" {
		v.addError("reporters.prometheus.push_url", "push_url is required when enabled")
	} else if u, err := url.Parse(cfg.Prometheus.PushURL); err != nil || u.Scheme == "" || u.Host == "" {
		v.addError("reporters.prometheus.push_url", "invalid URL")
	}
	if cfg.Prometheus.Job == "" {
		v.addError("reporters.prometheus.job", "job is required")
	}
}

// ValidateThresholds validates a threshold configuration.
func (v *Validator) ValidateThresholds(tc *types.ThresholdConfig) error {
	v.errors = make(ValidationErrors, 0)

	if len(tc.Scenarios) == 0 {
		v.addError("scenarios", "at least one scenario is required")
	}

	for profile, metrics := range tc.AllowedMetrics {
		field := fmt.Sprintf("allowed_metrics.%s", profile)
		if !profile.IsValid() {
			v.addError(field, "unknown profile")
		}
		v.validateAllowed(field, metrics)
	}

	names := make([]string, 0, len(tc.Scenarios))
	for name := range tc.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v.validateScenario("scenarios."+name, tc.Scenarios[name])
	}

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateAllowed(field string, metrics []types.PhaseMetric) {
	for _, m := range metrics {
		if !types.IsPhaseMetric(string(m)) {
			v.addError(field, fmt.Sprintf("%q is not a phase metric", m))
		}
	}
}

func (v *Validator) validateScenario(field string, sc *types.ScenarioConfig) {
	if sc == nil {
		v.addError(field, "scenario is empty")
		return
	}
	if !sc.Profile.IsValid() {
		v.addError(field+".profile", fmt.Sprintf("unknown profile %q", sc.Profile))
	}
	switch sc.Operation {
	case types.OperationFullReplace, types.OperationStatusPatch, types.OperationCreate, types.OperationRead, "":
	default:
		v.addError(field+".operation", fmt.Sprintf("unknown operation %q", sc.Operation))
	}
	v.validateAllowed(field+".allowed_metrics", sc.AllowedMetrics)

	for role := range sc.PhaseRoles {
		switch sc.PhaseRoles[role] {
		case types.RoleMain, types.RolePlateau, types.RoleBurst, types.RoleRamp:
		default:
			v.addError(field+".phase_roles."+role, fmt.Sprintf("unknown role %q", sc.PhaseRoles[role]))
		}
	}
	for _, code := range sc.ValidationErrorCodes {
		if code < 100 || code > 599 {
			v.addError(field+".validation_error_codes", fmt.Sprintf("%d is not an HTTP status code", code))
		}
	}
	if mp := sc.MergePath; mp != nil {
		if mp.MinRatio < 0 || mp.MinRatio > 1 {
			v.addError(field+".merge_path.min_ratio", "must be between 0 and 1")
		}
	}
	if rg := sc.Regression; rg != nil {
		if rg.MarginPct < 0 {
			v.addError(field+".regression.margin_pct", "must not be negative")
		}
		if rg.Metric != "" && !types.IsPhaseMetric(string(rg.Metric)) {
			v.addError(field+".regression.metric", fmt.Sprintf("%q is not a phase metric", rg.Metric))
		}
		if rg.P99CeilingMs == nil && rg.RPSFloor == nil && !rg.UseHistory {
			v.addError(field+".regression", "declares no ceiling, no floor and no history baseline")
		}
	}
	for i, rule := range sc.Rules {
		ruleField := fmt.Sprintf("%s.rules[%d]", field, i)
		if err := rule.Validate(); err != nil {
			v.addError(ruleField, err.Error())
			continue
		}
		if !types.IsKnownMetric(rule.Metric) {
			v.addError(ruleField, fmt.Sprintf("unknown metric %q", rule.Metric))
		}
	}
}
