package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrFieldMissing is returned when a required result field is absent.
	ErrFieldMissing = errors.New("field not found")

	// ErrFieldType is returned when a result field has the wrong JSON type.
	ErrFieldType = errors.New("field has wrong type")

	// ErrFieldNegative is returned when a count field is negative or fractional.
	ErrFieldNegative = errors.New("field must be a non-negative integer")

	// ErrFieldRange is returned when a count does not fit in an int64.
	ErrFieldRange = errors.New("field exceeds the int64 range")

	// ErrInvalidThreshold is returned for a malformed threshold rule.
	ErrInvalidThreshold = errors.New("invalid threshold rule")

	// ErrUnknownScenario is returned when no configuration exists for a scenario.
	ErrUnknownScenario = errors.New("unknown scenario")

	// ErrInvalidMetric is returned when a scenario gates on a metric its profile does not allow.
	ErrInvalidMetric = errors.New("INVALID_METRIC")

	// ErrNoData is returned when neither phase results nor a run-level throughput exist.
	ErrNoData = errors.New("no throughput data")
)

// ConfigurationError is missing or malformed input: a tooling problem, never a regression.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ExitCode implements ExitCoder.
func (e *ConfigurationError) ExitCode() int { return ExitMalformed }

// ContractViolation means a write produced a status code it must never produce.
type ContractViolation struct {
	Scenario  string
	Operation OperationKind
	// Codes maps each offending status code to its count.
	Codes map[int]int64
}

func (e *ContractViolation) Error() string {
	codes := make([]int, 0, len(e.Codes))
	for c := range e.Codes {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	parts := make([]string, 0, len(codes))
	for _, c := range codes {
		parts = append(parts, fmt.Sprintf("%d x%d", c, e.Codes[c]))
	}
	return fmt.Sprintf("contract violation: %s (%s) produced validation errors [%s]",
		e.Scenario, e.Operation, strings.Join(parts, ", "))
}

// ExitCode implements ExitCoder.
func (e *ContractViolation) ExitCode() int { return ExitFailure }

// ThresholdViolation is a metric outside its error bound.
type ThresholdViolation struct {
	Metric     string
	Value      float64
	Bound      float64
	Comparator Comparator
}

func (e *ThresholdViolation) Error() string {
	return fmt.Sprintf("threshold violation: %s = %.4f (must be %s %.2f)", e.Metric, e.Value, e.Comparator, e.Bound)
}

// ExitCode implements ExitCoder.
func (e *ThresholdViolation) ExitCode() int { return ExitFailure }

// Inconsistency is a reconciliation mismatch between totals and their parts.
// It is reported as a warning and escalated only by the batch validator.
type Inconsistency struct {
	Total         int64
	Tracked       int64
	Excluded      int64
	NetworkErrors int64
}

func (e *Inconsistency) Error() string {
	return fmt.Sprintf("inconsistent totals: tracked %d + excluded %d + network errors %d != total %d",
		e.Tracked, e.Excluded, e.NetworkErrors, e.Total)
}

// ExitCoder is an error that carries a process exit code.
type ExitCoder interface {
	error
	ExitCode() int
}
