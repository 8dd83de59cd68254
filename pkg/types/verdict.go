package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Process exit codes consumed by CI.
const (
	ExitPass      = 0
	ExitInvariant = 1
	ExitMalformed = 2
	ExitFailure   = 3
)

// GateStatus is the outcome of a single gate or of a whole evaluation.
type GateStatus string

const (
	StatusPass    GateStatus = "PASS"
	StatusWarning GateStatus = "WARNING"
	StatusFail    GateStatus = "FAIL"
	// StatusSkip is a gate that did not apply. It is reported as PASS.
	StatusSkip GateStatus = "SKIP"
)

// Label returns the status word printed on a report line.
func (s GateStatus) Label() string {
	if s == StatusSkip {
		return string(StatusPass)
	}
	return string(s)
}

// GateResult is one line of the evaluation report.
type GateResult struct {
	Gate       string     `json:"gate"`
	Status     GateStatus `json:"status"`
	Metric     string     `json:"metric,omitempty"`
	Value      *float64   `json:"value,omitempty"`
	Comparator Comparator `json:"comparator,omitempty"`
	Bound      *float64   `json:"bound,omitempty"`
	// Decimals is the precision the value is printed with.
	Decimals int `json:"-"`
	// Detail replaces the metric comparison when there is no single value to cite.
	Detail string `json:"detail,omitempty"`
	// ExitCode is non-zero for a failing result: 2 for malformed input, 3 otherwise.
	ExitCode int `json:"exit_code,omitempty"`
}

// Line renders the result as a report line.
func (r GateResult) Line() string {
	var b strings.Builder
	b.WriteString(r.Status.Label())
	b.WriteString(": ")
	b.WriteString(r.Gate)

	var inner string
	if r.Metric != "" && r.Value != nil {
		value := fmt.Sprintf("%s = %.*f", r.Metric, r.Decimals, *r.Value)
		switch {
		case r.Bound == nil:
			inner = value
		case r.Status == StatusPass:
			inner = fmt.Sprintf("%s %s %s", value, r.Comparator, FormatBound(*r.Bound))
		default:
			inner = fmt.Sprintf("%s (must be %s %s)", value, r.Comparator, FormatBound(*r.Bound))
		}
	}
	if r.Detail != "" {
		if inner != "" {
			inner += "; "
		}
		inner += r.Detail
	}
	if inner != "" {
		b.WriteString(" (")
		b.WriteString(inner)
		b.WriteString(")")
	}
	return b.String()
}

// FormatBound prints a bound with two decimals, or with as many as it
// needs when two would round it.
func FormatBound(b float64) string {
	s := strconv.FormatFloat(b, 'f', 2, 64)
	if v, err := strconv.ParseFloat(s, 64); err == nil && v == b {
		return s
	}
	return strconv.FormatFloat(b, 'f', -1, 64)
}

// GateVerdict is the terminal output of one evaluation.
type GateVerdict struct {
	ID          string         `json:"id"`
	Scenario    string         `json:"scenario"`
	Status      GateStatus     `json:"status"`
	ExitCode    int            `json:"exit_code"`
	Messages    []string       `json:"messages"`
	Results     []GateResult   `json:"results"`
	Halted      bool           `json:"halted,omitempty"`
	Metrics     *MergedMetrics `json:"metrics,omitempty"`
	Phases      *PhaseMetrics  `json:"phases,omitempty"`
	EvaluatedAt time.Time      `json:"evaluated_at"`
}

// Summary returns the final verdict line.
func (v *GateVerdict) Summary() string {
	var fails, warns int
	for _, r := range v.Results {
		switch r.Status {
		case StatusFail:
			fails++
		case StatusWarning:
			warns++
		}
	}
	switch {
	case v.Halted:
		return fmt.Sprintf("VERDICT: FAIL (exit %d): evaluation stopped on malformed input", v.ExitCode)
	case fails > 0:
		return fmt.Sprintf("VERDICT: FAIL (exit %d): %d gate(s) failed, %d warning(s)", v.ExitCode, fails, warns)
	case warns > 0:
		return fmt.Sprintf("VERDICT: WARNING (exit %d): %d warning(s)", v.ExitCode, warns)
	}
	return fmt.Sprintf("VERDICT: PASS (exit %d)", v.ExitCode)
}

// Lines returns every report line in evaluation order, ending with the verdict.
func (v *GateVerdict) Lines() []string {
	lines := make([]string, 0, len(v.Results)+1)
	for _, r := range v.Results {
		lines = append(lines, r.Line())
	}
	return append(lines, v.Summary())
}
