package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// RunRecord is one per-run result record as written by the load harness.
//
// The record is kept as decoded JSON so that malformed or missing fields
// can be reported precisely instead of silently decoding to zero. Numbers
// are expected as json.Number; plain Go numbers are accepted too.
type RunRecord struct {
	// Scenario is the scenario name the record was loaded for.
	Scenario string
	// Path is the file the record was read from, if any.
	Path string

	raw map[string]any
}

// NewRunRecord wraps a decoded JSON object.
func NewRunRecord(raw map[string]any) *RunRecord {
	if raw == nil {
		raw = make(map[string]any)
	}
	return &RunRecord{raw: raw}
}

// Raw returns the underlying decoded object.
func (r *RunRecord) Raw() map[string]any {
	return r.raw
}

// Has reports whether key is present and not null.
func (r *RunRecord) Has(key string) bool {
	v, ok := r.raw[key]
	return ok && v != nil
}

// Float returns a numeric field.
func (r *RunRecord) Float(key string) (float64, error) {
	v, ok := r.raw[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%s: %w", key, ErrFieldMissing)
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("%s: %w", key, ErrFieldType)
	}
	return f, nil
}

// OptionalFloat returns a numeric field, or nil when it is absent.
func (r *RunRecord) OptionalFloat(key string) (*float64, error) {
	if !r.Has(key) {
		return nil, nil
	}
	f, err := r.Float(key)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Count returns a non-negative integer field.
func (r *RunRecord) Count(key string) (int64, error) {
	v, ok := r.raw[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%s: %w", key, ErrFieldMissing)
	}
	n, err := toCount(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// Object returns a nested object field.
func (r *RunRecord) Object(key string) (*RunRecord, error) {
	v, ok := r.raw[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%s: %w", key, ErrFieldMissing)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrFieldType)
	}
	return &RunRecord{Scenario: r.Scenario, Path: r.Path, raw: m}, nil
}

// Counts returns an object of non-negative integer counts.
// The second result is false when the field is absent.
func (r *RunRecord) Counts(key string) (map[string]int64, bool, error) {
	if !r.Has(key) {
		return nil, false, nil
	}
	obj, err := r.Object(key)
	if err != nil {
		return nil, true, err
	}
	out := make(map[string]int64, len(obj.raw))
	for k := range obj.raw {
		n, err := obj.Count(k)
		if err != nil {
			return nil, true, fmt.Errorf("%s.%w", key, err)
		}
		out[k] = n
	}
	return out, true, nil
}

// IsRunRecord reports whether the object carries request accounting at all.
// Other JSON artifacts in a result tree, such as verdict files, do not.
func (r *RunRecord) IsRunRecord() bool {
	return r.Has("requests") || r.Has("status_counts")
}

// Requests returns the total number of requests the harness issued.
func (r *RunRecord) Requests() (int64, error) {
	return r.Count("requests")
}

// StatusCounts returns the status-code histogram.
func (r *RunRecord) StatusCounts() (map[int]int64, bool, error) {
	counts, ok, err := r.Counts("status_counts")
	if !ok || err != nil {
		return nil, ok, err
	}
	out := make(map[int]int64, len(counts))
	for k, n := range counts {
		code, err := strconv.Atoi(k)
		if err != nil || code < 100 || code > 599 {
			return nil, true, fmt.Errorf("status_counts.%s: %w", k, ErrFieldType)
		}
		out[code] = n
	}
	return out, true, nil
}

// SocketErrors returns the run-level socket-error counters.
func (r *RunRecord) SocketErrors() (map[ErrorCategory]int64, bool, error) {
	counts, ok, err := r.Counts("socket_errors")
	if !ok || err != nil {
		return nil, ok, err
	}
	out := make(map[ErrorCategory]int64, len(counts))
	for k, n := range counts {
		out[ErrorCategory(k)] = n
	}
	return out, true, nil
}

// Excluded returns the backoff/suppressed/fallback counters.
func (r *RunRecord) Excluded() (map[ExclusionKind]int64, bool, error) {
	counts, ok, err := r.Counts("excluded")
	if !ok || err != nil {
		return nil, ok, err
	}
	out := make(map[ExclusionKind]int64, len(counts))
	for k, n := range counts {
		out[ExclusionKind(k)] = n
	}
	return out, true, nil
}

// Non2xx returns the coarse non-2xx counter, when the harness wrote one.
func (r *RunRecord) Non2xx() (int64, bool, error) {
	if !r.Has("non_2xx") {
		return 0, false, nil
	}
	n, err := r.Count("non_2xx")
	return n, true, err
}

// P99LatencyMs returns the recorded p99 latency, or nil. Both the flat
// p99_latency_ms field and the latency_ms.p99 percentile block are accepted.
func (r *RunRecord) P99LatencyMs() (*float64, error) {
	if r.Has("p99_latency_ms") || !r.Has("latency_ms") {
		return r.OptionalFloat("p99_latency_ms")
	}
	block, err := r.Object("latency_ms")
	if err != nil {
		return nil, err
	}
	p99, err := block.OptionalFloat("p99")
	if err != nil {
		return nil, fmt.Errorf("latency_ms.%w", err)
	}
	return p99, nil
}

// RPS returns the run-level throughput: the rps field when present,
// otherwise requests / duration_seconds. Nil when neither can be derived.
func (r *RunRecord) RPS() (*float64, error) {
	if r.Has("rps") {
		return r.OptionalFloat("rps")
	}
	if !r.Has("requests") || !r.Has("duration_seconds") {
		return nil, nil
	}
	req, err := r.Requests()
	if err != nil {
		return nil, err
	}
	d, err := r.Float("duration_seconds")
	if err != nil {
		return nil, err
	}
	if d <= 0 {
		return nil, nil
	}
	v := float64(req) / d
	return &v, nil
}

// Phases returns the phase sub-records embedded in the run record.
func (r *RunRecord) Phases() ([]PhaseResult, error) {
	v, ok := r.raw["phases"]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("phases: %w", ErrFieldType)
	}
	out := make([]PhaseResult, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("phases[%d]: %w", i, ErrFieldType)
		}
		p, err := PhaseFromRecord(NewRunRecord(m))
		if err != nil {
			return nil, fmt.Errorf("phases[%d].%w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// PhaseFromRecord decodes one phase summary.
func PhaseFromRecord(r *RunRecord) (PhaseResult, error) {
	var p PhaseResult
	name, ok := r.raw["phase_name"].(string)
	if !ok || name == "" {
		return p, fmt.Errorf("phase_name: %w", ErrFieldMissing)
	}
	p.PhaseName = name
	var err error
	if p.ActualRPS, err = r.Float("actual_rps"); err != nil {
		return p, err
	}
	if p.DurationSeconds, err = r.Float("duration_seconds"); err != nil {
		return p, err
	}
	if r.Has("target_rps") {
		if p.TargetRPS, err = r.Float("target_rps"); err != nil {
			return p, err
		}
	}
	if role, ok := r.raw["role"].(string); ok {
		p.Role = PhaseRole(role)
	}
	if p.ActualRPS < 0 || p.DurationSeconds < 0 {
		return p, fmt.Errorf("%s: %w", name, ErrFieldNegative)
	}
	return p, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toCount(v any) (int64, error) {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			if i < 0 {
				return 0, ErrFieldNegative
			}
			return i, nil
		}
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, ErrFieldType
	}
	if f < 0 || f != math.Trunc(f) || math.IsNaN(f) {
		return 0, ErrFieldNegative
	}
	// 2^63 is the first float64 that no longer converts.
	if f >= math.MaxInt64 {
		return 0, ErrFieldRange
	}
	return int64(f), nil
}
