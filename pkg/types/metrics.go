package types

// Precision records which merge path produced the counts of a MergedMetrics.
type Precision string

const (
	// PrecisionPerWorker means per-worker counter sets were merged.
	PrecisionPerWorker Precision = "per_worker"
	// PrecisionHistogram means the run record's status histogram was used.
	PrecisionHistogram Precision = "histogram"
	// PrecisionCoarse means only the harness' coarse non-2xx counter was available.
	// The client/server error split is unknown at this precision.
	PrecisionCoarse Precision = "coarse"
	// PrecisionNone means no request telemetry was found at all.
	PrecisionNone Precision = "none"
)

// MergedMetrics is the canonical metrics record of one run.
//
// TrackedRequests is always the sum of StatusCounts. Rates are nil when
// undefined, never zero: a run that recorded nothing must not report a 0%
// error rate.
type MergedMetrics struct {
	Precision Precision `json:"precision"`

	TotalRequests    int64 `json:"total_requests"`
	TrackedRequests  int64 `json:"tracked_requests"`
	ExcludedRequests int64 `json:"excluded_requests"`
	NetworkErrors    int64 `json:"network_errors"`
	RetryCount       int64 `json:"retry_count"`

	StatusCounts       map[int]int64           `json:"status_counts"`
	NetworkErrorCounts map[ErrorCategory]int64 `json:"network_error_counts,omitempty"`
	ExcludedCounts     map[ExclusionKind]int64 `json:"excluded_counts,omitempty"`

	SuccessRate      *float64 `json:"success_rate"`
	ConflictRate     *float64 `json:"conflict_rate"`
	ClientErrorRate  *float64 `json:"client_error_rate"`
	ServerErrorRate  *float64 `json:"server_error_rate"`
	ErrorRate        *float64 `json:"error_rate"`
	HTTPErrorRate    *float64 `json:"http_error_rate"`
	NetworkErrorRate *float64 `json:"network_error_rate"`

	// P99LatencyMs is nil when neither histograms nor a recorded p99 exist.
	P99LatencyMs *float64 `json:"p99_latency_ms"`

	Consistent    bool   `json:"consistent"`
	Inconsistency string `json:"inconsistency,omitempty"`
}

// Ratio returns n/d, or nil when d is not positive.
func Ratio(n, d int64) *float64 {
	if d <= 0 {
		return nil
	}
	v := float64(n) / float64(d)
	return &v
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Value returns the metric with the given name, and false when it is
// unknown or undefined for this record.
func (m *MergedMetrics) Value(name string) (float64, bool) {
	var p *float64
	switch name {
	case "success_rate":
		p = m.SuccessRate
	case "conflict_rate":
		p = m.ConflictRate
	case "client_error_rate":
		p = m.ClientErrorRate
	case "server_error_rate":
		p = m.ServerErrorRate
	case "error_rate":
		p = m.ErrorRate
	case "http_error_rate":
		p = m.HTTPErrorRate
	case "network_error_rate":
		p = m.NetworkErrorRate
	case "p99_latency_ms":
		p = m.P99LatencyMs
	case "total_requests":
		return float64(m.TotalRequests), true
	case "tracked_requests":
		return float64(m.TrackedRequests), true
	case "excluded_requests":
		return float64(m.ExcludedRequests), true
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// MetricNames lists the record-level metrics a threshold rule may name,
// in addition to the PhaseMetricNames.
var MetricNames = []string{
	"success_rate",
	"conflict_rate",
	"client_error_rate",
	"server_error_rate",
	"error_rate",
	"http_error_rate",
	"network_error_rate",
	"p99_latency_ms",
	"total_requests",
	"tracked_requests",
	"excluded_requests",
}

// IsKnownMetric reports whether name can be used in a threshold rule.
func IsKnownMetric(name string) bool {
	if IsPhaseMetric(name) {
		return true
	}
	for _, m := range MetricNames {
		if m == name {
			return true
		}
	}
	return false
}
