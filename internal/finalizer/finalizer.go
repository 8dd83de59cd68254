// Package finalizer turns the merged worker counts into the canonical
// metrics record of a run.
package finalizer

import (
	"go.uber.org/zap"

	"yqhp/perf-gate/internal/aggregator"
	"yqhp/perf-gate/pkg/logger"
	"yqhp/perf-gate/pkg/types"
)

// StatusConflict is the optimistic-concurrency conflict status. It is an
// expected retry signal and is kept out of the error rates.
const StatusConflict = 409

// Input is everything the finalizer needs beyond the merged counts.
type Input struct {
	// Requests is the harness' total request count, when it reported one.
	Requests *int64
	// RecordedP99Ms is the p99 written by the harness, used when no worker
	// histograms exist.
	RecordedP99Ms *float64
}

// Finalize computes rates and reconciliation for one run. Every rate uses
// tracked requests as its denominator and is nil when nothing was tracked.
func Finalize(m *aggregator.Merged, in Input) *types.MergedMetrics {
	out := &types.MergedMetrics{
		Precision:          m.Precision,
		StatusCounts:       m.StatusCounts,
		NetworkErrorCounts: m.NetworkErrorCounts,
		ExcludedCounts:     m.ExcludedCounts,
		ExcludedRequests:   m.TotalExcluded(),
		NetworkErrors:      m.TotalNetworkErrors(),
		RetryCount:         m.RetryCount,
		Consistent:         true,
	}

	if m.Precision == types.PrecisionCoarse {
		finalizeCoarse(out, m.Coarse)
	} else {
		finalizeHistogram(out)
	}

	switch {
	case in.Requests != nil:
		out.TotalRequests = *in.Requests
	case m.Precision == types.PrecisionCoarse:
		out.TotalRequests = m.Coarse.Requests
	default:
		out.TotalRequests = out.TrackedRequests + out.ExcludedRequests + out.NetworkErrors
	}

	if m.NetworkErrorsKnown {
		out.NetworkErrorRate = types.Ratio(out.NetworkErrors, out.TotalRequests)
	}

	out.P99LatencyMs = m.P99LatencyMs()
	if out.P99LatencyMs == nil && in.RecordedP99Ms != nil {
		out.P99LatencyMs = types.Float(*in.RecordedP99Ms)
	}

	reconcile(out)
	return out
}

func finalizeHistogram(out *types.MergedMetrics) {
	counts := out.StatusCounts
	tracked := types.SumStatus(counts)
	out.TrackedRequests = tracked
	if tracked == 0 {
		return
	}

	success := types.SumStatusRange(counts, 200, 300)
	conflict := counts[StatusConflict]
	client := types.SumStatusRange(counts, 400, 500) - conflict
	server := types.SumStatusRange(counts, 500, 600)

	out.SuccessRate = types.Ratio(success, tracked)
	out.ConflictRate = types.Ratio(conflict, tracked)
	out.ClientErrorRate = types.Ratio(client, tracked)
	out.ServerErrorRate = types.Ratio(server, tracked)
	out.ErrorRate = types.Ratio(client+server, tracked)
	out.HTTPErrorRate = types.Ratio(client+conflict+server, tracked)
}

// finalizeCoarse derives what the harness' coarse counter allows. Tracked
// requests are total minus excluded minus socket errors; the client/server
// split, and so the conflict and error rates, stay unknown.
func finalizeCoarse(out *types.MergedMetrics, c *aggregator.CoarseCounts) {
	tracked := c.Requests - out.ExcludedRequests - out.NetworkErrors
	if tracked < 0 {
		tracked = 0
	}
	out.TrackedRequests = tracked
	if tracked == 0 {
		return
	}
	non2xx := c.Non2xx
	if non2xx > tracked {
		non2xx = tracked
	}
	out.SuccessRate = types.Ratio(tracked-non2xx, tracked)
	out.HTTPErrorRate = types.Ratio(non2xx, tracked)
}

// reconcile checks tracked + excluded + network errors against the total.
// A mismatch is a warning, never a failure of the run by itself.
func reconcile(out *types.MergedMetrics) {
	sum := out.TrackedRequests + out.ExcludedRequests + out.NetworkErrors
	if sum == out.TotalRequests {
		return
	}
	inc := &types.Inconsistency{
		Total:         out.TotalRequests,
		Tracked:       out.TrackedRequests,
		Excluded:      out.ExcludedRequests,
		NetworkErrors: out.NetworkErrors,
	}
	out.Consistent = false
	out.Inconsistency = inc.Error()
	logger.Warn("request totals do not reconcile, telemetry may have been lost",
		zap.String("precision", string(out.Precision)),
		zap.Int64("total", inc.Total),
		zap.Int64("tracked", inc.Tracked),
		zap.Int64("excluded", inc.Excluded),
		zap.Int64("network_errors", inc.NetworkErrors))
}
