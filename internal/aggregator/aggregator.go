// Package aggregator folds the counter sets of every worker into one
// merged view, falling back to the harness' run-level summary when no
// per-worker data was published.
package aggregator

import (
	"context"
	"fmt"

	"github.com/HdrHistogram/hdrhistogram-go"
	"go.uber.org/zap"

	"yqhp/perf-gate/internal/store"
	"yqhp/perf-gate/pkg/logger"
	"yqhp/perf-gate/pkg/types"
)

// Merged is the fold of all worker counter sets of one run.
type Merged struct {
	Precision types.Precision
	Workers   int

	StatusCounts       map[int]int64
	NetworkErrorCounts map[types.ErrorCategory]int64
	// NetworkErrorsKnown is false when neither the workers nor the run
	// summary exposed socket-error counts.
	NetworkErrorsKnown bool
	ExcludedCounts     map[types.ExclusionKind]int64
	RetryCount         int64

	// Latency is nil when no worker recorded latencies.
	Latency *hdrhistogram.Histogram

	// Coarse holds the harness' non-2xx counter at PrecisionCoarse.
	Coarse *CoarseCounts
}

// CoarseCounts is the reduced-precision run summary: the split between
// client and server errors is unknown.
type CoarseCounts struct {
	Requests int64
	Non2xx   int64
}

// Summary is the run-level telemetry written by the harness.
// Nil fields were absent from the run record.
type Summary struct {
	Requests       *int64
	StatusCounts   map[int]int64
	SocketErrors   map[types.ErrorCategory]int64
	ExcludedCounts map[types.ExclusionKind]int64
	Non2xx         *int64
}

func newMerged() *Merged {
	return &Merged{
		StatusCounts:       make(map[int]int64),
		NetworkErrorCounts: make(map[types.ErrorCategory]int64),
		ExcludedCounts:     make(map[types.ExclusionKind]int64),
	}
}

// TotalStatus returns the number of exchanges with a status code.
func (m *Merged) TotalStatus() int64 {
	return types.SumStatus(m.StatusCounts)
}

// TotalNetworkErrors returns the number of socket errors.
func (m *Merged) TotalNetworkErrors() int64 {
	var n int64
	for _, v := range m.NetworkErrorCounts {
		n += v
	}
	return n
}

// TotalExcluded returns the number of exchanges that never reached the target.
func (m *Merged) TotalExcluded() int64 {
	var n int64
	for _, v := range m.ExcludedCounts {
		n += v
	}
	return n
}

// P99LatencyMs returns the merged p99 in milliseconds, or nil without histograms.
func (m *Merged) P99LatencyMs() *float64 {
	if m.Latency == nil || m.Latency.TotalCount() == 0 {
		return nil
	}
	return types.Float(float64(m.Latency.ValueAtQuantile(99)) / 1000)
}

// Set exports the merged counts as a single counter set, so that partial
// merges (for example one per load-generator host) can be merged again.
func (m *Merged) Set(workerID string) *types.ThreadCounterSet {
	set := types.NewThreadCounterSet(workerID)
	for code, n := range m.StatusCounts {
		set.StatusCounts[code] = n
	}
	for cat, n := range m.NetworkErrorCounts {
		set.NetworkErrorCounts[cat] = n
	}
	for kind, n := range m.ExcludedCounts {
		set.ExcludedCounts[kind] = n
	}
	set.RetryCount = m.RetryCount
	if m.Latency != nil {
		set.Latency = m.Latency.Export()
	}
	return set
}

// Merge sums the counter sets key by key. Missing keys count as zero and
// nil sets are skipped. The fold is commutative and associative.
func Merge(sets []*types.ThreadCounterSet) *Merged {
	m := newMerged()
	for _, set := range sets {
		if set == nil {
			continue
		}
		m.Workers++
		for code, n := range set.StatusCounts {
			m.StatusCounts[code] += n
		}
		for cat, n := range set.NetworkErrorCounts {
			m.NetworkErrorCounts[cat] += n
		}
		for kind, n := range set.ExcludedCounts {
			m.ExcludedCounts[kind] += n
		}
		m.RetryCount += set.RetryCount
		if set.Latency != nil {
			h := hdrhistogram.Import(set.Latency)
			if m.Latency == nil {
				m.Latency = h
			} else if dropped := m.Latency.Merge(h); dropped > 0 {
				logger.Warn("latency samples dropped while merging",
					zap.String("worker", set.WorkerID), zap.Int64("dropped", dropped))
			}
		}
	}
	return m
}

// Aggregate reads every worker set through handle and merges them. It must
// only be called after the worker barrier. When the workers recorded no
// status codes it degrades to the run summary: first its status histogram,
// then its coarse non-2xx counter. Absent data lowers the precision and is
// never an error; only handle I/O fails.
func Aggregate(ctx context.Context, handle store.Handle, summary *Summary) (*Merged, error) {
	var sets []*types.ThreadCounterSet
	if handle != nil {
		var err error
		sets, err = handle.Collect(ctx)
		if err != nil {
			return nil, fmt.Errorf("collect worker counters: %w", err)
		}
	}
	if summary == nil {
		summary = &Summary{}
	}

	m := Merge(sets)
	switch {
	case m.TotalStatus() > 0:
		m.Precision = types.PrecisionPerWorker
		m.NetworkErrorsKnown = true
	case types.SumStatus(summary.StatusCounts) > 0:
		m.Precision = types.PrecisionHistogram
		for code, n := range summary.StatusCounts {
			m.StatusCounts[code] = n
		}
		applySocketErrors(m, summary)
	case summary.Non2xx != nil && summary.Requests != nil:
		m.Precision = types.PrecisionCoarse
		m.Coarse = &CoarseCounts{Requests: *summary.Requests, Non2xx: *summary.Non2xx}
		applySocketErrors(m, summary)
	default:
		m.Precision = types.PrecisionNone
		applySocketErrors(m, summary)
	}

	// Workers that recorded exclusions are authoritative; otherwise use the
	// counters the request-shape generator wrote into the run record.
	if m.TotalExcluded() == 0 {
		for kind, n := range summary.ExcludedCounts {
			m.ExcludedCounts[kind] = n
		}
	}

	logger.Debug("worker counters aggregated",
		zap.String("precision", string(m.Precision)),
		zap.Int("workers", m.Workers),
		zap.Int64("status", m.TotalStatus()),
		zap.Int64("network_errors", m.TotalNetworkErrors()),
		zap.Int64("excluded", m.TotalExcluded()))
	if m.Precision == types.PrecisionCoarse {
		logger.Warn("no status histogram available, client/server error split is unknown")
	}
	return m, nil
}

// applySocketErrors replaces worker socket counts with the run summary's,
// keeping the worker counts when the summary has none.
func applySocketErrors(m *Merged, summary *Summary) {
	if summary.SocketErrors != nil {
		m.NetworkErrorCounts = make(map[types.ErrorCategory]int64, len(summary.SocketErrors))
		for cat, n := range summary.SocketErrors {
			m.NetworkErrorCounts[cat] = n
		}
		m.NetworkErrorsKnown = true
		return
	}
	m.NetworkErrorsKnown = m.Workers > 0
}

// SummaryFromRecord extracts the run-level summary from a run record.
func SummaryFromRecord(r *types.RunRecord) (*Summary, error) {
	s := &Summary{}
	if r.Has("requests") {
		n, err := r.Requests()
		if err != nil {
			return nil, err
		}
		s.Requests = &n
	}
	var err error
	if s.StatusCounts, _, err = r.StatusCounts(); err != nil {
		return nil, err
	}
	if s.SocketErrors, _, err = r.SocketErrors(); err != nil {
		return nil, err
	}
	if s.ExcludedCounts, _, err = r.Excluded(); err != nil {
		return nil, err
	}
	n, ok, err := r.Non2xx()
	if err != nil {
		return nil, err
	}
	if ok {
		s.Non2xx = &n
	}
	return s, nil
}
