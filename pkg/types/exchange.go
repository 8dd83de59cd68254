package types

import "github.com/HdrHistogram/hdrhistogram-go"

// ErrorCategory classifies an exchange that failed below the HTTP layer.
type ErrorCategory string

const (
	// ErrorCategoryNone means the exchange produced an HTTP status code.
	ErrorCategoryNone ErrorCategory = "none"
	// ErrorCategoryConnect is a failure to establish the connection.
	ErrorCategoryConnect ErrorCategory = "connect"
	// ErrorCategoryRead is a failure while reading the response.
	ErrorCategoryRead ErrorCategory = "read"
	// ErrorCategoryWrite is a failure while writing the request.
	ErrorCategoryWrite ErrorCategory = "write"
	// ErrorCategoryTimeout is a request that timed out.
	ErrorCategoryTimeout ErrorCategory = "timeout"
)

// NetworkErrorCategories lists the categories counted as socket errors.
var NetworkErrorCategories = []ErrorCategory{
	ErrorCategoryConnect,
	ErrorCategoryRead,
	ErrorCategoryWrite,
	ErrorCategoryTimeout,
}

// IsValid reports whether c is a known category.
func (c ErrorCategory) IsValid() bool {
	switch c {
	case ErrorCategoryNone, ErrorCategoryConnect, ErrorCategoryRead, ErrorCategoryWrite, ErrorCategoryTimeout:
		return true
	}
	return false
}

// ExclusionKind classifies an exchange that never reached the target.
type ExclusionKind string

const (
	// ExclusionBackoff is a request skipped while the client was backing off.
	ExclusionBackoff ExclusionKind = "backoff"
	// ExclusionSuppressed is a request the request-shape generator suppressed.
	ExclusionSuppressed ExclusionKind = "suppressed"
	// ExclusionFallback is a request answered by a client-side fallback.
	ExclusionFallback ExclusionKind = "fallback"
)

// ExclusionKinds lists every exclusion kind.
var ExclusionKinds = []ExclusionKind{ExclusionBackoff, ExclusionSuppressed, ExclusionFallback}

// RawExchangeRecord is produced by one worker for one completed exchange.
// StatusCode is nil when the exchange failed with a network error.
type RawExchangeRecord struct {
	StatusCode    *int
	ErrorCategory ErrorCategory
}

// ThreadCounterSet is the counter state owned by one worker.
// It is read-only once the worker has finalized it.
type ThreadCounterSet struct {
	WorkerID           string                  `json:"worker_id"`
	StatusCounts       map[int]int64           `json:"status_counts"`
	NetworkErrorCounts map[ErrorCategory]int64 `json:"network_error_counts,omitempty"`
	RetryCount         int64                   `json:"retry_count"`
	ExcludedCounts     map[ExclusionKind]int64 `json:"excluded_counts,omitempty"`
	Latency            *hdrhistogram.Snapshot  `json:"latency,omitempty"`
}

// NewThreadCounterSet creates an empty counter set for a worker.
func NewThreadCounterSet(workerID string) *ThreadCounterSet {
	return &ThreadCounterSet{
		WorkerID:           workerID,
		StatusCounts:       make(map[int]int64),
		NetworkErrorCounts: make(map[ErrorCategory]int64),
		ExcludedCounts:     make(map[ExclusionKind]int64),
	}
}

// TotalStatus returns the number of exchanges that received a status code.
func (s *ThreadCounterSet) TotalStatus() int64 {
	return SumStatus(s.StatusCounts)
}

// TotalNetworkErrors returns the number of exchanges that failed below HTTP.
func (s *ThreadCounterSet) TotalNetworkErrors() int64 {
	var total int64
	for _, n := range s.NetworkErrorCounts {
		total += n
	}
	return total
}

// TotalExcluded returns the number of exchanges that never reached the target.
func (s *ThreadCounterSet) TotalExcluded() int64 {
	var total int64
	for _, n := range s.ExcludedCounts {
		total += n
	}
	return total
}

// SumStatus sums a status histogram.
func SumStatus(counts map[int]int64) int64 {
	var total int64
	for _, n := range counts {
		total += n
	}
	return total
}

// SumStatusRange sums the codes in [lo, hi).
func SumStatusRange(counts map[int]int64, lo, hi int) int64 {
	var total int64
	for code, n := range counts {
		if code >= lo && code < hi {
			total += n
		}
	}
	return total
}
