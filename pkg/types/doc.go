// Package types defines the core data structures for the benchmark gating engine.
//
// This package contains all the fundamental types used throughout perf-gate,
// including:
//   - Raw exchange records and per-worker counter sets
//   - Phase results and derived phase metrics
//   - The merged metrics record and its rate definitions
//   - Threshold rules, scenario configuration and gate verdicts
package types
