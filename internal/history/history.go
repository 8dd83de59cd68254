// Package history keeps past verdicts so the regression guard can compare
// a run with the last known good run of its scenario.
package history

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/duke-git/lancet/v2/slice"

	"yqhp/perf-gate/internal/gate"
	"yqhp/perf-gate/pkg/types"
)

// ErrNoBaseline is returned when a scenario has no passing verdict yet.
var ErrNoBaseline = errors.New("no passing verdict recorded")

// Store persists verdicts.
type Store interface {
	// Save records a verdict.
	Save(ctx context.Context, v *types.GateVerdict) error
	// LastPass returns the most recent passing verdict of scenario as a baseline.
	// A WARNING verdict counts as passing.
	LastPass(ctx context.Context, scenario string) (*gate.Baseline, error)
	Close() error
}

// passing lists the statuses a baseline may come from.
var passing = []string{string(types.StatusPass), string(types.StatusWarning)}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*VerdictRecord
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, v *types.GateVerdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, FromVerdict(v))
	sort.SliceStable(s.records, func(i, j int) bool {
		return s.records[i].EvaluatedAt.Before(s.records[j].EvaluatedAt)
	})
	return nil
}

func (s *MemoryStore) LastPass(_ context.Context, scenario string) (*gate.Baseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.Scenario != scenario {
			continue
		}
		if slice.Contain(passing, r.Status) {
			return r.Baseline(), nil
		}
	}
	return nil, ErrNoBaseline
}

func (s *MemoryStore) Close() error { return nil }
