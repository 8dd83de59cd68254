package store

import (
	"context"
	"fmt"
	"sync"

	"yqhp/perf-gate/pkg/types"
)

// MemoryStore keeps counter sets in process. Used when workers and the
// coordinator share a process, and in tests.
type MemoryStore struct {
	mu   sync.Mutex
	sets map[string][]byte
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[string][]byte)}
}

// Publish stores an encoded copy of set, so later mutation by the caller
// cannot leak into what the coordinator reads.
func (s *MemoryStore) Publish(_ context.Context, set *types.ThreadCounterSet) error {
	data, err := encode(set)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sets[set.WorkerID]; ok {
		return fmt.Errorf("%s: %w", set.WorkerID, ErrDuplicateWorker)
	}
	s.sets[set.WorkerID] = data
	return nil
}

// Collect returns every published set ordered by worker id.
func (s *MemoryStore) Collect(_ context.Context) ([]*types.ThreadCounterSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.ThreadCounterSet, 0, len(s.sets))
	for id, data := range s.sets {
		set, err := decode(data)
		if err != nil {
			return nil, fmt.Errorf("worker %s: %w", id, err)
		}
		out = append(out, set)
	}
	sortByWorker(out)
	return out, nil
}
