// Package store exposes the per-worker key-value handle through which
// finalized counter sets cross from the workers to the coordinator.
//
// Workers only ever Publish their own, already finalized set. The
// coordinator calls Collect once, after the worker barrier.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bytedance/sonic"

	"yqhp/perf-gate/internal/config"
	"yqhp/perf-gate/pkg/types"
)

var (
	// ErrDuplicateWorker is returned when a worker publishes twice.
	ErrDuplicateWorker = errors.New("worker counter set already published")

	// ErrEmptyWorkerID is returned for a counter set without a worker id.
	ErrEmptyWorkerID = errors.New("worker id is empty")
)

// codec sorts map keys so that equal sets encode to equal bytes.
var codec = sonic.ConfigStd

// Handle is the key-value handle the harness exposes for worker counter sets.
type Handle interface {
	Publish(ctx context.Context, set *types.ThreadCounterSet) error
	Collect(ctx context.Context) ([]*types.ThreadCounterSet, error)
}

// New creates the handle selected by cfg for the given run.
// runDir is used by the file store, runID by the redis store.
func New(cfg *config.StoreConfig, runDir, runID string) (Handle, error) {
	switch cfg.Type {
	case "", "file":
		return NewFileStore(runDir), nil
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(NewRedisClient(&cfg.Redis), cfg.Redis.KeyPrefix, runID, cfg.Redis.TTL), nil
	}
	return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
}

func encode(set *types.ThreadCounterSet) ([]byte, error) {
	if set.WorkerID == "" {
		return nil, ErrEmptyWorkerID
	}
	return codec.Marshal(set)
}

func decode(data []byte) (*types.ThreadCounterSet, error) {
	set := &types.ThreadCounterSet{}
	if err := codec.Unmarshal(data, set); err != nil {
		return nil, err
	}
	if set.WorkerID == "" {
		return nil, ErrEmptyWorkerID
	}
	return set, nil
}

// sortByWorker orders sets by worker id so that merges are reproducible.
func sortByWorker(sets []*types.ThreadCounterSet) {
	sort.Slice(sets, func(i, j int) bool {
		return sets[i].WorkerID < sets[j].WorkerID
	})
}
