package counter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/perf-gate/internal/store"
	"yqhp/perf-gate/pkg/types"
)

func TestCounterRecord(t *testing.T) {
	c := New("w-1")

	require.NoError(t, c.RecordStatus(200))
	require.NoError(t, c.RecordStatus(200))
	require.NoError(t, c.RecordStatus(409))
	require.NoError(t, c.RecordNetworkError(types.ErrorCategoryTimeout))
	require.NoError(t, c.RecordRetry())
	require.NoError(t, c.RecordExcluded(types.ExclusionBackoff))
	require.NoError(t, c.RecordLatency(12*time.Millisecond))
	require.NoError(t, c.RecordLatency(2*time.Minute))

	set := c.Finalize()
	assert.Equal(t, "w-1", set.WorkerID)
	assert.Equal(t, map[int]int64{200: 2, 409: 1}, set.StatusCounts)
	assert.Equal(t, int64(1), set.NetworkErrorCounts[types.ErrorCategoryTimeout])
	assert.Equal(t, int64(1), set.RetryCount)
	assert.Equal(t, int64(1), set.ExcludedCounts[types.ExclusionBackoff])
	require.NotNil(t, set.Latency)
	assert.Equal(t, int64(3), set.TotalStatus())
}

func TestCounterRejectsInvalidRecords(t *testing.T) {
	c := New("w-1")
	assert.ErrorIs(t, c.Record(types.RawExchangeRecord{ErrorCategory: types.ErrorCategoryNone}), ErrInvalidRecord)
	assert.ErrorIs(t, c.Record(types.RawExchangeRecord{ErrorCategory: "dns"}), ErrInvalidRecord)
	assert.ErrorIs(t, c.RecordStatus(42), ErrInvalidRecord)
	assert.Error(t, c.RecordExcluded("dropped"))
	assert.Empty(t, c.Finalize().StatusCounts)
}

func TestCounterSealed(t *testing.T) {
	c := New("w-1")
	require.NoError(t, c.RecordStatus(201))
	first := c.Finalize()

	assert.True(t, c.Sealed())
	assert.ErrorIs(t, c.RecordStatus(200), ErrSealed)
	assert.ErrorIs(t, c.RecordRetry(), ErrSealed)
	assert.ErrorIs(t, c.RecordLatency(time.Second), ErrSealed)
	assert.ErrorIs(t, c.RecordExcluded(types.ExclusionFallback), ErrSealed)
	assert.Same(t, first, c.Finalize())
	assert.Nil(t, first.Latency)
}

func TestRegistryBarrier(t *testing.T) {
	ctx := context.Background()
	handle := store.NewMemoryStore()
	reg := NewRegistry(handle)

	const workers = 8
	err := reg.Run(ctx, workers, func(i int) string { return fmt.Sprintf("w-%02d", i) },
		func(_ context.Context, c *Counter) error {
			for j := 0; j < 100; j++ {
				if err := c.RecordStatus(200); err != nil {
					return err
				}
			}
			return c.RecordNetworkError(types.ErrorCategoryConnect)
		})
	require.NoError(t, err)

	sets, err := handle.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, sets, workers)
	var total int64
	for _, s := range sets {
		total += s.TotalStatus() + s.TotalNetworkErrors()
	}
	assert.Equal(t, int64(workers*101), total)
}

func TestRegistryPublishesOnWorkerError(t *testing.T) {
	ctx := context.Background()
	handle := store.NewMemoryStore()
	reg := NewRegistry(handle)

	err := reg.Run(ctx, 2, func(i int) string { return fmt.Sprintf("w-%d", i) },
		func(_ context.Context, c *Counter) error {
			_ = c.RecordStatus(200)
			if c.WorkerID() == "w-1" {
				return assert.AnError
			}
			return nil
		})
	assert.ErrorIs(t, err, assert.AnError)

	sets, err := handle.Collect(ctx)
	require.NoError(t, err)
	assert.Len(t, sets, 2)
}

func TestRegistryDuplicateWorker(t *testing.T) {
	reg := NewRegistry(store.NewMemoryStore())
	c, err := reg.Acquire("w")
	require.NoError(t, err)
	_, err = reg.Acquire("w")
	assert.ErrorIs(t, err, ErrDuplicateWorker)

	require.NoError(t, reg.Release(context.Background(), c))
	assert.NoError(t, reg.Wait())
}
