package counter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"yqhp/perf-gate/internal/store"
	"yqhp/perf-gate/pkg/logger"
)

// ErrDuplicateWorker worker id 重复申请
var ErrDuplicateWorker = errors.New("worker already registered")

// Registry 为每个 worker 分配独占计数器，worker 结束后通过 store.Handle 发布。
// Wait 是屏障：所有 worker 发布完成后协调者才能读取 handle。
// 锁只保护 worker 登记表，计数器本身从不加锁。
type Registry struct {
	handle store.Handle

	wg   sync.WaitGroup
	mu   sync.Mutex
	ids  map[string]struct{}
	errs []error
}

// NewRegistry 创建计数器登记表
func NewRegistry(handle store.Handle) *Registry {
	return &Registry{
		handle: handle,
		ids:    make(map[string]struct{}),
	}
}

// Acquire 为 worker 分配计数器
func (r *Registry) Acquire(workerID string) (*Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[workerID]; ok {
		return nil, fmt.Errorf("%s: %w", workerID, ErrDuplicateWorker)
	}
	r.ids[workerID] = struct{}{}
	r.wg.Add(1)
	return New(workerID), nil
}

// Release 封存计数器并发布，每个计数器必须且只能 Release 一次
func (r *Registry) Release(ctx context.Context, c *Counter) error {
	defer r.wg.Done()
	set := c.Finalize()
	if err := r.handle.Publish(ctx, set); err != nil {
		err = fmt.Errorf("publish %s: %w", set.WorkerID, err)
		r.mu.Lock()
		r.errs = append(r.errs, err)
		r.mu.Unlock()
		return err
	}
	logger.Debug("worker counter published",
		zap.String("worker", set.WorkerID),
		zap.Int64("status", set.TotalStatus()),
		zap.Int64("network_errors", set.TotalNetworkErrors()))
	return nil
}

// Wait 等待所有已分配的计数器发布，返回发布过程中的全部错误
func (r *Registry) Wait() error {
	r.wg.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.errs...)
}

// WorkerFunc worker 的执行体，只能写入自己的计数器
type WorkerFunc func(ctx context.Context, c *Counter) error

// Run 启动 n 个 worker，全部结束并发布后返回
func (r *Registry) Run(ctx context.Context, n int, workerID func(i int) string, fn WorkerFunc) error {
	g, gctx := errgroup.WithContext(ctx)
	var acquireErr error
	for i := 0; i < n; i++ {
		c, err := r.Acquire(workerID(i))
		if err != nil {
			acquireErr = err
			break
		}
		g.Go(func() error {
			runErr := fn(gctx, c)
			// 即使执行失败也要发布已记录的数据
			pubErr := r.Release(ctx, c)
			if runErr != nil {
				return runErr
			}
			return pubErr
		})
	}
	runErr := g.Wait()
	if err := r.Wait(); err != nil {
		return err
	}
	if acquireErr != nil {
		return acquireErr
	}
	return runErr
}
