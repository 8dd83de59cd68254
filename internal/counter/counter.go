// Package counter 提供单个 worker 独占的请求计数器。
// 计数器不加锁，只能由所属 worker 使用；worker 结束时 Finalize 后即为只读。
package counter

import (
	"errors"
	"fmt"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"yqhp/perf-gate/pkg/types"
)

const (
	// 延迟直方图范围 1µs..60s，3 位有效数字
	minLatencyMicros = 1
	maxLatencyMicros = int64(60 * time.Second / time.Microsecond)
	latencySigFigs   = 3
)

var (
	// ErrSealed 计数器已 Finalize 后继续写入
	ErrSealed = errors.New("counter is finalized")

	// ErrInvalidRecord 既没有状态码也没有网络错误类别的记录
	ErrInvalidRecord = errors.New("exchange record has neither status code nor network error category")
)

// Counter 单个 worker 的计数器
type Counter struct {
	set     *types.ThreadCounterSet
	latency *hdrhistogram.Histogram
	sealed  bool
}

// New 创建 worker 计数器
func New(workerID string) *Counter {
	return &Counter{
		set:     types.NewThreadCounterSet(workerID),
		latency: hdrhistogram.New(minLatencyMicros, maxLatencyMicros, latencySigFigs),
	}
}

// WorkerID 返回所属 worker
func (c *Counter) WorkerID() string {
	return c.set.WorkerID
}

// Record 记录一次完成的请求：有状态码计入状态码直方图，否则计入网络错误类别
func (c *Counter) Record(rec types.RawExchangeRecord) error {
	if c.sealed {
		return ErrSealed
	}
	if rec.StatusCode != nil {
		code := *rec.StatusCode
		if code < 100 || code > 599 {
			return fmt.Errorf("%w: status %d", ErrInvalidRecord, code)
		}
		c.set.StatusCounts[code]++
		return nil
	}
	switch rec.ErrorCategory {
	case types.ErrorCategoryConnect, types.ErrorCategoryRead, types.ErrorCategoryWrite, types.ErrorCategoryTimeout:
		c.set.NetworkErrorCounts[rec.ErrorCategory]++
		return nil
	}
	return fmt.Errorf("%w: category %q", ErrInvalidRecord, rec.ErrorCategory)
}

// RecordStatus 记录状态码的便捷方法
func (c *Counter) RecordStatus(code int) error {
	return c.Record(types.RawExchangeRecord{StatusCode: &code, ErrorCategory: types.ErrorCategoryNone})
}

// RecordNetworkError 记录网络错误的便捷方法
func (c *Counter) RecordNetworkError(category types.ErrorCategory) error {
	return c.Record(types.RawExchangeRecord{ErrorCategory: category})
}

// RecordLatency 记录请求耗时，超出范围的值截断到边界
func (c *Counter) RecordLatency(d time.Duration) error {
	if c.sealed {
		return ErrSealed
	}
	us := d.Microseconds()
	if us < minLatencyMicros {
		us = minLatencyMicros
	}
	if us > maxLatencyMicros {
		us = maxLatencyMicros
	}
	return c.latency.RecordValue(us)
}

// RecordRetry 记录一次重试
func (c *Counter) RecordRetry() error {
	if c.sealed {
		return ErrSealed
	}
	c.set.RetryCount++
	return nil
}

// RecordExcluded 记录一次未到达目标服务的请求（退避、抑制或降级）
func (c *Counter) RecordExcluded(kind types.ExclusionKind) error {
	if c.sealed {
		return ErrSealed
	}
	switch kind {
	case types.ExclusionBackoff, types.ExclusionSuppressed, types.ExclusionFallback:
		c.set.ExcludedCounts[kind]++
		return nil
	}
	return fmt.Errorf("unknown exclusion kind %q", kind)
}

// Finalize 封存计数器并返回只读的计数集合，重复调用返回同一结果
func (c *Counter) Finalize() *types.ThreadCounterSet {
	if !c.sealed {
		c.sealed = true
		if c.latency.TotalCount() > 0 {
			c.set.Latency = c.latency.Export()
		}
	}
	return c.set
}

// Sealed 是否已封存
func (c *Counter) Sealed() bool {
	return c.sealed
}
