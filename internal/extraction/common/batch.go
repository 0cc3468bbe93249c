package common

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"
)

// ErrShutdown is returned for batches submitted after Shutdown.
var ErrShutdown = errors.New("batch processor is shutting down")

// ItemStatus is the terminal state of one batch item.
type ItemStatus int

const (
	ItemStatusSuccess ItemStatus = iota
	ItemStatusFailed
	ItemStatusTimeout
	ItemStatusCancelled
)

func (s ItemStatus) String() string {
	switch s {
	case ItemStatusSuccess:
		return "SUCCESS"
	case ItemStatusFailed:
		return "FAILED"
	case ItemStatusTimeout:
		return "TIMEOUT"
	case ItemStatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// ProcessFunc handles one item.
type ProcessFunc[T, R any] func(ctx context.Context, item T) (R, error)

// ItemResult is the outcome for one item, positioned by its input index.
type ItemResult[R any] struct {
	Index      int
	Result     R
	Err        error
	DurationMs float64
	Status     ItemStatus
}

// BatchResult aggregates a whole batch.
type BatchResult[R any] struct {
	Results         []*ItemResult[R]
	TotalCount      int
	SuccessCount    int
	FailureCount    int
	TotalDurationMs float64
}

// RetryPolicy controls per-item retries with exponential backoff and ±25%
// jitter.
type RetryPolicy struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

func backoffFor(attempt int, policy *RetryPolicy) time.Duration {
	if policy == nil || policy.InitialBackoff <= 0 {
		return 0
	}
	multiplier := policy.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	base := float64(policy.InitialBackoff) * math.Pow(multiplier, float64(attempt))
	if policy.MaxBackoff > 0 && base > float64(policy.MaxBackoff) {
		base = float64(policy.MaxBackoff)
	}
	jitter := base * 0.25 * (rand.Float64()*2 - 1)
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// BatchConfig sizes a processor.
type BatchConfig struct {
	// Concurrency caps parallel items. Defaults to NumCPU.
	Concurrency int

	// ItemTimeout bounds one item including retries. Zero means inherit
	// the batch context only.
	ItemTimeout time.Duration

	// Retry is applied per item; nil disables retries.
	Retry *RetryPolicy
}

// BatchProcessor runs items concurrently while preserving result order.
// Results always line up with input indices, so callers can reconcile
// per-chunk extraction contexts deterministically afterward.
type BatchProcessor[T, R any] struct {
	cfg      BatchConfig
	sem      chan struct{}
	mu       sync.Mutex
	shutdown bool
	inflight sync.WaitGroup
}

// NewBatchProcessor builds a processor with cfg.
func NewBatchProcessor[T, R any](cfg BatchConfig) *BatchProcessor[T, R] {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	return &BatchProcessor[T, R]{
		cfg: cfg,
		sem: make(chan struct{}, cfg.Concurrency),
	}
}

// Process executes fn for every item, honoring concurrency, per-item
// timeout, retry policy, and context cancellation. A failed item never
// fails the batch; its result carries the error.
func (p *BatchProcessor[T, R]) Process(ctx context.Context, items []T, fn ProcessFunc[T, R]) (*BatchResult[R], error) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil, ErrShutdown
	}
	p.inflight.Add(1)
	p.mu.Unlock()
	defer p.inflight.Done()

	start := time.Now()
	results := make([]*ItemResult[R], len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		i, item := i, item
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case p.sem <- struct{}{}:
				defer func() { <-p.sem }()
			case <-ctx.Done():
				results[i] = &ItemResult[R]{Index: i, Err: ctx.Err(), Status: ItemStatusCancelled}
				return
			}
			results[i] = p.runItem(ctx, i, item, fn)
		}()
	}
	wg.Wait()

	out := &BatchResult[R]{
		Results:         results,
		TotalCount:      len(items),
		TotalDurationMs: float64(time.Since(start).Microseconds()) / 1000,
	}
	for _, r := range results {
		if r != nil && r.Status == ItemStatusSuccess {
			out.SuccessCount++
		} else {
			out.FailureCount++
		}
	}
	return out, nil
}

func (p *BatchProcessor[T, R]) runItem(ctx context.Context, idx int, item T, fn ProcessFunc[T, R]) *ItemResult[R] {
	itemCtx := ctx
	var cancel context.CancelFunc
	if p.cfg.ItemTimeout > 0 {
		itemCtx, cancel = context.WithTimeout(ctx, p.cfg.ItemTimeout)
		defer cancel()
	}

	start := time.Now()
	var lastErr error
	attempts := 1
	if p.cfg.Retry != nil {
		attempts += p.cfg.Retry.MaxRetries
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoffFor(attempt-1, p.cfg.Retry)):
			case <-itemCtx.Done():
				return p.finishItem(idx, *new(R), itemCtx.Err(), start, ctx)
			}
		}
		res, err := fn(itemCtx, item)
		if err == nil {
			return &ItemResult[R]{
				Index:      idx,
				Result:     res,
				DurationMs: float64(time.Since(start).Microseconds()) / 1000,
				Status:     ItemStatusSuccess,
			}
		}
		lastErr = err
		if itemCtx.Err() != nil {
			break
		}
	}
	return p.finishItem(idx, *new(R), lastErr, start, ctx)
}

func (p *BatchProcessor[T, R]) finishItem(idx int, zero R, err error, start time.Time, batchCtx context.Context) *ItemResult[R] {
	status := ItemStatusFailed
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = ItemStatusTimeout
	case errors.Is(err, context.Canceled) || batchCtx.Err() != nil:
		status = ItemStatusCancelled
	}
	return &ItemResult[R]{
		Index:      idx,
		Result:     zero,
		Err:        err,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000,
		Status:     status,
	}
}

// Shutdown drains in-flight batches. New batches are rejected immediately;
// waiting stops when ctx expires.
func (p *BatchProcessor[T, R]) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.shutdown = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
