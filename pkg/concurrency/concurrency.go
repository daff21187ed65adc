// Package concurrency provides the bounded, order-preserving fan-out used by
// every multi-item pipeline stage (spec §5: cooperative concurrency over
// I/O-bound LLM calls, default cap 4, deterministic output ordering
// regardless of completion order). It generalizes the teacher's
// cmd/batch_eval channel-and-sync.WaitGroup worker pool into a reusable,
// cancellation-aware helper built on golang.org/x/sync/errgroup.
package concurrency

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultCap is the default bounded-concurrency cap per spec §5.
const DefaultCap = 4

// Map runs fn over every item in items with at most cap concurrent
// invocations (cap <= 0 means DefaultCap), and returns results in input
// order regardless of which goroutine finishes first. If any invocation
// returns an error, Map cancels the remaining work, waits for in-flight
// goroutines to unwind, and returns the first error encountered.
func Map[T, R any](ctx context.Context, items []T, cap int, fn func(context.Context, int, T) (R, error)) ([]R, error) {
	if cap <= 0 {
		cap = DefaultCap
	}

	results := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cap)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			r, err := fn(gctx, i, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Each is Map without a return value, for stages that mutate shared state
// (e.g. writing artifacts) rather than producing a per-item result.
func Each[T any](ctx context.Context, items []T, cap int, fn func(context.Context, int, T) error) error {
	_, err := Map(ctx, items, cap, func(ctx context.Context, i int, item T) (struct{}, error) {
		return struct{}{}, fn(ctx, i, item)
	})
	return err
}
