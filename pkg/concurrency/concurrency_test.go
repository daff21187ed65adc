package concurrency

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestMapPreservesOrderDespiteCompletionOrder(t *testing.T) {
	items := []int{5, 4, 3, 2, 1} // sleep durations in ms, reverse order
	results, err := Map(context.Background(), items, 4, func(ctx context.Context, i int, item int) (int, error) {
		time.Sleep(time.Duration(item) * time.Millisecond)
		return item * 10, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{50, 40, 30, 20, 10}
	for i := range want {
		if results[i] != want[i] {
			t.Fatalf("results[%d] = %d, want %d (order not preserved)", i, results[i], want[i])
		}
	}
}

func TestMapRespectsConcurrencyCap(t *testing.T) {
	var inFlight, maxInFlight int32
	items := make([]int, 20)
	_, err := Map(context.Background(), items, 3, func(ctx context.Context, i int, item int) (struct{}, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if maxInFlight > 3 {
		t.Fatalf("max in-flight = %d, want <= 3", maxInFlight)
	}
}

func TestMapPropagatesFirstError(t *testing.T) {
	items := []int{1, 2, 3}
	sentinel := errors.New("boom")
	_, err := Map(context.Background(), items, 2, func(ctx context.Context, i int, item int) (int, error) {
		if item == 2 {
			return 0, sentinel
		}
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected the sentinel error, got %v", err)
	}
}

func TestEachRunsAllItems(t *testing.T) {
	var count int32
	items := make([]int, 10)
	err := Each(context.Background(), items, 4, func(ctx context.Context, i int, item int) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 10 {
		t.Fatalf("count = %d, want 10", count)
	}
}
