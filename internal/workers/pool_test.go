package workers_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/atlas-desktop/risk-engine/internal/workers"
)

func TestRangeCoversAllIndices(t *testing.T) {
	const n = 1000
	hits := make([]int32, n)

	workers.Range(n, 7, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
	})

	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d visited %d times, want 1", i, h)
		}
	}
}

func TestRangeMoreWorkersThanItems(t *testing.T) {
	var count int32
	workers.Range(3, 64, func(start, end int) {
		atomic.AddInt32(&count, int32(end-start))
	})
	if count != 3 {
		t.Errorf("processed %d items, want 3", count)
	}
}

func TestForEachRunsEverything(t *testing.T) {
	const n = 500
	hits := make([]int32, n)

	err := workers.ForEach(context.Background(), n, 4, func(i int) {
		atomic.AddInt32(&hits[i], 1)
	})
	if err != nil {
		t.Fatalf("ForEach returned error: %v", err)
	}
	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d visited %d times, want 1", i, h)
		}
	}
}

func TestForEachCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var processed int32
	err := workers.ForEach(ctx, 100000, 2, func(i int) {
		if atomic.AddInt32(&processed, 1) == 10 {
			cancel()
		}
	})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := atomic.LoadInt32(&processed); n >= 100000 {
		t.Errorf("cancellation did not stop the feed: processed %d", n)
	}
}

func TestClamp(t *testing.T) {
	if got := workers.Clamp(0, 10); got < 1 {
		t.Errorf("Clamp(0, 10) = %d, want >= 1", got)
	}
	if got := workers.Clamp(16, 4); got != 4 {
		t.Errorf("Clamp(16, 4) = %d, want 4", got)
	}
	if got := workers.Clamp(3, 10); got != 3 {
		t.Errorf("Clamp(3, 10) = %d, want 3", got)
	}
}
