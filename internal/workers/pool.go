// Package workers provides bounded parallel execution for the CPU-bound
// simulation and search workloads. Work is partitioned along independent
// axes (draw indices, candidate indices); every worker owns disjoint output
// slots, so no locks are needed in the hot path.
package workers

import (
	"context"
	"runtime"
	"sync"
)

// Clamp normalizes a requested worker count: non-positive values fall back
// to GOMAXPROCS, and the count never exceeds the number of work items.
func Clamp(requested, items int) int {
	n := requested
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if n > items {
		n = items
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Range splits [0, n) into contiguous chunks, one per worker, and runs
// fn(start, end) for each chunk concurrently. It blocks until all chunks
// complete. fn must only write state owned by its own index range.
func Range(n, numWorkers int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	numWorkers = Clamp(numWorkers, n)

	chunk := n / numWorkers
	rem := n % numWorkers

	var wg sync.WaitGroup
	start := 0
	for w := 0; w < numWorkers; w++ {
		size := chunk
		if w < rem {
			size++
		}
		end := start + size
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(start, end)
		start = end
	}
	wg.Wait()
}

// ForEach runs fn(i) for every i in [0, n) with at most numWorkers
// goroutines, stopping early when ctx is cancelled. Items already handed to
// a worker run to completion; ForEach never tears an item mid-flight. The
// returned error is ctx.Err() when cancelled, nil otherwise.
func ForEach(ctx context.Context, n, numWorkers int, fn func(i int)) error {
	if n <= 0 {
		return nil
	}
	numWorkers = Clamp(numWorkers, n)

	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}

	var err error
feed:
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	return err
}
