// Package dispatcher fans work out to a fixed pool of goroutines and hands
// every result back to a single collector.
package dispatcher

import (
	"context"
	"sync"
)

// Dispatcher runs tasks on a fixed number of workers.
type Dispatcher[T, R any] struct {
	workers int
	task    func(context.Context, T) R
}

// New creates a Dispatcher with workers goroutines (at least one) running task.
func New[T, R any](workers int, task func(context.Context, T) R) *Dispatcher[T, R] {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher[T, R]{workers: workers, task: task}
}

// Run feeds items to the pool and calls collect with every result on the
// calling goroutine, so collect needs no locking. Items not yet started
// when ctx is canceled are dropped. Run returns once every started task has
// been collected.
func (d *Dispatcher[T, R]) Run(ctx context.Context, items []T, collect func(R)) {
	jobs := make(chan T)
	results := make(chan R)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				results <- d.task(ctx, item)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, item := range items {
			select {
			case <-ctx.Done():
				return
			case jobs <- item:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		collect(r)
	}
}
