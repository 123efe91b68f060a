// Package parallel runs independent work items through a bounded worker
// pool. Failure isolation is the point: one item's error never stops the
// others, callers get every error back.
package parallel

import (
	"context"
	"sync"
)

// ForEach runs fn once per item using at most workers goroutines and
// returns the errors fn produced, indexed like items (nil for successes).
// Items not yet started when ctx is cancelled are skipped; their slot
// carries ctx.Err().
func ForEach[T any](ctx context.Context, items []T, workers int, fn func(ctx context.Context, index int, item T) error) []error {
	if len(items) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	errs := make([]error, len(items))
	jobs := make(chan int, len(items))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					errs[i] = err
					continue
				}
				errs[i] = fn(ctx, i, items[i])
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return errs
}
