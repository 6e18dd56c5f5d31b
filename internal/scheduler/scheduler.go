package scheduler

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of pool work, identified by its submission index.
type Task func(ctx context.Context, index int)

// Pool runs tasks with bounded concurrency.
type Pool struct {
	size int
}

// NewPool returns a pool running at most size tasks at once (minimum 1).
func NewPool(size int) *Pool {
	return &Pool{size: max(1, size)}
}

func (p *Pool) Size() int { return p.size }

// Run submits indexes 0..n-1 in order and waits for every started task.
// Once ctx is done nothing new starts; the indexes that never ran are
// returned in ascending order. Tasks report their own failures.
func (p *Pool) Run(ctx context.Context, n int, task Task) []int {
	var g errgroup.Group
	g.SetLimit(p.size)

	var (
		mu      sync.Mutex
		skipped []int
	)
	skip := func(i int) {
		mu.Lock()
		skipped = append(skipped, i)
		mu.Unlock()
	}

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			for j := i; j < n; j++ {
				skip(j)
			}
			break
		}
		g.Go(func() error {
			// The slot may have freed up only after cancellation.
			if ctx.Err() != nil {
				skip(i)
				return nil
			}
			task(ctx, i)
			return nil
		})
	}
	_ = g.Wait()

	slices.Sort(skipped)
	return skipped
}
