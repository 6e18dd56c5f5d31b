package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunRespectsLimit(t *testing.T) {
	p := NewPool(2)
	var running, peak atomic.Int32
	var mu sync.Mutex
	seen := map[int]bool{}

	skipped := p.Run(context.Background(), 10, func(ctx context.Context, i int) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		mu.Lock()
		seen[i] = true
		mu.Unlock()
	})

	assert.Empty(t, skipped)
	assert.Len(t, seen, 10)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestNewPoolMinimumOne(t *testing.T) {
	assert.Equal(t, 1, NewPool(0).Size())
	assert.Equal(t, 1, NewPool(-3).Size())
}

func TestRunStopsSubmittingAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPool(1)

	var ran []int
	skipped := p.Run(ctx, 5, func(ctx context.Context, i int) {
		ran = append(ran, i)
		if i == 1 {
			cancel()
		}
	})

	assert.Equal(t, []int{0, 1}, ran)
	assert.Equal(t, []int{2, 3, 4}, skipped)
}

func TestRunAlreadyCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	skipped := NewPool(4).Run(ctx, 3, func(context.Context, int) {
		t.Fatal("task must not run")
	})
	assert.Equal(t, []int{0, 1, 2}, skipped)
}
