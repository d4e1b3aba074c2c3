package automa

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many sync workers run at once. Async workers never touch
// it; nested automas borrow the top-level automa's pool.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// NewPool creates a pool admitting size concurrent sync invocations. A
// non-positive size defaults to the number of CPUs.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the pool's concurrency bound.
func (p *Pool) Size() int { return p.size }

// Submit runs fn once a slot is free. Acquisition honors ctx, so a
// cancelled pass never starts queued work, but fn itself is not interrupted
// once started.
func (p *Pool) Submit(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)
	return fn()
}
