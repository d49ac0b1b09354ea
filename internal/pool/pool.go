// Package pool provides a bounded worker pool that preserves submission order
// in its results. It is the shared primitive behind both the process
// dispatcher and the generic function dispatcher: a fixed set of worker
// goroutines consuming a work queue, with results assembled by submission
// index rather than completion order.
package pool

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	// ErrClosed reports a submission after Wait started draining the pool.
	ErrClosed = errors.New("pool is closed to new submissions")
	// ErrFull reports a submission beyond the capacity the pool was sized for.
	ErrFull = errors.New("pool capacity exceeded")
)

type job[R any] struct {
	index int
	fn    func() R
}

// Pool runs up to `workers` jobs concurrently. A pool is a one-shot batch:
// submit every job, then Wait exactly once; it is not reusable afterwards.
type Pool[R any] struct {
	workers  int
	capacity int

	jobs    chan job[R]
	results []R

	mu        sync.Mutex
	submitted int
	closed    bool

	completed atomic.Int64
	wg        sync.WaitGroup
}

// New creates a pool sized for capacity jobs. workers <= 0 defaults to the
// number of CPUs on the host.
func New[R any](workers, capacity int) *Pool[R] {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > capacity && capacity > 0 {
		workers = capacity
	}

	p := &Pool[R]{
		workers:  workers,
		capacity: capacity,
		jobs:     make(chan job[R], capacity),
		results:  make([]R, capacity),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool[R]) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		p.results[j.index] = j.fn()
		p.completed.Add(1)
	}
}

// Submit queues one job. It never blocks: the queue is sized to the pool's
// capacity at construction.
func (p *Pool[R]) Submit(fn func() R) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.submitted >= p.capacity {
		p.mu.Unlock()
		return ErrFull
	}
	index := p.submitted
	p.submitted++
	p.mu.Unlock()

	p.jobs <- job[R]{index: index, fn: fn}
	return nil
}

// Pending returns the number of submitted jobs that have not yet finished.
func (p *Pool[R]) Pending() int {
	p.mu.Lock()
	submitted := p.submitted
	p.mu.Unlock()
	return submitted - int(p.completed.Load())
}

// Workers returns the concurrency bound.
func (p *Pool[R]) Workers() int {
	return p.workers
}

// Wait closes the pool to further submissions, joins every worker, and
// returns the results in submission order. Unused capacity slots are
// truncated.
func (p *Pool[R]) Wait() []R {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	submitted := p.submitted
	p.mu.Unlock()

	p.wg.Wait()
	return p.results[:submitted]
}
