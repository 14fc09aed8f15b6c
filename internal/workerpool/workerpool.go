// Package workerpool implements the bounded task queue shared by the
// writer's hash/segment/compress jobs and the reader's decompress jobs.
// Each job kind gets its own Pool; a Pool sums the wall-clock time its
// jobs take, as an approximation of CPU time, so the CLI tools can report
// it alongside wall-clock progress.
package workerpool

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Job is one unit of work submitted to a Pool.
type Job func(ctx context.Context) error

// Pool runs submitted jobs on a bounded number of goroutines, preserving
// submission fairness by running jobs in FIFO order as slots free up.
type Pool struct {
	sem *semaphore.Weighted

	mu sync.Mutex
	wg sync.WaitGroup
	// cpuTime sums job wall-clock duration as a stand-in for true
	// per-goroutine CPU time, which Go does not expose.
	cpuTime  time.Duration
	jobCount int64
	firstErr error
	stopped  bool
}

// New creates a Pool with the given number of concurrent workers. A
// workers value of 0 or less defaults to runtime.GOMAXPROCS(0).
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers))}
}

// Submit blocks until a worker slot is available (or ctx is cancelled),
// then runs job on its own goroutine. Errors are captured; the first
// one is returned by Wait.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.sem.Release(1)
		return context.Canceled
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)

		start := time.Now()
		err := job(ctx)
		elapsed := time.Since(start)

		p.mu.Lock()
		p.cpuTime += elapsed
		p.jobCount++
		if err != nil && p.firstErr == nil {
			p.firstErr = err
		}
		p.mu.Unlock()
	}()
	return nil
}

// Wait blocks until every submitted job has finished and returns the
// first error encountered, if any.
func (p *Pool) Wait() error {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.firstErr
}

// Stop prevents any further Submit calls from starting new jobs; jobs
// already running are allowed to finish (cooperative drain).
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
}

// Stats reports cumulative accounting across every job this pool has run.
type Stats struct {
	JobCount int64
	CPUTime  time.Duration
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{JobCount: p.jobCount, CPUTime: p.cpuTime}
}
