// Package jobs runs units of work on a fixed pool of worker goroutines.
package jobs

import (
	"errors"
	"runtime"
	"sync"
)

// ErrClosed is returned by AddJob once the queue has been closed
var ErrClosed = errors.New("jobs: queue closed")

type job struct {
	fn   func(any)
	data any
}

// Queue is a FIFO of jobs served by a fixed number of workers.
// A goroutine blocked in WaitForAllJobs runs queued jobs itself.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	jobs    []job
	pending int
	closed  bool
	wg      sync.WaitGroup
}

// New starts a queue with the given number of workers; workers <= 0 uses
// one per CPU
func New(workers int) *Queue {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	q.wg.Add(workers)
	for range workers {
		go q.work()
	}

	return q
}

// AddJob queues fn to be called with data
func (q *Queue) AddJob(fn func(any), data any) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.jobs = append(q.jobs, job{fn: fn, data: data})
	q.pending++
	q.cond.Broadcast()

	return nil
}

// Pending returns the number of jobs queued or running
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// WaitForAllJobs blocks until every queued job has completed, running
// queued jobs on the calling goroutine meanwhile
func (q *Queue) WaitForAllJobs() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.pending > 0 {
		if j, ok := q.pop(); ok {
			q.run(j)
			continue
		}
		q.cond.Wait()
	}
}

// Close lets the workers drain the queue then stops them. Jobs added after
// Close are rejected.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *Queue) work() {
	defer q.wg.Done()

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if j, ok := q.pop(); ok {
			q.run(j)
			continue
		}
		if q.closed {
			return
		}
		q.cond.Wait()
	}
}

// pop removes the oldest job; q.mu must be held
func (q *Queue) pop() (job, bool) {
	if len(q.jobs) == 0 {
		return job{}, false
	}
	j := q.jobs[0]
	q.jobs[0] = job{}
	q.jobs = q.jobs[1:]
	return j, true
}

// run executes j with q.mu released
func (q *Queue) run(j job) {
	q.mu.Unlock()
	if j.fn != nil {
		j.fn(j.data)
	}
	q.mu.Lock()

	q.pending--
	if q.pending == 0 {
		q.cond.Broadcast()
	}
}
