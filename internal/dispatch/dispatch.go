// Package dispatch provides the executors that run asynchronous call tasks.
package dispatch

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// Go runs every task on its own goroutine.
type Go struct{}

func (Go) Dispatch(task func()) { go task() }

// Pool runs tasks on at most n worker goroutines. Dispatch never blocks the
// caller; tasks beyond the limit are queued and picked up by the next free
// worker, so neither running tasks nor goroutines exceed n.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu    sync.Mutex
	queue []func()
}

// NewPool creates a Pool with at most n workers. n < 1 is treated as 1.
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(n))}
}

func (p *Pool) Dispatch(task func()) {
	p.wg.Add(1)
	p.mu.Lock()
	p.queue = append(p.queue, task)
	p.mu.Unlock()
	if p.sem.TryAcquire(1) {
		go p.work()
	}
}

// work runs queued tasks until the queue is empty. The slot is released under
// mu so a task queued concurrently is either seen here or starts a new worker.
func (p *Pool) work() {
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.sem.Release(1)
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		task()
		p.wg.Done()
	}
}

func (p *Pool) queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Wait blocks until every dispatched task has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Inline runs tasks on the caller's goroutine. It is meant for tests and for
// callers that already run on a worker.
type Inline struct{}

func (Inline) Dispatch(task func()) { task() }
