package taskscope

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
	"golang.org/x/sync/semaphore"
)

// Executor runs subtask bodies concurrently on behalf of a scope. Execute
// must run fn exactly once, asynchronously with respect to the caller; fn
// itself reacts to ctx cancellation, so an executor may run it even after
// the token has died. Shutdown releases executor resources and must not
// strand an accepted fn.
//
// Any worker-pool or goroutine-per-task strategy satisfies the contract.
type Executor interface {
	Execute(ctx context.Context, fn func())
	Shutdown()
}

// goExecutor spawns one goroutine per subtask body.
type goExecutor struct{}

func (goExecutor) Execute(_ context.Context, fn func()) { go fn() }
func (goExecutor) Shutdown()                            {}

type semaphoreExecutor struct {
	sem *semaphore.Weighted
}

// NewSemaphoreExecutor returns an Executor that lets at most n bodies run
// concurrently, parking the rest on a weighted semaphore. A body whose
// token is cancelled while parked still runs; its subtask fast-paths to
// Cancelled without invoking user code.
func NewSemaphoreExecutor(n int) Executor {
	if n <= 0 {
		panic("taskscope: semaphore executor bound must be positive")
	}
	return &semaphoreExecutor{sem: semaphore.NewWeighted(int64(n))}
}

func (e *semaphoreExecutor) Execute(ctx context.Context, fn func()) {
	go func() {
		if err := e.sem.Acquire(ctx, 1); err == nil {
			defer e.sem.Release(1)
		}
		fn()
	}()
}

func (e *semaphoreExecutor) Shutdown() {}

type queueExecutor struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  deque.Deque[func()]
	closed bool
	wg     sync.WaitGroup
}

// NewQueueExecutor returns an Executor backed by a fixed set of workers
// fed from a FIFO queue. Shutdown stops the workers only after the queue
// drains, so every accepted body still runs.
func NewQueueExecutor(workers int) Executor {
	if workers <= 0 {
		panic("taskscope: queue executor needs at least one worker")
	}
	e := &queueExecutor{}
	e.cond = sync.NewCond(&e.mu)
	e.wg.Add(workers)
	for range workers {
		go e.worker()
	}
	return e
}

func (e *queueExecutor) Execute(_ context.Context, fn func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		// The scope still expects fn to run exactly once.
		go fn()
		return
	}
	e.queue.PushBack(fn)
	e.mu.Unlock()
	e.cond.Signal()
}

func (e *queueExecutor) worker() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		for e.queue.Len() == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.queue.Len() == 0 {
			e.mu.Unlock()
			return
		}
		fn := e.queue.PopFront()
		e.mu.Unlock()
		fn()
	}
}

func (e *queueExecutor) Shutdown() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	e.cond.Broadcast()
	e.wg.Wait()
}
