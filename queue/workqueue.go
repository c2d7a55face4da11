// Package queue implements the control-plane work queue backing
// spec.md's queue_work API: the sole mechanism by which external threads
// may mutate engine/session state (§5 "Shared-resource policy"). Grounded
// on the teacher's internal/concurrency/executor.go (momentics/hioload-ws),
// which uses github.com/eapache/queue as a ring-buffer FIFO behind a
// worker pool; here there is exactly one consumer — the single engine
// thread — draining the queue between readiness-multiplexing iterations,
// matching spec.md §5's "all handler invocations happen on that worker"
// constraint.
package queue

import (
	"sync"

	"github.com/eapache/queue"
)

// Work is a closure queued for execution on the engine thread.
type Work func()

// WorkQueue is a thread-safe FIFO of pending Work items.
type WorkQueue struct {
	mu     sync.Mutex
	q      *queue.Queue
	closed bool
}

// New constructs an empty WorkQueue.
func New() *WorkQueue {
	return &WorkQueue{q: queue.New()}
}

// Push enqueues w for later execution. Returns false if the queue has been
// closed (e.g. the engine has already shut down).
func (wq *WorkQueue) Push(w Work) bool {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	if wq.closed {
		return false
	}
	wq.q.Add(w)
	return true
}

// DrainAll pops and returns every currently queued Work item, leaving the
// queue empty. Called by the engine once per readiness-loop iteration,
// after waking on the control descriptor.
func (wq *WorkQueue) DrainAll() []Work {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	n := wq.q.Length()
	if n == 0 {
		return nil
	}
	out := make([]Work, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, wq.q.Remove().(Work))
	}
	return out
}

// Close marks the queue closed; further Push calls fail.
func (wq *WorkQueue) Close() {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	wq.closed = true
}
