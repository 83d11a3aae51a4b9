package executor

import (
	"container/heap"
	"sync"

	"github.com/nordvolt/wallbox-core/internal/wallbox"
)

// pendingCall is one queued device operation awaiting the worker.
type pendingCall struct {
	priority int
	seq      uint64
	method   wallbox.Method
	args     []any
	cell     *resultCell

	// sentinel marks the shutdown entry; the worker resolves it and exits.
	sentinel bool
}

// callHeap orders pending calls by (priority, sequence): lower priority
// numbers first, submission order within a tier.
type callHeap []*pendingCall

func (h callHeap) Len() int { return len(h) }

func (h callHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h callHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *callHeap) Push(x any) {
	*h = append(*h, x.(*pendingCall))
}

func (h *callHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// callQueue is a blocking concurrent priority queue of pending calls.
type callQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	heap   callHeap
	closed bool
}

func newCallQueue() *callQueue {
	q := &callQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues a call. Returns false if the queue has been closed
// to new submissions.
func (q *callQueue) push(call *pendingCall) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed && !call.sentinel {
		return false
	}

	heap.Push(&q.heap, call)
	q.cond.Signal()
	return true
}

// pop blocks until a call is available and returns the most urgent one.
func (q *callQueue) pop() *pendingCall {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.heap.Len() == 0 {
		q.cond.Wait()
	}

	return heap.Pop(&q.heap).(*pendingCall)
}

// close rejects further non-sentinel submissions.
func (q *callQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// len reports the number of queued calls.
func (q *callQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}
