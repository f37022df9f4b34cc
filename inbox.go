package weft

import (
	"runtime"
	"sync/atomic"
	"unsafe"
)

// inbox is a bounded, lock-free MPSC queue. External submitters push from
// many goroutines; only the owning worker pops. It feeds the worker's
// local deque: the owner drains the inbox into the deque, where the work
// becomes stealable.
type inbox struct {
	_ cacheLinePad

	// head is only modified by the single consumer
	head atomic.Uint64

	_ cacheLinePad

	// tail is modified by multiple producers via CAS
	tail atomic.Uint64

	_ cacheLinePad

	buffer   []unsafe.Pointer
	mask     uint64
	capacity uint64
}

// newInbox creates a bounded MPSC queue. Capacity must be a power of two.
func newInbox(capacity int) *inbox {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("weft: inbox capacity must be a power of two and > 0")
	}

	return &inbox{
		buffer:   make([]unsafe.Pointer, capacity),
		mask:     uint64(capacity - 1),
		capacity: uint64(capacity),
	}
}

// tryPush attempts to enqueue a task. Safe for concurrent producers.
// Returns false if the queue is full.
func (q *inbox) tryPush(t *task) bool {
	if t == nil {
		return false
	}

	const maxAttempts = 64

	for attempt := 0; attempt < maxAttempts; attempt++ {
		tail := q.tail.Load()
		head := q.head.Load()

		// One slot stays empty to keep full and empty distinguishable.
		if tail-head >= q.capacity-1 {
			return false
		}

		if q.tail.CompareAndSwap(tail, tail+1) {
			atomic.StorePointer(&q.buffer[tail&q.mask], unsafe.Pointer(t))
			return true
		}

		// Lost the slot race; back off under contention.
		if attempt > 4 {
			runtime.Gosched()
		}
	}

	// Persistent contention; let the caller fall back to another inbox.
	return false
}

// pop dequeues one task. Single consumer only.
func (q *inbox) pop() *task {
	head := q.head.Load()
	tail := q.tail.Load()

	if head >= tail {
		return nil
	}

	index := head & q.mask
	ptr := atomic.LoadPointer(&q.buffer[index])

	// A producer advanced tail but has not published the slot yet.
	// Leave head alone and let the caller retry; the task is not lost.
	if ptr == nil {
		return nil
	}

	atomic.StorePointer(&q.buffer[index], nil)
	q.head.Store(head + 1)

	return (*task)(ptr)
}

// size returns the approximate queue length.
func (q *inbox) size() int {
	head := q.head.Load()
	tail := q.tail.Load()
	if tail < head {
		return 0
	}
	return int(tail - head)
}

func (q *inbox) isEmpty() bool {
	return q.head.Load() >= q.tail.Load()
}
