package weft

import (
	"sync/atomic"
)

// cacheLinePad prevents false sharing between hot fields
type cacheLinePad struct {
	_ [64]byte
}

// stealOutcome reports why a steal returned no task.
type stealOutcome int

const (
	// stealOK means a task was taken.
	stealOK stealOutcome = iota
	// stealEmpty means the deque held no tasks at the time of the attempt.
	stealEmpty
	// stealRetry means the thief lost a race with another thief or the
	// owner's pop. The victim may still have tasks; a correct caller must
	// not treat this as absence of work.
	stealRetry
)

// deque is a Chase-Lev work-stealing deque of tasks.
//
// The owning worker pushes and pops at the bottom (LIFO), thieves steal
// from the top (FIFO relative to other steals). Coordination is lock-free:
// the owner has exclusive write access to bottom, thieves advance top via
// CAS. The backing array only ever grows; growth copies the live range
// into a fresh array and publishes it atomically, so a thief holding the
// old array still reads valid slots for any index it can claim.
type deque struct {
	_ cacheLinePad

	// top is the steal end, advanced by thieves (and by the owner's pop
	// when contending for the last element) via CAS.
	top atomic.Int64

	_ cacheLinePad

	// bottom is the owner end. Only the owning worker writes it.
	bottom atomic.Int64

	_ cacheLinePad

	array atomic.Pointer[circularArray]
}

// circularArray is the backing store. Immutable once published; a larger
// copy replaces it on overflow.
type circularArray struct {
	capacity int64
	buffer   []*task
}

func newDeque(initialCapacity int64) *deque {
	if initialCapacity <= 0 {
		initialCapacity = 16
	}
	d := &deque{}
	d.array.Store(newCircularArray(initialCapacity))
	return d
}

func newCircularArray(capacity int64) *circularArray {
	return &circularArray{
		capacity: capacity,
		buffer:   make([]*task, capacity),
	}
}

func (a *circularArray) get(index int64) *task {
	return a.buffer[index%a.capacity]
}

func (a *circularArray) put(index int64, t *task) {
	a.buffer[index%a.capacity] = t
}

// push adds a task at the bottom. Owner only.
//
// The store to the slot happens-before the store to bottom (Go atomics are
// sequentially consistent), so a thief that observes the new bottom also
// observes the task.
func (d *deque) push(t *task) {
	if t == nil {
		return
	}

	bottom := d.bottom.Load()
	top := d.top.Load()
	array := d.array.Load()

	// Leave one slot free to keep full and empty distinguishable.
	if bottom-top >= array.capacity-1 {
		array = d.grow(bottom, top, array)
		d.array.Store(array)
	}

	array.put(bottom, t)
	d.bottom.Store(bottom + 1)
}

// pop removes the most recently pushed task (LIFO). Owner only.
// Returns nil if the deque is empty or a thief won the last element.
func (d *deque) pop() *task {
	// Tentatively claim the last element by publishing the decremented
	// bottom before reading top. This ordering is what makes the
	// last-element race resolvable by CAS below.
	bottom := d.bottom.Load() - 1
	array := d.array.Load()
	d.bottom.Store(bottom)

	top := d.top.Load()

	if top > bottom {
		// Empty. Restore bottom.
		d.bottom.Store(bottom + 1)
		return nil
	}

	t := array.get(bottom)

	if top == bottom {
		// Last element: a concurrent steal may be claiming the same
		// slot. Whoever advances top wins.
		if !d.top.CompareAndSwap(top, top+1) {
			t = nil
		}
		d.bottom.Store(bottom + 1)
		return t
	}

	return t
}

// steal removes the least recently pushed task (FIFO). Safe for any thread.
func (d *deque) steal() (*task, stealOutcome) {
	top := d.top.Load()
	bottom := d.bottom.Load()

	if top >= bottom {
		return nil, stealEmpty
	}

	array := d.array.Load()
	t := array.get(top)

	// Claim the slot. A failed CAS means another thief or the owner's
	// pop got there first; the deque may still be non-empty.
	if !d.top.CompareAndSwap(top, top+1) {
		return nil, stealRetry
	}

	return t, stealOK
}

// grow doubles the backing array, preserving the live range [top, bottom).
// Owner only; the caller publishes the result.
func (d *deque) grow(bottom, top int64, old *circularArray) *circularArray {
	grown := newCircularArray(old.capacity * 2)
	for i := top; i < bottom; i++ {
		grown.put(i, old.get(i))
	}
	return grown
}

// size returns a snapshot of the current length. May be stale immediately.
func (d *deque) size() int64 {
	bottom := d.bottom.Load()
	top := d.top.Load()

	size := bottom - top
	// A transient top > bottom is possible while a steal is in flight
	// and must read as empty, never negative.
	if size < 0 {
		return 0
	}
	return size
}

func (d *deque) isEmpty() bool {
	return d.size() == 0
}

func (d *deque) cap() int64 {
	return d.array.Load().capacity
}
