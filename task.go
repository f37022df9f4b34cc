package weft

import (
	"log"
	"runtime/debug"
	"time"
)

// task is a schedulable unit of work: a body plus the completion state it
// reports to. A task lives in exactly one deque or inbox at a time, or is
// being executed by exactly one goroutine, or is done.
type task struct {
	fn func(Scope) error

	// scope is the owning scope's shared state, nil for top-level
	// submissions.
	scope *scopeState

	// handle receives the result of a top-level submission, nil for
	// scoped tasks.
	handle *Handle

	pool *Pool
}

// invoke runs the body with panic recovery. A recovered panic is converted
// to a *PanicError and, when configured, forwarded to the panic handler.
func (t *task) invoke(sc Scope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
			if h := t.pool.config.PanicHandler; h != nil {
				h(r)
			} else {
				log.Printf("weft: task panic recovered: %v", r)
			}
		}
	}()

	return t.fn(sc)
}

// finish records the task's outcome: scope live-count decrement, handle
// completion, pool accounting. Called exactly once per task, after invoke
// or when the task is dropped during immediate shutdown.
func (t *task) finish(err error, dropped bool) {
	p := t.pool

	if err != nil {
		p.metrics.failed.Add(1)
	}

	if t.scope != nil {
		if err != nil {
			t.scope.record(err)
		}
		// The decrement must come after the error is recorded so that
		// a waiter observing zero also observes every failure.
		t.scope.live.Add(-1)
	}

	if t.handle != nil {
		t.handle.complete(err)
		if p.limiter != nil {
			p.limiter.Release(1)
		}
	}

	if dropped {
		p.metrics.dropped.Add(1)
	} else {
		p.metrics.completed.Add(1)
	}
	p.submitWg.Done()
}

// Handle is the completion handle for a task submitted with Pool.Submit.
type Handle struct {
	pool *Pool
	err  error
	done chan struct{}
}

func newHandle(p *Pool) *Handle {
	return &Handle{pool: p, done: make(chan struct{})}
}

func (h *Handle) complete(err error) {
	h.err = err
	close(h.done)
}

// Done reports whether the task has completed, without blocking.
func (h *Handle) Done() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Join blocks until the task has completed and returns its error, if any.
// A panicking task body surfaces as a *PanicError.
//
// While waiting, Join participates in the stealing protocol: it takes
// ready tasks from worker deques and runs them on the calling goroutine,
// so a Join issued from inside other pool work cannot starve the pool.
func (h *Handle) Join() error {
	seed := stealSeed()

	for {
		select {
		case <-h.done:
			return h.err
		default:
		}

		if t := h.pool.stealAny(&seed); t != nil {
			h.pool.runDetached(t)
			continue
		}

		// Nothing to help with; wait for completion or re-check for
		// late-arriving work.
		select {
		case <-h.done:
			return h.err
		case <-time.After(h.pool.config.MaxParkTime):
		}
	}
}
