package weft

import (
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// scopeState is the shared state of one scope: the live-task counter and
// the recorded failures. It is referenced by every task spawned in the
// scope and by the block that owns it.
type scopeState struct {
	pool *Pool

	// live counts not-yet-completed tasks spawned in this scope,
	// including spawns by its own tasks. It is incremented before a
	// spawned task becomes visible to any worker and decremented after
	// the task's outcome is recorded, so live==0 implies every failure
	// is visible to the waiter.
	live atomic.Int64

	// closed flips once the owning block's wait has returned. Spawning
	// into a completed scope is a programming error.
	closed atomic.Bool

	mu   sync.Mutex
	errs []error
}

func (st *scopeState) record(err error) {
	st.mu.Lock()
	st.errs = append(st.errs, err)
	st.mu.Unlock()
}

// result folds the block body's error and all recorded task failures into
// the scope's return value: nil, the single failure, or an aggregate.
func (st *scopeState) result(bodyErr error) error {
	st.mu.Lock()
	errs := st.errs
	st.errs = nil
	st.mu.Unlock()

	all := make([]error, 0, len(errs)+1)
	if bodyErr != nil {
		all = append(all, bodyErr)
	}
	all = append(all, errs...)

	switch len(all) {
	case 0:
		return nil
	case 1:
		return all[0]
	default:
		return &AggregateError{Errors: all}
	}
}

// Scope is a handle to a structured-concurrency scope, bound to the
// goroutine currently executing inside it. Scope values are small and
// passed by value; the binding is refreshed on every task execution so
// that spawns from a child task target the worker actually running it.
//
// All tasks spawned through a Scope complete (or fail) before the
// WithScope block that created it returns. Data captured by spawned
// closures therefore outlives every task that borrows it, as long as it
// outlives the block itself.
type Scope struct {
	state *scopeState

	// w is the worker executing the current body, nil on goroutines
	// outside the pool.
	w *worker
}

// Spawn schedules fn as a child task of the scope. The scope's live count
// grows before the task is published, so a concurrent waiter can never
// observe a live scope at zero while a spawn is in flight.
//
// When called on a worker, the task goes to that worker's own deque
// (depth-first locally, stealable by idle peers). Elsewhere it is routed
// through the pool's inboxes.
//
// Spawning into a scope whose block has already returned panics: the
// spawned closure could otherwise outlive the data it captures.
func (sc Scope) Spawn(fn func(Scope) error) {
	st := sc.state
	if st == nil || st.closed.Load() {
		panic("weft: Spawn on a completed scope")
	}
	if fn == nil {
		st.record(ErrNilTask)
		return
	}

	p := st.pool
	if p.getState() == poolStateStopped {
		st.record(ErrPoolShutdown)
		return
	}

	st.live.Add(1)
	p.submitWg.Add(1)
	p.metrics.submitted.Add(1)

	t := &task{pool: p, scope: st, fn: fn}

	if sc.w != nil {
		sc.w.local.push(t)
		p.wakeOne()
		return
	}

	if !p.dispatch(t) {
		p.metrics.fallback.Add(1)
		p.runDetached(t)
	}
}

// WithScope opens a nested scope inside the current one. The body runs
// inline on the calling goroutine; the implicit wait at the end of the
// block drains the nested scope before the outer scope can make progress
// past it.
func (sc Scope) WithScope(fn func(Scope) error) error {
	if fn == nil {
		return ErrNilTask
	}
	return runScope(sc.state.pool, sc.w, fn)
}

// WithScope runs fn inside a new scope and returns once every task
// spawned within it (transitively, including nested scopes) has completed
// or failed. The returned error is the body's error, a single task
// failure, or an *AggregateError; sibling tasks are never cancelled by a
// failure.
//
// Example:
//
//	err := pool.WithScope(func(s weft.Scope) error {
//	    s.Spawn(left)
//	    s.Spawn(right)
//	    return nil
//	})
func (p *Pool) WithScope(fn func(Scope) error) error {
	if fn == nil {
		return ErrNilTask
	}
	if p.getState() != poolStateRunning {
		return ErrPoolShutdown
	}
	return runScope(p, nil, fn)
}

func runScope(p *Pool, w *worker, fn func(Scope) error) error {
	st := &scopeState{pool: p}
	sc := Scope{state: st, w: w}

	// A panicking body must still wait for the children it already
	// spawned; bailing out early would let them outlive the block.
	bodyErr := invokeScopeBody(fn, sc)

	st.wait(w)
	st.closed.Store(true)

	return st.result(bodyErr)
}

func invokeScopeBody(fn func(Scope) error, sc Scope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return fn(sc)
}

// wait blocks, in the logical sense, until the scope's live count reaches
// zero. The underlying goroutine is never parked: it keeps executing
// ready tasks, which both reuses the idle time and avoids deadlock when
// scopes nest deeper than the worker count.
func (st *scopeState) wait(w *worker) {
	if w != nil {
		st.waitOn(w)
		return
	}
	st.waitDetached()
}

// waitOn is the worker-bound wait: run the scheduling loop on the waiting
// worker until the scope drains. Local pops come first, which prefers
// this scope's own spawns (they are the newest work on this deque).
func (st *scopeState) waitOn(w *worker) {
	for st.live.Load() > 0 {
		if t := w.local.pop(); t != nil {
			w.executeTask(t)
			continue
		}

		w.drainInbox()
		if t := w.local.pop(); t != nil {
			w.executeTask(t)
			continue
		}

		if t := w.trySteal(); t != nil {
			w.executeTask(t)
			continue
		}

		// The scope's remaining tasks are running on other workers.
		runtime.Gosched()
	}
}

// waitDetached is the wait for goroutines outside the pool: help by
// stealing from the workers, backing off when nothing is available.
func (st *scopeState) waitDetached() {
	seed := stealSeed()
	idle := 0

	for st.live.Load() > 0 {
		if t := st.pool.stealAny(&seed); t != nil {
			st.pool.runDetached(t)
			idle = 0
			continue
		}

		idle++
		if idle < 64 {
			runtime.Gosched()
		} else {
			time.Sleep(50 * time.Microsecond)
		}
	}
}
