// Package weft provides a work-stealing task runtime with structured
// concurrency for Go.
//
// A Pool owns a fixed set of workers, one Chase-Lev deque each. Workers
// execute their own deque bottom-first (LIFO, depth-first locally) and,
// when empty, steal from a random peer's top (FIFO, which tends to take
// the largest unexplored subtree of work). Idle workers spin, then yield,
// then park; any new work wakes them.
//
// # Quick start
//
//	pool, err := weft.NewPool()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Shutdown(true)
//
//	h, _ := pool.Submit(func() error {
//	    return doWork()
//	})
//	if err := h.Join(); err != nil {
//	    log.Printf("task failed: %v", err)
//	}
//
// # Scopes
//
// WithScope is the structured-concurrency entry point: every task spawned
// inside the block completes (or fails) before the block returns, however
// deep the spawn tree goes. Waiting is cooperative: the waiting worker
// keeps executing ready tasks instead of blocking its thread, so nested
// scopes cannot exhaust the pool.
//
//	err := pool.WithScope(func(s weft.Scope) error {
//	    s.Spawn(func(s weft.Scope) error {
//	        // may spawn siblings or open s.WithScope(...) here
//	        return nil
//	    })
//	    s.Spawn(step2)
//	    return nil
//	})
//
// A Scope value is bound to the goroutine that received it and must not
// be handed to goroutines the pool does not manage. Data captured by
// spawned closures stays valid for the whole block: the implicit wait is
// the upper bound on every child task's lifetime.
//
// Failures do not cancel siblings. The block returns the single failure,
// or an *AggregateError when several tasks failed; panics inside task
// bodies are recovered and surface as *PanicError.
//
// # Configuration
//
//	pool, err := weft.NewPool(
//	    weft.WithNumWorkers(8),
//	    weft.WithDequeCapacity(512),
//	    weft.WithSpinCount(100),
//	    weft.WithMaxParkTime(5 * time.Millisecond),
//	    weft.WithSubmitLimit(10_000),
//	)
//
// WithSpinCount and WithMaxParkTime tune the spin-then-yield-then-park
// backoff of idle workers: spin longer for latency, park longer for CPU.
//
// # Shutdown
//
// Shutdown(true) drains all accepted work before stopping. Shutdown(false)
// stops after in-flight task bodies return; queued tasks are failed with
// ErrPoolShutdown so scope counters and handles still settle.
//
// # Observability
//
// Stats returns lock-free counters for submissions, completions, steals,
// failures, and per-worker activity. The weftprom subpackage exposes the
// same numbers as a prometheus.Collector.
package weft
