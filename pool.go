package weft

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// poolState represents pool lifecycle states
type poolState uint32

const (
	poolStateRunning poolState = iota
	poolStateDraining
	poolStateStopped
)

// Pool is a fixed-size pool of work-stealing workers. The worker count is
// set at creation and never changes; each worker owns one deque, and all
// cross-worker coordination goes through atomics on the deques, the
// inboxes, and a small set of pool-wide counters. There is no global task
// lock.
//
// Multiple independent pools can coexist; nothing here is process-global.
type Pool struct {
	config  Config
	workers []*worker

	state    atomic.Uint32
	wg       sync.WaitGroup
	submitWg sync.WaitGroup

	// nextWorkerID rotates the starting inbox for external submissions
	nextWorkerID atomic.Uint64

	// idleWorkers counts parked workers, for termination detection
	idleWorkers atomic.Int64

	// limiter bounds in-flight Submit tasks when WithSubmitLimit is set
	limiter *semaphore.Weighted

	metrics poolMetrics
}

// poolMetrics tracks pool-wide counters
type poolMetrics struct {
	submitted atomic.Uint64
	completed atomic.Uint64
	dropped   atomic.Uint64
	rejected  atomic.Uint64
	fallback  atomic.Uint64
	stolen    atomic.Uint64
	failed    atomic.Uint64
}

// NewPool creates a pool with the given options and starts its workers.
// It returns an error if the configuration is invalid.
//
// Example:
//
//	pool, err := weft.NewPool(
//	    weft.WithNumWorkers(4),
//	    weft.WithDequeCapacity(512),
//	)
func NewPool(opts ...Option) (*Pool, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	pool := &Pool{
		config:  cfg,
		workers: make([]*worker, cfg.NumWorkers),
	}
	pool.state.Store(uint32(poolStateRunning))

	if cfg.SubmitLimit > 0 {
		pool.limiter = semaphore.NewWeighted(int64(cfg.SubmitLimit))
	}

	for i := 0; i < cfg.NumWorkers; i++ {
		pool.workers[i] = newWorker(i, pool, &cfg)
	}

	for _, w := range pool.workers {
		pool.wg.Add(1)
		go func(wk *worker) {
			defer pool.wg.Done()
			wk.run()
		}(w)
	}

	return pool, nil
}

// Submit schedules fn to run on the pool and returns a completion handle.
// The task lands in a worker inbox (round-robin); if every inbox is full
// it runs on the caller's goroutine instead, so Submit never drops work.
//
// Returns ErrNilTask for a nil fn, ErrPoolShutdown once shutdown has
// begun, and ErrQueueFull when a submit limit is configured and exhausted.
func (p *Pool) Submit(fn func() error) (*Handle, error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	if p.getState() != poolStateRunning {
		return nil, ErrPoolShutdown
	}

	if p.limiter != nil && !p.limiter.TryAcquire(1) {
		p.metrics.rejected.Add(1)
		return nil, ErrQueueFull
	}

	h := newHandle(p)
	t := &task{
		pool:   p,
		handle: h,
		fn:     func(Scope) error { return fn() },
	}

	// The waitgroup must grow before the task becomes visible, so that
	// Wait cannot observe a completed count it never saw submitted.
	p.submitWg.Add(1)
	p.metrics.submitted.Add(1)

	if !p.dispatch(t) {
		p.metrics.fallback.Add(1)
		p.runDetached(t)
	}

	return h, nil
}

// dispatch places a task in some worker's inbox, round-robin, and wakes
// the chosen worker. Returns false if every inbox is full.
func (p *Pool) dispatch(t *task) bool {
	n := len(p.workers)
	start := int(p.nextWorkerID.Add(1) % uint64(n))

	for i := 0; i < n; i++ {
		wk := p.workers[(start+i)%n]
		if wk.inbox.tryPush(t) {
			wk.signal()
			return true
		}
	}
	return false
}

// runDetached executes a task on the current goroutine, outside any
// worker. The Scope binding carries no worker, so transitive spawns route
// back through the inboxes.
func (p *Pool) runDetached(t *task) {
	err := t.invoke(Scope{state: t.scope})
	t.finish(err, false)
}

// stealAny raids worker deques starting from a random victim. Contended
// victims are retried a few times before moving on; an all-empty sweep
// returns nil.
func (p *Pool) stealAny(seed *uint32) *task {
	n := len(p.workers)
	start := int(xorshift(seed) % uint32(n))

	for i := 0; i < n; i++ {
		wk := p.workers[(start+i)%n]
		for retry := 0; retry < 4; retry++ {
			t, outcome := wk.local.steal()
			if outcome == stealOK {
				p.metrics.stolen.Add(1)
				return t
			}
			if outcome == stealEmpty {
				break
			}
		}
	}
	return nil
}

// wakeOne signals one parked worker, if any. Called after new work is
// pushed to a deque so an idle peer can come steal it.
func (p *Pool) wakeOne() {
	if p.idleWorkers.Load() == 0 {
		return
	}
	for _, wk := range p.workers {
		if wk.getState() == stateParked {
			wk.signal()
			return
		}
	}
}

// quiescent reports whether every deque and inbox in the pool is empty.
// A worker may park only when this holds; the check runs after the worker
// has published its parked state, which closes the race against a
// concurrent push.
func (p *Pool) quiescent() bool {
	for _, wk := range p.workers {
		if !wk.local.isEmpty() || !wk.inbox.isEmpty() {
			return false
		}
	}
	return true
}

// Shutdown stops the pool and joins all workers. If graceful is true it
// first waits for all accepted work to finish; otherwise queued tasks are
// failed with ErrPoolShutdown and only in-flight task bodies complete.
//
// Shutdown is idempotent; later calls return immediately.
func (p *Pool) Shutdown(graceful bool) {
	if graceful {
		if !p.state.CompareAndSwap(uint32(poolStateRunning), uint32(poolStateDraining)) {
			return
		}
		p.submitWg.Wait()
		p.state.Store(uint32(poolStateStopped))
	} else {
		for {
			s := p.getState()
			if s == poolStateStopped {
				return
			}
			if p.state.CompareAndSwap(uint32(s), uint32(poolStateStopped)) {
				break
			}
		}
	}

	for _, wk := range p.workers {
		wk.signal()
	}
	p.wg.Wait()
}

// Wait blocks until every task accepted so far has completed. The pool
// remains usable afterwards.
func (p *Pool) Wait() {
	p.submitWg.Wait()
}

// IsShutdown reports whether the pool has stopped.
func (p *Pool) IsShutdown() bool {
	return p.getState() == poolStateStopped
}

// NumWorkers returns the fixed worker count.
func (p *Pool) NumWorkers() int {
	return len(p.workers)
}

func (p *Pool) getState() poolState {
	return poolState(p.state.Load())
}

// Stats returns a snapshot of pool statistics. Values are read without
// locks and may be mutually inconsistent during concurrent operation.
func (p *Pool) Stats() Stats {
	submitted := p.metrics.submitted.Load()
	completed := p.metrics.completed.Load()
	dropped := p.metrics.dropped.Load()
	rejected := p.metrics.rejected.Load()

	inFlight := submitted - completed - dropped

	workerStats := make([]WorkerStats, len(p.workers))
	totalDepth := int64(0)
	totalCapacity := int64(0)

	for i, wk := range p.workers {
		depth := wk.local.size() + int64(wk.inbox.size())
		capacity := wk.local.cap()

		totalDepth += depth
		totalCapacity += capacity

		workerStats[i] = WorkerStats{
			WorkerID:      i,
			TasksExecuted: wk.tasksExecuted.Load(),
			TasksStolen:   wk.tasksStolen.Load(),
			TasksFailed:   wk.tasksFailed.Load(),
			QueueDepth:    depth,
			Capacity:      capacity,
			State:         wk.getState().String(),
		}
	}

	utilization := float64(0)
	if totalCapacity > 0 {
		utilization = float64(totalDepth) / float64(totalCapacity) * 100.0
	}

	return Stats{
		Submitted:          submitted,
		Completed:          completed,
		Dropped:            dropped,
		Rejected:           rejected,
		FallbackExecuted:   p.metrics.fallback.Load(),
		Stolen:             p.metrics.stolen.Load(),
		Failed:             p.metrics.failed.Load(),
		InFlight:           inFlight,
		Utilization:        utilization,
		WorkerStats:        workerStats,
		NumWorkers:         len(p.workers),
		TotalQueueDepth:    int(totalDepth),
		TotalQueueCapacity: int(totalCapacity),
	}
}

// stealSeed derives a seed for goroutines that steal without being
// workers (Join helpers, detached scope waits).
func stealSeed() uint32 {
	return uint32(time.Now().UnixNano()) | 1
}

func xorshift(seed *uint32) uint32 {
	s := *seed
	s ^= s << 13
	s ^= s >> 17
	s ^= s << 5
	*seed = s
	return s
}
