package weft

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// workerState represents the current state of a worker
type workerState int32

const (
	stateRunning workerState = iota
	stateSpinning
	stateParked
	stateShutdown
)

func (s workerState) String() string {
	switch s {
	case stateRunning:
		return "RUNNING"
	case stateSpinning:
		return "SPINNING"
	case stateParked:
		return "PARKED"
	case stateShutdown:
		return "SHUTDOWN"
	}
	return "UNKNOWN"
}

// worker is a single worker goroutine: it drains its inbox, pops its own
// deque, and steals from random peers when both are empty.
type worker struct {
	id   int
	pool *Pool

	// inbox receives external submissions (MPSC)
	inbox *inbox

	// local holds this worker's ready tasks (Chase-Lev, stealable)
	local *deque

	state atomic.Int32

	tasksExecuted atomic.Uint64
	tasksStolen   atomic.Uint64
	tasksFailed   atomic.Uint64

	// seed drives XorShift victim selection, distinct per worker
	seed uint32

	parkMutex sync.Mutex
	parkCond  *sync.Cond
	wakeup    atomic.Uint32
}

func newWorker(id int, pool *Pool, cfg *Config) *worker {
	w := &worker{
		id:    id,
		pool:  pool,
		inbox: newInbox(cfg.InboxCapacity),
		local: newDeque(int64(cfg.DequeCapacity)),
		seed:  uint32(time.Now().UnixNano() + int64(id)*7919),
	}
	w.parkCond = sync.NewCond(&w.parkMutex)
	w.state.Store(int32(stateRunning))
	return w
}

// run is the main worker loop. It exits only when the pool has stopped and
// no task was found.
func (w *worker) run() {
	if w.pool.config.PinWorkerThreads {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	if h := w.pool.config.OnWorkerStart; h != nil {
		h(w.id)
	}

	for {
		// Once the pool has stopped, leftover queued tasks are failed
		// in drainOnShutdown rather than run.
		if w.pool.getState() == poolStateStopped {
			break
		}

		t := w.findTask()
		if t == nil {
			continue
		}
		w.executeTask(t)
	}

	w.state.Store(int32(stateShutdown))
	w.drainOnShutdown()

	if h := w.pool.config.OnWorkerStop; h != nil {
		h(w.id)
	}
}

// findTask searches for work in priority order: inbox, local deque, steal,
// then a final local check before parking. Returns nil only after a park
// round found nothing.
func (w *worker) findTask() *task {
	w.drainInbox()

	if t := w.local.pop(); t != nil {
		return t
	}

	if t := w.trySteal(); t != nil {
		return t
	}

	w.drainInbox()
	if t := w.local.pop(); t != nil {
		return t
	}

	return w.parkAndWait()
}

// drainInbox promotes a batch of external submissions into the local
// deque, where they become stealable. Owner only.
func (w *worker) drainInbox() {
	const batchSize = 8
	for i := 0; i < batchSize; i++ {
		t := w.inbox.pop()
		if t == nil {
			return
		}
		w.local.push(t)
	}
	// More left; let a parked peer help with the backlog.
	w.pool.wakeOne()
}

// trySteal attempts to take work from random victims, with backoff between
// rounds of failures. A contended steal is retried against a fresh victim
// immediately; only observed-empty victims count toward backoff.
func (w *worker) trySteal() *task {
	numWorkers := len(w.pool.workers)
	if numWorkers <= 1 {
		return nil
	}

	attempts := 0
	emptyFinds := 0

	for attempts < w.pool.config.StealAttempts {
		victimID := w.randomVictim()
		if victimID == w.id {
			attempts++
			continue
		}

		victim := w.pool.workers[victimID]
		stolen, outcome := victim.local.steal()

		if outcome == stealOK {
			w.tasksStolen.Add(1)
			w.pool.metrics.stolen.Add(1)
			w.batchSteal(victim)
			return stolen
		}

		attempts++
		if outcome == stealEmpty {
			emptyFinds++
		}

		if emptyFinds > 4 {
			backoff := min(emptyFinds*2, 64)
			for i := 0; i < backoff; i++ {
				runtime.Gosched()
			}
		}

		// Periodically check our own queues: a submitter or a waiter
		// may have produced work while we were out raiding.
		if attempts%16 == 0 {
			w.drainInbox()
			if t := w.local.pop(); t != nil {
				return t
			}
		}
	}

	return nil
}

// batchSteal grabs a few extra tasks from a victim that just yielded one.
// Stealing a chunk of an old subtree amortizes the raid.
func (w *worker) batchSteal(victim *worker) {
	const batchStealCount = 7
	for i := 0; i < batchStealCount; i++ {
		t, outcome := victim.local.steal()
		if outcome != stealOK {
			return
		}
		w.local.push(t)
		w.tasksStolen.Add(1)
		w.pool.metrics.stolen.Add(1)
	}
}

// randomVictim selects a victim index using XorShift
func (w *worker) randomVictim() int {
	w.seed ^= w.seed << 13
	w.seed ^= w.seed >> 17
	w.seed ^= w.seed << 5
	return int(w.seed % uint32(len(w.pool.workers)))
}

// parkAndWait spins briefly, then parks until signaled or the park timeout
// fires. The re-check under the park mutex closes the lost-wakeup window:
// a submitter that pushed between our last scan and the lock will either
// be seen by the re-check or find wakeup==0 and signal us.
func (w *worker) parkAndWait() *task {
	w.state.Store(int32(stateSpinning))
	for i := 0; i < w.pool.config.SpinCount; i++ {
		w.drainInbox()
		if t := w.local.pop(); t != nil {
			w.state.Store(int32(stateRunning))
			return t
		}
		runtime.Gosched()
	}

	w.pool.idleWorkers.Add(1)
	w.state.Store(int32(stateParked))
	w.parkMutex.Lock()

	w.drainInbox()
	if t := w.local.pop(); t != nil {
		w.parkMutex.Unlock()
		w.unpark()
		return t
	}

	// Termination detection: sleep only when no deque in the pool has
	// work and the pool is still running.
	if !w.pool.quiescent() || w.pool.getState() == poolStateStopped {
		w.parkMutex.Unlock()
		w.unpark()
		return nil
	}

	w.wakeup.Store(0)

	timer := time.AfterFunc(w.pool.config.MaxParkTime, func() {
		w.parkMutex.Lock()
		w.parkCond.Signal()
		w.parkMutex.Unlock()
	})

	w.parkCond.Wait()
	w.parkMutex.Unlock()
	timer.Stop()

	w.unpark()

	w.drainInbox()
	return w.local.pop()
}

func (w *worker) unpark() {
	w.state.Store(int32(stateRunning))
	w.pool.idleWorkers.Add(-1)
}

// signal wakes the worker if it is parked or about to park.
func (w *worker) signal() {
	if w.wakeup.Swap(1) == 0 {
		st := workerState(w.state.Load())
		if st == stateParked || st == stateSpinning {
			w.parkMutex.Lock()
			w.parkCond.Signal()
			w.parkMutex.Unlock()
		}
	}
}

// executeTask runs a task on this worker. The Scope binding hands the
// executing worker to the body, so transitive spawns land on our deque.
func (w *worker) executeTask(t *task) {
	err := t.invoke(Scope{state: t.scope, w: w})
	if err != nil {
		w.tasksFailed.Add(1)
	}
	t.finish(err, false)
	w.tasksExecuted.Add(1)
}

// drainOnShutdown fails any tasks left behind by an immediate shutdown.
// They never run, but their accounting must still settle: scope counters
// reach zero and handles complete, with ErrPoolShutdown recorded.
func (w *worker) drainOnShutdown() {
	for !w.inbox.isEmpty() {
		t := w.inbox.pop()
		if t == nil {
			// Producer claimed a slot but has not published it yet.
			runtime.Gosched()
			continue
		}
		t.finish(ErrPoolShutdown, true)
	}

	for {
		t := w.local.pop()
		if t == nil {
			return
		}
		t.finish(ErrPoolShutdown, true)
	}
}

func (w *worker) getState() workerState {
	return workerState(w.state.Load())
}
