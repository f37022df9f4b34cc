package weft

// Stats is a snapshot of pool-wide counters. All values are collected
// without locks and may be slightly inconsistent with each other during
// concurrent operation.
type Stats struct {
	// Submitted is the total number of tasks accepted since creation,
	// counting both Submit calls and scoped spawns.
	Submitted uint64

	// Completed is the total number of tasks that finished execution,
	// including tasks that returned an error or panicked.
	Completed uint64

	// Dropped counts tasks failed with ErrPoolShutdown by an immediate
	// shutdown before they could run.
	Dropped uint64

	// Rejected counts Submit calls refused by the submit limiter.
	Rejected uint64

	// FallbackExecuted counts tasks run on the submitting goroutine
	// because every worker inbox was full.
	FallbackExecuted uint64

	// Stolen counts successful steals, by workers and by helping
	// waiters alike.
	Stolen uint64

	// Failed counts tasks that returned an error or panicked.
	Failed uint64

	// InFlight is the estimated number of tasks queued or executing:
	// Submitted - Completed - Dropped.
	InFlight uint64

	// Utilization is the percentage of total deque capacity in use.
	Utilization float64

	// WorkerStats holds one entry per worker.
	WorkerStats []WorkerStats

	// NumWorkers is the fixed worker count.
	NumWorkers int

	// TotalQueueDepth is the combined number of queued tasks across all
	// deques and inboxes, excluding tasks currently executing.
	TotalQueueDepth int

	// TotalQueueCapacity is the combined capacity of all worker deques.
	TotalQueueCapacity int
}

// WorkerStats describes a single worker. Each worker maintains its own
// counters, so reading them adds no contention to the hot path.
type WorkerStats struct {
	// WorkerID is the worker's index in [0, NumWorkers).
	WorkerID int

	// TasksExecuted counts tasks this worker ran, from any source.
	TasksExecuted uint64

	// TasksStolen counts tasks this worker took from peers.
	TasksStolen uint64

	// TasksFailed counts tasks that errored or panicked on this worker.
	TasksFailed uint64

	// QueueDepth is the worker's current deque plus inbox length.
	QueueDepth int64

	// Capacity is the worker's current deque capacity. Deques grow on
	// demand, so this can exceed the configured initial capacity.
	Capacity int64

	// State is "RUNNING", "SPINNING", "PARKED", or "SHUTDOWN".
	State string
}
