package weft

import (
	"runtime"
	"time"
)

// Config contains all configuration options for the pool.
type Config struct {
	// NumWorkers is the number of worker goroutines.
	// If 0, defaults to runtime.NumCPU().
	NumWorkers int

	// DequeCapacity is the initial capacity of each worker's local
	// work-stealing deque. Deques grow on overflow and never shrink.
	// Must be a power of 2. If 0, defaults to 256.
	DequeCapacity int

	// InboxCapacity is the size of each worker's MPSC inbox for external
	// submissions. Must be a power of 2. If 0, defaults to 256.
	InboxCapacity int

	// StealAttempts is the number of failed steal attempts across random
	// victims before an idle worker gives up and parks.
	// Defaults to 128.
	StealAttempts int

	// SpinCount is the number of iterations to spin before parking.
	// Higher values reduce wakeup latency but burn CPU when idle.
	// Defaults to 30.
	SpinCount int

	// MaxParkTime is the maximum time a worker sleeps when parked before
	// re-checking for work. Defaults to 10ms.
	MaxParkTime time.Duration

	// SubmitLimit bounds the number of in-flight tasks accepted through
	// Submit. 0 means unbounded. Scoped spawns are never limited.
	SubmitLimit int

	// PanicHandler is called with the recovered value when a task body
	// panics, in addition to the panic being recorded as a *PanicError.
	PanicHandler func(interface{})

	// OnWorkerStart is called when a worker starts.
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called when a worker stops.
	OnWorkerStop func(workerID int)

	// PinWorkerThreads locks each worker goroutine to an OS thread.
	// Improves cache locality for CPU-bound workloads at the cost of
	// scheduler flexibility.
	PinWorkerThreads bool
}

// Option configures a pool.
type Option func(*Config)

// WithNumWorkers sets the number of workers.
func WithNumWorkers(n int) Option {
	return func(c *Config) { c.NumWorkers = n }
}

// WithDequeCapacity sets the initial per-worker deque capacity.
func WithDequeCapacity(n int) Option {
	return func(c *Config) { c.DequeCapacity = n }
}

// WithInboxCapacity sets the per-worker external inbox capacity.
func WithInboxCapacity(n int) Option {
	return func(c *Config) { c.InboxCapacity = n }
}

// WithStealAttempts sets how many failed steals precede parking.
func WithStealAttempts(n int) Option {
	return func(c *Config) { c.StealAttempts = n }
}

// WithSpinCount sets the spin iterations before parking.
func WithSpinCount(n int) Option {
	return func(c *Config) { c.SpinCount = n }
}

// WithMaxParkTime sets the maximum park duration.
func WithMaxParkTime(d time.Duration) Option {
	return func(c *Config) { c.MaxParkTime = d }
}

// WithSubmitLimit bounds in-flight Submit tasks; over-limit submissions
// fail with ErrQueueFull.
func WithSubmitLimit(n int) Option {
	return func(c *Config) { c.SubmitLimit = n }
}

// WithPanicHandler sets a handler for recovered task panics.
func WithPanicHandler(h func(interface{})) Option {
	return func(c *Config) { c.PanicHandler = h }
}

// WithWorkerHooks sets start and stop hooks for worker lifecycles.
func WithWorkerHooks(onStart, onStop func(workerID int)) Option {
	return func(c *Config) {
		c.OnWorkerStart = onStart
		c.OnWorkerStop = onStop
	}
}

// WithPinWorkerThreads locks workers to OS threads.
func WithPinWorkerThreads(pin bool) Option {
	return func(c *Config) { c.PinWorkerThreads = pin }
}

func defaultConfig() Config {
	return Config{
		NumWorkers:    runtime.NumCPU(),
		DequeCapacity: 256,
		InboxCapacity: 256,
		StealAttempts: 128,
		SpinCount:     30,
		MaxParkTime:   10 * time.Millisecond,
	}
}

func (c *Config) validate() error {
	if c.NumWorkers < 0 {
		return errInvalidConfig("NumWorkers must be >= 0")
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = runtime.NumCPU()
	}

	if c.DequeCapacity < 0 {
		return errInvalidConfig("DequeCapacity must be >= 0")
	}
	if c.DequeCapacity == 0 {
		c.DequeCapacity = 256
	}
	if !isPowerOfTwo(c.DequeCapacity) {
		return errInvalidConfig("DequeCapacity must be a power of 2")
	}

	if c.InboxCapacity < 0 {
		return errInvalidConfig("InboxCapacity must be >= 0")
	}
	if c.InboxCapacity == 0 {
		c.InboxCapacity = 256
	}
	if !isPowerOfTwo(c.InboxCapacity) {
		return errInvalidConfig("InboxCapacity must be a power of 2")
	}

	if c.StealAttempts <= 0 {
		c.StealAttempts = 128
	}
	if c.SpinCount < 0 {
		return errInvalidConfig("SpinCount must be >= 0")
	}
	if c.MaxParkTime <= 0 {
		c.MaxParkTime = 10 * time.Millisecond
	}
	if c.SubmitLimit < 0 {
		return errInvalidConfig("SubmitLimit must be >= 0")
	}

	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
