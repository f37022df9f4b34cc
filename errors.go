package weft

import (
	"errors"
	"fmt"
)

// Common errors returned by the pool.
var (
	// ErrPoolShutdown is returned when submitting to a pool that has been
	// shut down, and is recorded against tasks that were dropped by an
	// immediate shutdown before they could run.
	ErrPoolShutdown = &PoolError{msg: "pool is shutdown"}

	// ErrQueueFull is returned by Submit when the submit limiter
	// (WithSubmitLimit) rejects the task. The caller owns backpressure:
	// retry, drop, or block as appropriate.
	ErrQueueFull = &PoolError{msg: "queue is full"}

	// ErrNilTask is returned when a nil function is submitted or spawned.
	ErrNilTask = &PoolError{msg: "task is nil"}
)

// PoolError represents an error that occurred within the pool. It supports
// unwrapping for use with errors.Is and errors.As.
type PoolError struct {
	msg string
	err error
}

func (e *PoolError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("weft: %s: %v", e.msg, e.err)
	}
	return fmt.Sprintf("weft: %s", e.msg)
}

func (e *PoolError) Unwrap() error {
	return e.err
}

func errInvalidConfig(msg string) error {
	return &PoolError{msg: "invalid config: " + msg}
}

// PanicError wraps a panic recovered from a task body.
type PanicError struct {
	Value interface{}
	Stack string
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v\n%s", p.Value, p.Stack)
}

// AggregateError combines the failures of several tasks in one scope.
// The first error in Errors is the first one recorded.
type AggregateError struct {
	Errors []error
}

func (a *AggregateError) Error() string {
	if len(a.Errors) == 0 {
		return "no errors"
	}
	return fmt.Sprintf("%d errors: %v", len(a.Errors), a.Errors)
}

// Unwrap makes AggregateError compatible with errors.Is/errors.As.
func (a *AggregateError) Unwrap() []error {
	return a.Errors
}

// Is reports whether any aggregated error matches target.
func (a *AggregateError) Is(target error) bool {
	for _, err := range a.Errors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// As finds the first aggregated error matching target.
func (a *AggregateError) As(target interface{}) bool {
	for _, err := range a.Errors {
		if errors.As(err, target) {
			return true
		}
	}
	return false
}
