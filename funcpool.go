package weft

// FuncPool binds a pool to a single typed task function. Callers submit
// arguments instead of closures, which avoids a closure allocation per
// task on hot submission paths.
type FuncPool[T any] struct {
	pool *Pool
	fn   func(T) error
}

// NewFuncPool creates a pool dedicated to fn.
func NewFuncPool[T any](fn func(T) error, opts ...Option) (*FuncPool[T], error) {
	if fn == nil {
		return nil, ErrNilTask
	}

	pool, err := NewPool(opts...)
	if err != nil {
		return nil, err
	}

	return &FuncPool[T]{pool: pool, fn: fn}, nil
}

// Invoke submits one invocation of the bound function with arg.
func (fp *FuncPool[T]) Invoke(arg T) (*Handle, error) {
	return fp.pool.Submit(func() error {
		return fp.fn(arg)
	})
}

// Pool exposes the underlying pool for stats, scopes and shutdown control.
func (fp *FuncPool[T]) Pool() *Pool {
	return fp.pool
}

// Wait blocks until all invocations submitted so far have completed.
func (fp *FuncPool[T]) Wait() {
	fp.pool.Wait()
}

// Shutdown stops the underlying pool. See Pool.Shutdown.
func (fp *FuncPool[T]) Shutdown(graceful bool) {
	fp.pool.Shutdown(graceful)
}
