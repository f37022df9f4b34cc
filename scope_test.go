package weft

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWithScope_WaitsForAllSpawns(t *testing.T) {
	pool, _ := NewPool(WithNumWorkers(4))
	defer pool.Shutdown(true)

	var done atomic.Int32
	const numTasks = 100

	err := pool.WithScope(func(s Scope) error {
		for i := 0; i < numTasks; i++ {
			s.Spawn(func(Scope) error {
				done.Add(1)
				return nil
			})
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// Every spawn must have completed before WithScope returned.
	if done.Load() != numTasks {
		t.Errorf("WithScope returned with %d/%d tasks done", done.Load(), numTasks)
	}
}

func TestWithScope_WaitsForTransitiveSpawns(t *testing.T) {
	pool, _ := NewPool(WithNumWorkers(4))
	defer pool.Shutdown(true)

	var done atomic.Int32

	err := pool.WithScope(func(s Scope) error {
		for i := 0; i < 10; i++ {
			s.Spawn(func(s Scope) error {
				for j := 0; j < 10; j++ {
					s.Spawn(func(Scope) error {
						done.Add(1)
						return nil
					})
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if done.Load() != 100 {
		t.Errorf("Grandchild tasks done = %d, want 100", done.Load())
	}
}

func TestWithScope_NestedScopeDrainsFirst(t *testing.T) {
	pool, _ := NewPool(WithNumWorkers(4))
	defer pool.Shutdown(true)

	var innerDone atomic.Bool
	var orderOK atomic.Bool

	err := pool.WithScope(func(s Scope) error {
		if err := s.WithScope(func(inner Scope) error {
			for i := 0; i < 20; i++ {
				inner.Spawn(func(Scope) error {
					time.Sleep(100 * time.Microsecond)
					return nil
				})
			}
			inner.Spawn(func(Scope) error {
				innerDone.Store(true)
				return nil
			})
			return nil
		}); err != nil {
			return err
		}

		// The nested block has returned, so all of its tasks are done.
		orderOK.Store(innerDone.Load())
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !orderOK.Load() {
		t.Error("Nested scope returned before its tasks completed")
	}
}

func TestWithScope_SiblingsRunDespiteFailure(t *testing.T) {
	pool, _ := NewPool(WithNumWorkers(4))
	defer pool.Shutdown(true)

	want := errors.New("child failed")
	var siblings atomic.Int32

	err := pool.WithScope(func(s Scope) error {
		s.Spawn(func(Scope) error { return want })
		for i := 0; i < 50; i++ {
			s.Spawn(func(Scope) error {
				siblings.Add(1)
				return nil
			})
		}
		return nil
	})

	if !errors.Is(err, want) {
		t.Errorf("WithScope error = %v, want %v", err, want)
	}
	// No cancellation: a failure never stops the siblings.
	if siblings.Load() != 50 {
		t.Errorf("Siblings completed = %d, want 50", siblings.Load())
	}
}

func TestWithScope_AggregatesMultipleFailures(t *testing.T) {
	pool, _ := NewPool(WithNumWorkers(4))
	defer pool.Shutdown(true)

	errA := errors.New("a")
	errB := errors.New("b")
	errC := errors.New("c")

	err := pool.WithScope(func(s Scope) error {
		s.Spawn(func(Scope) error { return errA })
		s.Spawn(func(Scope) error { return errB })
		s.Spawn(func(Scope) error { return errC })
		return nil
	})

	var agg *AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("Expected *AggregateError, got %v", err)
	}
	if len(agg.Errors) != 3 {
		t.Errorf("Aggregate holds %d errors, want 3", len(agg.Errors))
	}
	for _, want := range []error{errA, errB, errC} {
		if !errors.Is(err, want) {
			t.Errorf("errors.Is(%v) = false", want)
		}
	}
}

func TestWithScope_BodyErrorComesFirst(t *testing.T) {
	pool, _ := NewPool(WithNumWorkers(2))
	defer pool.Shutdown(true)

	bodyErr := errors.New("body")
	childErr := errors.New("child")

	err := pool.WithScope(func(s Scope) error {
		s.Spawn(func(Scope) error { return childErr })
		return bodyErr
	})

	var agg *AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("Expected *AggregateError, got %v", err)
	}
	if !errors.Is(agg.Errors[0], bodyErr) {
		t.Errorf("First aggregated error = %v, want body error", agg.Errors[0])
	}
}

func TestWithScope_PanicInBodyStillWaits(t *testing.T) {
	pool, _ := NewPool(WithNumWorkers(4))
	defer pool.Shutdown(true)

	var done atomic.Int32

	err := pool.WithScope(func(s Scope) error {
		for i := 0; i < 20; i++ {
			s.Spawn(func(Scope) error {
				time.Sleep(100 * time.Microsecond)
				done.Add(1)
				return nil
			})
		}
		panic("body exploded")
	})

	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected *PanicError, got %v", err)
	}
	if done.Load() != 20 {
		t.Errorf("Panicking body left %d/20 children unfinished", 20-done.Load())
	}
}

func TestWithScope_PanicInChildSurfaces(t *testing.T) {
	pool, _ := NewPool(WithNumWorkers(2))
	defer pool.Shutdown(true)

	err := pool.WithScope(func(s Scope) error {
		s.Spawn(func(Scope) error { panic("child exploded") })
		return nil
	})

	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected *PanicError, got %v", err)
	}
	if pe.Value != "child exploded" {
		t.Errorf("PanicError.Value = %v", pe.Value)
	}
	if pe.Stack == "" {
		t.Error("PanicError carries no stack trace")
	}
}

func TestSpawn_AfterBlockReturnsPanics(t *testing.T) {
	pool, _ := NewPool(WithNumWorkers(2))
	defer pool.Shutdown(true)

	var escaped Scope
	pool.WithScope(func(s Scope) error {
		escaped = s
		return nil
	})

	defer func() {
		if recover() == nil {
			t.Error("Spawn on a completed scope should panic")
		}
	}()
	escaped.Spawn(func(Scope) error { return nil })
}

func TestSpawn_NilFuncRecordsError(t *testing.T) {
	pool, _ := NewPool(WithNumWorkers(2))
	defer pool.Shutdown(true)

	err := pool.WithScope(func(s Scope) error {
		s.Spawn(nil)
		return nil
	})
	if !errors.Is(err, ErrNilTask) {
		t.Errorf("Expected ErrNilTask, got %v", err)
	}
}

func TestWithScope_NilBody(t *testing.T) {
	pool, _ := NewPool(WithNumWorkers(2))
	defer pool.Shutdown(true)

	if err := pool.WithScope(nil); !errors.Is(err, ErrNilTask) {
		t.Errorf("Expected ErrNilTask, got %v", err)
	}
}

func TestWithScope_AfterShutdown(t *testing.T) {
	pool, _ := NewPool(WithNumWorkers(2))
	pool.Shutdown(true)

	err := pool.WithScope(func(s Scope) error { return nil })
	if !errors.Is(err, ErrPoolShutdown) {
		t.Errorf("Expected ErrPoolShutdown, got %v", err)
	}
}

func TestWithScope_FromExternalGoroutine(t *testing.T) {
	// The caller of WithScope here is a plain test goroutine, not a pool
	// worker; it helps drain the scope by stealing.
	pool, _ := NewPool(WithNumWorkers(2))
	defer pool.Shutdown(true)

	results := make([]atomic.Int32, 64)
	err := pool.WithScope(func(s Scope) error {
		for i := range results {
			i := i
			s.Spawn(func(Scope) error {
				results[i].Add(1)
				return nil
			})
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := range results {
		if results[i].Load() != 1 {
			t.Errorf("Task %d ran %d times, want 1", i, results[i].Load())
		}
	}
}
