package weft

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ============================================================================
// Submission Throughput
// ============================================================================

func BenchmarkSubmit_Instant(b *testing.B) {
	pool, _ := NewPool(
		WithNumWorkers(runtime.NumCPU()),
		WithDequeCapacity(1024),
	)
	defer pool.Shutdown(true)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pool.Submit(func() error {
			// Instant task
			return nil
		})
	}
	pool.Wait()

	b.ReportMetric(float64(b.N)/b.Elapsed().Seconds(), "tasks/sec")
}

func BenchmarkSubmit_Goroutines_Instant(b *testing.B) {
	b.ResetTimer()
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < b.N; i++ {
		wg.Add(1)
		go func() {
			// Instant task
			wg.Done()
		}()
	}
	wg.Wait()

	b.ReportMetric(float64(b.N)/time.Since(start).Seconds(), "tasks/sec")
}

func BenchmarkSubmit_1us(b *testing.B) {
	pool, _ := NewPool(
		WithNumWorkers(runtime.NumCPU()*2),
		WithDequeCapacity(1024),
	)
	defer pool.Shutdown(true)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pool.Submit(func() error {
			time.Sleep(time.Microsecond)
			return nil
		})
	}
	pool.Wait()

	b.ReportMetric(float64(b.N)/b.Elapsed().Seconds(), "tasks/sec")
}

// ============================================================================
// Scoped Spawn Throughput
// ============================================================================

func BenchmarkScope_Spawn(b *testing.B) {
	pool, _ := NewPool(
		WithNumWorkers(runtime.NumCPU()),
		WithDequeCapacity(1024),
	)
	defer pool.Shutdown(true)

	b.ResetTimer()
	pool.WithScope(func(s Scope) error {
		for i := 0; i < b.N; i++ {
			s.Spawn(func(Scope) error { return nil })
		}
		return nil
	})

	b.ReportMetric(float64(b.N)/b.Elapsed().Seconds(), "tasks/sec")
}

func BenchmarkScope_Fib20(b *testing.B) {
	pool, _ := NewPool(WithNumWorkers(runtime.NumCPU()))
	defer pool.Shutdown(true)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var result int64
		pool.WithScope(func(s Scope) error {
			return fib(s, 20, &result)
		})
		if result != 6765 {
			b.Fatalf("fib(20) = %d", result)
		}
	}
}

// ============================================================================
// Stealing Under Imbalance
// ============================================================================

func BenchmarkSteal_SingleProducer(b *testing.B) {
	pool, _ := NewPool(
		WithNumWorkers(runtime.NumCPU()),
		WithDequeCapacity(1024),
	)
	defer pool.Shutdown(true)

	var done atomic.Int64

	b.ResetTimer()
	pool.WithScope(func(s Scope) error {
		s.Spawn(func(s Scope) error {
			for i := 0; i < b.N; i++ {
				s.Spawn(func(Scope) error {
					done.Add(1)
					return nil
				})
			}
			return nil
		})
		return nil
	})

	if done.Load() != int64(b.N) {
		b.Fatalf("completed %d/%d", done.Load(), b.N)
	}
}
