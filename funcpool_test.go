package weft

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestFuncPool_InvokeAll(t *testing.T) {
	var sum atomic.Int64
	fp, err := NewFuncPool(func(n int64) error {
		sum.Add(n)
		return nil
	}, WithNumWorkers(4))
	if err != nil {
		t.Fatal(err)
	}
	defer fp.Shutdown(true)

	const numTasks = 100
	for i := int64(1); i <= numTasks; i++ {
		if _, err := fp.Invoke(i); err != nil {
			t.Fatal(err)
		}
	}
	fp.Wait()

	if want := int64(numTasks * (numTasks + 1) / 2); sum.Load() != want {
		t.Errorf("sum = %d, want %d", sum.Load(), want)
	}
}

func TestFuncPool_NilFunc(t *testing.T) {
	if _, err := NewFuncPool[int](nil); !errors.Is(err, ErrNilTask) {
		t.Errorf("Expected ErrNilTask, got %v", err)
	}
}

func TestFuncPool_InvokeReturnsError(t *testing.T) {
	want := errors.New("odd argument")
	fp, err := NewFuncPool(func(n int) error {
		if n%2 == 1 {
			return want
		}
		return nil
	}, WithNumWorkers(2))
	if err != nil {
		t.Fatal(err)
	}
	defer fp.Shutdown(true)

	h, _ := fp.Invoke(3)
	if got := h.Join(); !errors.Is(got, want) {
		t.Errorf("Join = %v, want %v", got, want)
	}

	h, _ = fp.Invoke(2)
	if got := h.Join(); got != nil {
		t.Errorf("Join = %v, want nil", got)
	}
}

func TestFuncPool_ExposesPool(t *testing.T) {
	fp, err := NewFuncPool(func(struct{}) error { return nil }, WithNumWorkers(2))
	if err != nil {
		t.Fatal(err)
	}
	defer fp.Shutdown(true)

	if fp.Pool().NumWorkers() != 2 {
		t.Errorf("NumWorkers = %d, want 2", fp.Pool().NumWorkers())
	}
}
