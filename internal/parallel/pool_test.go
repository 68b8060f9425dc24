package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// WorkerPool
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("pool should be running after creation")
	}
}

func TestWorkerPool_CreateDefaultWorkers(t *testing.T) {
	for _, n := range []int{0, -3} {
		pool := NewWorkerPool(n)
		if pool.Workers() != runtime.GOMAXPROCS(0) {
			t.Errorf("NewWorkerPool(%d).Workers() = %d, want GOMAXPROCS", n, pool.Workers())
		}
		pool.Close()
	}
}

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}

	pool.ExecuteAll(work)

	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}

	// Should not panic or block.
	pool.ExecuteAll(nil)
}

func TestWorkerPool_CloseIdempotent(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Close()
	pool.Close()

	if pool.IsRunning() {
		t.Error("pool should not be running after close")
	}
}

func TestWorkerPool_ExecuteAllAfterClose(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Close()

	var executed atomic.Bool
	pool.ExecuteAll([]func(){func() { executed.Store(true) }})

	time.Sleep(20 * time.Millisecond)
	if executed.Load() {
		t.Error("work was executed on closed pool")
	}
}

func TestWorkerPool_Concurrent(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Dispatch(50, func(uint32) { counter.Add(1) })
		}()
	}
	wg.Wait()

	if counter.Load() != 500 {
		t.Errorf("counter = %d, want 500", counter.Load())
	}
}

func TestWorkerPool_NoGoroutineLeak(t *testing.T) {
	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	baseline := runtime.NumGoroutine()

	for range 5 {
		pool := NewWorkerPool(4)
		pool.Dispatch(100, func(uint32) {})
		pool.Close()
	}

	runtime.GC()
	time.Sleep(100 * time.Millisecond)

	if final := runtime.NumGoroutine(); final > baseline+2 {
		t.Errorf("goroutine count: baseline=%d, final=%d (leak detected)", baseline, final)
	}
}

// =============================================================================
// Dispatch
// =============================================================================

func TestDispatch_EveryGroupOnce(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	for _, groups := range []uint32{1, 3, 16, 17, 1000} {
		hits := make([]atomic.Int32, groups)
		pool.Dispatch(groups, func(g uint32) { hits[g].Add(1) })
		for g := range hits {
			if n := hits[g].Load(); n != 1 {
				t.Fatalf("groups=%d: group %d ran %d times", groups, g, n)
			}
		}
	}
}

func TestDispatch_Zero(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	pool.Dispatch(0, func(uint32) { t.Error("zero-sized dispatch ran a group") })
}

func TestDispatch_InlineFallback(t *testing.T) {
	var nilPool *WorkerPool
	var sum uint32
	nilPool.Dispatch(4, func(g uint32) { sum += g })
	if sum != 6 {
		t.Errorf("nil pool sum = %d, want 6", sum)
	}

	closed := NewWorkerPool(2)
	closed.Close()
	sum = 0
	closed.Dispatch(4, func(g uint32) { sum += g })
	if sum != 6 {
		t.Errorf("closed pool sum = %d, want 6", sum)
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkDispatch(b *testing.B) {
	pool := NewWorkerPool(runtime.GOMAXPROCS(0))
	defer pool.Close()

	var sink atomic.Uint64
	b.ReportAllocs()
	for b.Loop() {
		pool.Dispatch(4096, func(g uint32) { sink.Add(uint64(g)) })
	}
}
