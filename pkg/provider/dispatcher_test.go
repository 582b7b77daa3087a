package provider

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parasvc/fabric/pkg/ipc/backend"
)

func TestDispatcherSerializedRunsEveryCall(t *testing.T) {
	d := NewDispatcher(backend.CallModeSerialized, 0, 0)
	defer d.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = d.Dispatch(context.Background(), func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
	}
	wg.Wait()

	// The calls are issued from separate goroutines, so their issue order is
	// not fixed and the recorded order is not checked; what is checked is
	// that Dispatch never returns before its own job ran, which each appended
	// index proves.
	if len(order) != 20 {
		t.Fatalf("ran %d jobs, want 20", len(order))
	}
}

func TestDispatcherSerializedRunsOneAtATime(t *testing.T) {
	d := NewDispatcher(backend.CallModeSerialized, 0, 0)
	defer d.Close()

	var inFlight int32
	var maxObserved int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Dispatch(context.Background(), func(context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				if n > atomic.LoadInt32(&maxObserved) {
					atomic.StoreInt32(&maxObserved, n)
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if maxObserved != 1 {
		t.Fatalf("max concurrent jobs = %d, want 1", maxObserved)
	}
}

func TestDispatcherConcurrentBoundsParallelism(t *testing.T) {
	d := NewDispatcher(backend.CallModeConcurrent, 3, 0)
	defer d.Close()

	var inFlight int32
	var maxObserved int32
	var wg sync.WaitGroup

	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Dispatch(context.Background(), func(context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					cur := atomic.LoadInt32(&maxObserved)
					if n <= cur || atomic.CompareAndSwapInt32(&maxObserved, cur, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if maxObserved > 3 {
		t.Fatalf("max concurrent jobs = %d, want <= 3", maxObserved)
	}
	if maxObserved < 2 {
		t.Fatalf("max concurrent jobs = %d, want > 1 (parallelism unused)", maxObserved)
	}
}

func TestDispatcherDispatchRespectsContextCancellation(t *testing.T) {
	d := NewDispatcher(backend.CallModeConcurrent, 1, 0)
	defer d.Close()

	release := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		_ = d.Dispatch(context.Background(), func(context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := d.Dispatch(ctx, func(context.Context) error { return nil })
	if err == nil {
		t.Fatalf("expected error for cancelled context while the only slot is held")
	}
}
