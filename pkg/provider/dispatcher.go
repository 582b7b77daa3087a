package provider

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/parasvc/fabric/pkg/ipc/backend"
	"github.com/parasvc/fabric/pkg/metrics"
)

// DefaultConcurrentWorkers bounds a concurrent-mode Dispatcher when the
// caller does not supply one explicitly.
const DefaultConcurrentWorkers = 8

// DefaultSerializedQueueDepth bounds a serialized-mode Dispatcher's backlog
// when the caller does not supply one explicitly.
const DefaultSerializedQueueDepth = 1000

// Dispatcher enforces one provider's call-mode policy over calls the
// daemon issues into it: concurrent mode lets any number of calls run in
// parallel (bounded by a semaphore so one noisy provider cannot starve the
// runtime); serialized mode runs calls one at a time, in the order
// Dispatch was invoked, only starting the next once the previous one's
// call has returned.
type Dispatcher struct {
	mode backend.CallMode

	sem *semaphore.Weighted // concurrent mode

	jobs chan job // serialized mode: FIFO queue drained by one worker

	metrics    *metrics.Collectors
	providerID string
	inFlight   atomic.Int64
}

type job struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// NewDispatcher constructs a Dispatcher for mode. concurrency bounds
// parallel calls in concurrent mode (DefaultConcurrentWorkers if <= 0);
// queueDepth bounds the backlog in serialized mode
// (DefaultSerializedQueueDepth if <= 0).
func NewDispatcher(mode backend.CallMode, concurrency, queueDepth int) *Dispatcher {
	d := &Dispatcher{mode: mode}
	switch mode {
	case backend.CallModeConcurrent:
		if concurrency <= 0 {
			concurrency = DefaultConcurrentWorkers
		}
		d.sem = semaphore.NewWeighted(int64(concurrency))
	case backend.CallModeSerialized:
		if queueDepth <= 0 {
			queueDepth = DefaultSerializedQueueDepth
		}
		d.jobs = make(chan job, queueDepth)
		go d.drain()
	}
	return d
}

// Mode reports the call-mode policy this dispatcher enforces.
func (d *Dispatcher) Mode() backend.CallMode { return d.mode }

// SetMetrics wires Collectors into this dispatcher, labeled under
// providerID. A nil collectors is a valid no-op wiring.
func (d *Dispatcher) SetMetrics(m *metrics.Collectors, providerID uint32) {
	d.metrics = m
	d.providerID = strconv.FormatUint(uint64(providerID), 10)
}

func (d *Dispatcher) modeLabel() string {
	if d.mode == backend.CallModeConcurrent {
		return "concurrent"
	}
	return "serialized"
}

func (d *Dispatcher) drain() {
	for j := range d.jobs {
		j.done <- j.fn(j.ctx)
	}
}

// Dispatch runs fn under this dispatcher's call-mode policy and returns
// its result. In concurrent mode it waits for a semaphore slot and then
// runs fn on the caller's goroutine; in serialized mode it blocks until
// every call enqueued ahead of it has completed and its own turn arrives.
func (d *Dispatcher) Dispatch(ctx context.Context, fn func(ctx context.Context) error) error {
	if d.mode == backend.CallModeConcurrent {
		depth := d.inFlight.Add(1)
		d.metrics.SetDispatcherQueueDepth(d.providerID, d.modeLabel(), int(depth))
		defer func() {
			depth := d.inFlight.Add(-1)
			d.metrics.SetDispatcherQueueDepth(d.providerID, d.modeLabel(), int(depth))
		}()

		if err := d.sem.Acquire(ctx, 1); err != nil {
			return ctx.Err()
		}
		defer d.sem.Release(1)
		start := time.Now()
		err := fn(ctx)
		d.metrics.ObserveDispatch(d.providerID, d.modeLabel(), time.Since(start))
		return err
	}

	done := make(chan error, 1)
	d.metrics.SetDispatcherQueueDepth(d.providerID, d.modeLabel(), len(d.jobs)+1)
	select {
	case d.jobs <- job{ctx: ctx, fn: fn, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	start := time.Now()
	select {
	case err := <-done:
		d.metrics.ObserveDispatch(d.providerID, d.modeLabel(), time.Since(start))
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops a serialized dispatcher's drain goroutine. Concurrent-mode
// dispatchers own no background goroutine and Close is a no-op for them.
func (d *Dispatcher) Close() {
	if d.jobs != nil {
		close(d.jobs)
	}
}
