package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nordvolt/wallbox-core/internal/wallbox"
)

// Priority tiers. Lower values are serviced first.
const (
	priorityShutdown = 0

	// PriorityAction is used by user-triggered control actions so they
	// preempt routine polling.
	PriorityAction = 1

	// PriorityDefault is the tier for ad-hoc calls (startup fetches,
	// configuration flows).
	PriorityDefault = 5

	// PriorityPoll is the tier for the periodic status refresh battery.
	PriorityPoll = 10
)

// DefaultTimeout bounds a caller's wait for its result when no
// explicit timeout is given.
const DefaultTimeout = 10 * time.Second

// shutdownTimeout bounds the wait for the worker to acknowledge the
// sentinel. Teardown proceeds regardless once it elapses.
const shutdownTimeout = 5 * time.Second

// Gateway is the device call boundary the worker drives. Exactly one
// goroutine (the worker) invokes it; implementations need no internal
// serialization.
type Gateway interface {
	Invoke(ctx context.Context, method wallbox.Method, args ...any) (any, error)
}

// Logger is the minimal logging surface the executor needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// CallOptions tune a single submission.
type CallOptions struct {
	// Priority tier; zero means PriorityDefault.
	Priority int

	// Timeout bounds the caller's wait; zero means DefaultTimeout.
	Timeout time.Duration
}

// Executor owns the pending-call queue and the single worker goroutine
// that drains it. One Executor instance supervises one device.
type Executor struct {
	gateway Gateway
	logger  Logger
	queue   *callQueue

	// seq is the process-lifetime submission counter used for FIFO
	// tie-breaking within a priority tier. Never reset.
	seq atomic.Uint64

	// workerDone is closed when the worker loop exits.
	workerDone chan struct{}

	shutdownOnce sync.Once
}

// New creates an Executor and starts its worker goroutine.
//
// Parameters:
//   - gateway: Device call boundary; invoked only by the worker
//   - logger: Destination for worker-side warnings and errors
//
// Returns:
//   - *Executor: Running executor; stop it with Shutdown
func New(gateway Gateway, logger Logger) *Executor {
	e := &Executor{
		gateway:    gateway,
		logger:     logger,
		queue:      newCallQueue(),
		workerDone: make(chan struct{}),
	}
	go e.worker()
	return e
}

// Call enqueues a device operation at PriorityDefault with
// DefaultTimeout and waits for its result.
func (e *Executor) Call(ctx context.Context, method wallbox.Method, args ...any) (any, error) {
	return e.CallWith(ctx, CallOptions{}, method, args...)
}

// CallWith enqueues a device operation and waits for its result.
//
// The timeout and ctx bound only the caller's wait. A call already
// dequeued by the worker runs to completion against the device; its
// eventual result is discarded via the cell's no-op resolve.
//
// Returns:
//   - any: The gateway's result unchanged (nil for void operations)
//   - error: ErrCallTimeout, ctx.Err(), ErrShuttingDown, or the
//     gateway's own error
func (e *Executor) CallWith(ctx context.Context, opts CallOptions, method wallbox.Method, args ...any) (any, error) {
	priority := opts.Priority
	if priority <= 0 {
		priority = PriorityDefault
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cell := newResultCell()
	call := &pendingCall{
		priority: priority,
		seq:      e.seq.Add(1),
		method:   method,
		args:     args,
		cell:     cell,
	}

	if !e.queue.push(call) {
		return nil, fmt.Errorf("%w: %s rejected", ErrShuttingDown, method)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-cell.done:
		return cell.result()

	case <-timer.C:
		err := fmt.Errorf("%w: %s after %v", ErrCallTimeout, method, timeout)
		if !cell.cancel(err) {
			// Worker resolved it in the same instant; use the real result.
			return cell.result()
		}
		e.logger.Warn("timeout waiting for device call", "method", method.String(), "timeout", timeout.String())
		return nil, err

	case <-ctx.Done():
		if !cell.cancel(ctx.Err()) {
			return cell.result()
		}
		e.logger.Warn("device call abandoned by caller", "method", method.String(), "reason", ctx.Err().Error())
		return nil, ctx.Err()
	}
}

// Shutdown stops the worker. It enqueues the priority-0 sentinel, which
// outranks every pending and future call, then waits up to five seconds
// for the worker to acknowledge. If a long device call is still in
// flight the wait can lapse; teardown proceeds anyway.
//
// Safe to call more than once.
func (e *Executor) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.queue.close()

		cell := newResultCell()
		e.queue.push(&pendingCall{
			priority: priorityShutdown,
			seq:      e.seq.Add(1),
			cell:     cell,
			sentinel: true,
		})

		select {
		case <-cell.done:
		case <-time.After(shutdownTimeout):
			e.logger.Warn("timeout waiting for executor worker to stop")
		}
	})
}

// Done is closed once the worker loop has exited.
func (e *Executor) Done() <-chan struct{} {
	return e.workerDone
}

// QueueDepth reports the number of calls currently waiting. Exposed
// for health reporting.
func (e *Executor) QueueDepth() int {
	return e.queue.len()
}

// worker is the single consumer: it drains the queue one call at a
// time for the lifetime of the executor. Per-call failures never end
// the loop; only the sentinel does.
func (e *Executor) worker() {
	defer close(e.workerDone)

	for {
		call := e.queue.pop()

		if call.cell.cancelled() {
			// Caller gave up before we got here; skip without touching
			// the device.
			continue
		}

		if call.sentinel {
			call.cell.resolve(nil, nil)
			return
		}

		result, err := e.gateway.Invoke(context.Background(), call.method, call.args...)
		switch {
		case err == nil:
			call.cell.resolve(result, nil)

		case wallbox.IsConnectivity(err):
			if call.method == wallbox.MethodUtilRestart {
				// Restarting drops the connection; that is the restart
				// working, not failing.
				e.logger.Warn("connection lost during restart, treating as success", "method", call.method.String())
				call.cell.resolve(nil, nil)
			} else {
				e.logger.Warn("connectivity failure on device call", "method", call.method.String(), "error", err.Error())
				call.cell.resolve(nil, err)
			}

		default:
			e.logger.Error("device call failed", "method", call.method.String(), "error", err.Error())
			call.cell.resolve(nil, err)
		}
	}
}
