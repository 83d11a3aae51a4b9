// Package executor serializes all wallbox device access through a single
// worker goroutine draining a priority queue.
//
// The device can only safely process one request at a time, so true
// serialization (not just mutual exclusion) is required: the worker is
// the only goroutine that ever invokes the device gateway. Callers
// enqueue a pending call and await its result cell.
//
// # Ordering
//
// The queue is a binary heap keyed on (priority, sequence). Lower
// priority numbers are serviced first; the sequence counter is
// process-lifetime monotonic and breaks ties in submission order, so
// equal-priority calls are FIFO and a flood of routine polls can never
// starve a single user action placed at a lower number.
//
// Priority tiers: actions run at PriorityAction (1), ad-hoc calls at
// PriorityDefault (5), the status poll at PriorityPoll (10). The
// shutdown sentinel uses priority 0 so nothing can be dequeued ahead
// of it once shutdown is requested.
//
// # Timeouts and cancellation
//
// A caller-side timeout or context cancellation abandons only the wait:
// the in-flight gateway call runs to completion under its own transport
// timeout, and the worker's later resolve of the abandoned cell is a
// no-op. One failing or slow call never blocks or poisons the calls
// behind it; only the sentinel ends the worker loop.
package executor
