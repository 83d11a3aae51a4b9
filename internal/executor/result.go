package executor

import "sync"

// cellState tracks the lifecycle of a pending call's result slot.
type cellState int

const (
	cellPending cellState = iota
	cellResolved
	cellCancelled
)

// resultCell is a single-assignment result slot with explicit
// three-state semantics: pending, resolved (value or error), cancelled.
//
// The timeout path and the worker's completion path race on every slow
// call; resolve-if-pending makes whichever arrives second a safe no-op.
type resultCell struct {
	mu    sync.Mutex
	state cellState
	value any
	err   error

	// done is closed exactly once, on the pending -> resolved or
	// pending -> cancelled transition.
	done chan struct{}
}

func newResultCell() *resultCell {
	return &resultCell{
		done: make(chan struct{}),
	}
}

// resolve completes the cell with a value or error. Returns false
// without effect if the cell already left the pending state.
func (c *resultCell) resolve(value any, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != cellPending {
		return false
	}
	c.state = cellResolved
	c.value = value
	c.err = err
	close(c.done)
	return true
}

// cancel marks the cell cancelled with the abandoning caller's error.
// Returns false without effect if the cell already left the pending
// state (the worker won the race).
func (c *resultCell) cancel(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != cellPending {
		return false
	}
	c.state = cellCancelled
	c.err = err
	close(c.done)
	return true
}

// cancelled reports whether the cell was abandoned by its caller.
// The worker checks this before invoking the gateway so abandoned
// calls are skipped without touching the device.
func (c *resultCell) cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == cellCancelled
}

// result returns the final value and error. Only valid after done is closed.
func (c *resultCell) result() (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.err
}
