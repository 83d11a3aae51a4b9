package executor

import "errors"

// Sentinel errors for the executor package.
var (
	// ErrCallTimeout indicates a call's wait deadline elapsed before the
	// worker resolved it. The queued call itself is abandoned, not aborted.
	ErrCallTimeout = errors.New("executor: call timed out")

	// ErrShuttingDown indicates a call was submitted after Shutdown.
	ErrShuttingDown = errors.New("executor: shutting down")
)
