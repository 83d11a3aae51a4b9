package supervisor

import "errors"

// Sentinel errors for the supervisor package.
var (
	// ErrNoRFIDTags indicates charging cannot start because the device
	// has no authorized tags to charge under.
	ErrNoRFIDTags = errors.New("supervisor: no RFID tags configured on device")

	// ErrNotReady indicates the mandatory first refresh did not succeed.
	ErrNotReady = errors.New("supervisor: wallbox not ready")
)
