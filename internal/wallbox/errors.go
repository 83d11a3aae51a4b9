package wallbox

import (
	"errors"
	"fmt"
)

// Sentinel errors for the wallbox package.
var (
	// ErrUnknownMethod indicates an Invoke with a Method outside the enum.
	ErrUnknownMethod = errors.New("wallbox: unknown method")

	// ErrInvalidArgs indicates an Invoke with the wrong argument count or types.
	ErrInvalidArgs = errors.New("wallbox: invalid arguments")

	// ErrInvalidConfig indicates the client was constructed with bad settings.
	ErrInvalidConfig = errors.New("wallbox: invalid configuration")
)

// DeviceError is an application-level error reported by the device itself.
//
// The device answers failed operations with a JSON body carrying a
// machine-readable kind and a human-readable message; both are preserved
// so action handlers can decide which kinds are benign (e.g. "NotFound"
// when stopping without an active transaction).
type DeviceError struct {
	Kind    string
	Message string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("wallbox: device error %s: %s", e.Kind, e.Message)
}

// IsDeviceErrorKind reports whether err is a DeviceError with the given kind.
func IsDeviceErrorKind(err error, kind string) bool {
	var devErr *DeviceError
	return errors.As(err, &devErr) && devErr.Kind == kind
}

// ConnectivityError is a transport-level failure reaching the device:
// a timeout or a refused connection. These are expected outcomes on a
// flaky local network and during device restarts, and are handled
// differently from device errors throughout the supervisor.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("wallbox: connectivity failure during %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// IsConnectivity reports whether err is (or wraps) a ConnectivityError.
func IsConnectivity(err error) bool {
	var connErr *ConnectivityError
	return errors.As(err, &connErr)
}
