// Package wallbox implements the HTTP client for the wallbox device API.
//
// The device exposes a small JSON-over-HTTP interface protected by basic
// auth. It is slow (single embedded controller) and tolerates exactly one
// request at a time; callers must never talk to a Client concurrently.
// Serialization is the executor package's job, not this package's.
//
// # Method dispatch
//
// Every supported device operation is a member of the closed Method enum.
// Invoke routes a Method plus untyped arguments to the corresponding typed
// call, validating argument count and types up front. This keeps the
// single-queue property (any operation can be enqueued uniformly) without
// runtime reflection.
//
// # Error taxonomy
//
// Failures fall into three classes:
//
//   - ConnectivityError: timeout or connection refused at the transport
//     layer. Expected during device restarts and Wi-Fi hiccups.
//   - DeviceError: the device answered with an application-level error
//     carrying a machine-readable Kind (e.g. "NotFound") and a message.
//   - Anything else is unexpected and propagates unwrapped.
//
// Callers classify with IsConnectivity and errors.As on *DeviceError.
package wallbox
