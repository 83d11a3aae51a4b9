// Package supervisor maintains the last-known wallbox state and drives
// the periodic status refresh and all control actions.
//
// The Supervisor owns the Snapshot, a guarded key/value view of device
// state consumed by the API, MQTT publisher and telemetry writer. Every
// device interaction goes through the command executor: the refresh
// battery at poll priority, user actions at action priority so they
// preempt routine polling.
//
// # Refresh semantics
//
// A refresh fetches the volatile status fields and builds a merged
// snapshot: identity, firmware and setup fields fetched once at startup
// are carried forward untouched, as are the persisted last-transaction
// keys. Fields not re-queried in a cycle are never dropped.
//
// Connectivity failures during a refresh are transient: the previous
// snapshot is kept as-is and the success flag stays true, so a Wi-Fi
// hiccup does not mark the charger unavailable. Device-level and
// unexpected errors flip the flag to false and propagate.
package supervisor
