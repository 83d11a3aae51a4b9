// Package influxdb records charging telemetry in InfluxDB v2.
//
// Three measurements:
//
//	charge_rate       instantaneous rate in amps, tagged by serial
//	session_energy    running session total in kWh
//	session_complete  finished sessions, timestamped at the charger's end time
//
// Writes use the non-blocking batched WriteAPI so the supervisor's poll
// loop never waits on the network. Async write failures surface through
// the SetOnError callback; the supervisor logs them and carries on, as
// telemetry is best-effort.
//
// The integration is optional: Connect returns ErrDisabled when the
// influxdb section of config.yaml has enabled: false, and callers treat
// a nil client as "no telemetry".
package influxdb
