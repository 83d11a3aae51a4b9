// Package mqtt publishes the wallbox supervisor's state to an MQTT broker.
//
// Two retained topics per supervisor instance:
//
//	wallbox/{client_id}/status        JSON snapshot after every refresh
//	wallbox/{client_id}/availability  "online" / "offline" liveness
//
// The availability topic doubles as the Last Will and Testament target:
// if the supervisor dies without a graceful disconnect, the broker
// publishes the retained "offline" payload on its behalf.
//
// Connection management (initial connect timeout, auto-reconnect with
// exponential backoff, TLS) is configured from the mqtt section of
// config.yaml. Publishing while disconnected returns ErrNotConnected;
// the next refresh publishes the current state after reconnect, so no
// queueing is needed.
package mqtt
