// Package api provides the HTTP REST API and WebSocket server for the
// wallbox supervisor.
//
// It exposes the charger snapshot, control actions (charging start/stop,
// current limit, restart, RFID management), and the completed-session
// history to local dashboards and home-automation integrations. Status
// updates stream over a WebSocket hub; every refresh is broadcast to
// connected clients.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Authentication: POST /api/v1/auth/login exchanges the configured
// operator credentials for a short-lived JWT; all other endpoints
// except /health require it as a Bearer token. WebSocket connections
// authenticate with a single-use ticket from POST /auth/ws-ticket so
// the JWT never appears in a URL.
package api
