// Package api provides the HTTP REST API and WebSocket server for the
// relay core.
//
// It exposes account sessions, the device registry and the automation
// manager to clients, and pushes real-time updates through a WebSocket
// hub with account-scoped channels.
//
// The server follows the same lifecycle pattern as the infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api
