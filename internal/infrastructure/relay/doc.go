// Package relay provides the MQTT transport between the server and the
// physical devices it controls.
//
// Devices connect to a shared broker and exchange messages on per-device
// topics (see topics.go for the scheme). The driver layer builds on three
// primitives from this package:
//
//   - Subscribe: receive device events (oa/device/{id}/event/#)
//   - Publish: fire-and-forget acknowledgements and notifications
//   - Request: command round-trips correlated by acknowledgement topic
//
// The client tracks its subscriptions and restores them automatically after
// a reconnect, publishes retained online/offline status for the server, and
// configures a Last Will so an unexpected exit is visible to devices.
package relay
