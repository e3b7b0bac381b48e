// Package device implements the top-level addressable unit of the relay
// core: one physical device aggregating a driver, its services, settings,
// reactive connection state, token lifecycle and persistence.
//
// State mutations (including nested service state) funnel through a
// trailing-edge debounce so a telemetry burst collapses to one "updated"
// notification and one save. Token rotation is a three-step exchange
// (device confirm, persist, reconnect) with a compensating command when
// persistence fails after the device already confirmed; a failed
// compensation is logged as a consistency fault and never retried.
//
// The Registry is the process-wide device collection, populated from
// SQLite at boot and mutated only through its own methods.
package device
