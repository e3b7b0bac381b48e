// Package state provides an observable key/value store and a
// trailing-edge debouncer. Devices and services keep their live state in a
// State and route its change callback through a Debouncer so a burst of
// telemetry collapses to a single notify-and-persist cycle.
package state
