// Package telemetry writes device state history to InfluxDB.
//
// The device runtime feeds numeric state transitions (brightness levels,
// temperatures, connectivity) into this package as they are confirmed by
// hardware. Telemetry is optional: when disabled in config, or when the
// server runs without an InfluxDB instance, a nil client is used and every
// write becomes a no-op.
package telemetry
