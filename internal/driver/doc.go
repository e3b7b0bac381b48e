// Package driver translates between per-hardware-family wire vocabularies
// and the canonical event and command sets the device layer consumes.
//
// Three families ship built in:
//
//   - standard: pass-through for devices already speaking the canonical
//     vocabulary (also the default for unknown device types and gateways)
//   - liger: a vendor family with renamed wire events and commands and a
//     body envelope around every payload
//   - generic: devices declaring a generic_type, with per-capability
//     translation delegated to a SubAdapter (e.g. the button adapter's
//     sensitivity rescaling)
//
// A Registry maps device-type strings to factories; Create builds the
// right driver for one device over a relay Conn. Command round-trips use
// correlated request/acknowledgement topic pairs on the relay broker and
// resolve exactly once, on acknowledgement or context expiry.
package driver
