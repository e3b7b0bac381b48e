// Package service models the controllable capabilities of a device.
//
// Each Service pairs a capability type from a closed set (light, siren,
// lock, thermostat, media, button, sensor, gateway) with its own settings
// model and observable state. Typed actions (SetPower, SetBrightness,
// SetColor, ...) validate their input against the capability's state
// typing, derive dependent transitions such as the implicit power-on for a
// positive brightness, and route commands through the owning device to
// the driver. Local state never changes optimistically; it moves only on
// driver-confirmed updates.
//
// A Manager owns the full service set for one device and reconciles it
// against the capability lists the driver reports on load.
package service
