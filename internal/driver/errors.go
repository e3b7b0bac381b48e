package driver

import "errors"

// Sentinel errors for the driver package.
var (
	// ErrInvalidOptions is returned when a factory is given unusable
	// options (missing device id, nil transport).
	ErrInvalidOptions = errors.New("invalid driver options")

	// ErrNoHandler is returned by Connect when no event handler has been
	// registered yet.
	ErrNoHandler = errors.New("no event handler registered")

	// ErrInvalidCommand is returned for commands a family cannot express
	// on the wire.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrCommandRejected is returned when the device acknowledged a
	// command negatively.
	ErrCommandRejected = errors.New("command rejected by device")

	// ErrUnknownGenericType is returned when no sub-adapter is registered
	// for a device's declared generic_type.
	ErrUnknownGenericType = errors.New("unknown generic type")
)
