package device

import "errors"

// Sentinel errors for the device package.
var (
	// ErrNotConnected is returned for operations requiring a live device.
	ErrNotConnected = errors.New("device not connected")

	// ErrNotSaveable is returned when persisting a device whose token has
	// never been confirmed.
	ErrNotSaveable = errors.New("device not saveable")

	// ErrInvalidToken is returned for an unusable token value.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenViaEmit is returned when a token change is attempted outside
	// the SetToken exchange.
	ErrTokenViaEmit = errors.New("token changes must use the token exchange")

	// ErrUnknownEvent is returned for inbound events outside the canonical
	// set with no service routing.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrNotFound is returned when a device id is not registered.
	ErrNotFound = errors.New("device not found")

	// ErrAlreadyRegistered is returned when adding a device under an id
	// that is already registered.
	ErrAlreadyRegistered = errors.New("device already registered")
)
