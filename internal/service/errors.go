package service

import "errors"

// Sentinel errors for the service package.
var (
	// ErrUnknownType is returned for a descriptor whose type is outside
	// the capability set.
	ErrUnknownType = errors.New("unknown service type")

	// ErrActionNotSupported is returned when an action is invoked on a
	// capability that does not carry the state it drives.
	ErrActionNotSupported = errors.New("action not supported")

	// ErrNotConnected is returned when an action is attempted while the
	// service is unreachable.
	ErrNotConnected = errors.New("service not connected")

	// ErrAlreadyExists is returned when adding a service under an id that
	// is already registered.
	ErrAlreadyExists = errors.New("service already exists")
)
