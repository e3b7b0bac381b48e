package account

import "errors"

// Sentinel errors for the account package.
var (
	// ErrNotFound is returned when no account matches.
	ErrNotFound = errors.New("account not found")

	// ErrUsernameTaken is returned when registering a username that
	// already exists.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidCredentials is returned for unusable or non-matching
	// credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTokenInvalid is returned for session tokens that fail
	// validation.
	ErrTokenInvalid = errors.New("invalid session token")
)
