package automation

import "errors"

// Sentinel errors for the automation package.
var (
	// ErrNotFound is returned when no account-owned automation matches.
	ErrNotFound = errors.New("automation not found")

	// ErrUnauthorized is returned when an account targets an automation it
	// does not own.
	ErrUnauthorized = errors.New("account does not own automation")

	// ErrSecurityProtected is returned for any attempt to delete a
	// security automation.
	ErrSecurityProtected = errors.New("security automations cannot be deleted")

	// ErrNotEditable is returned when a save tries to change a field the
	// stored automation has locked, such as a security automation's type.
	ErrNotEditable = errors.New("automation field is not user-editable")
)
