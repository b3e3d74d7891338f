package status

import "errors"

// Domain errors for the status package.
var (
	// ErrInvalidTransition is returned when the state machine rejects a change.
	ErrInvalidTransition = errors.New("status: invalid transition")

	// ErrUnknownDevice is returned when a trigger names a key with no row.
	ErrUnknownDevice = errors.New("status: unknown device")

	// ErrInvalidState is returned for a state outside every kind's domain,
	// or outside the domain of the device it targets.
	ErrInvalidState = errors.New("status: invalid state")

	// ErrInvalidKey is returned for an empty device key.
	ErrInvalidKey = errors.New("status: invalid key")
)
