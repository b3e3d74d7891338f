package hub

import "errors"

// Domain errors for the hub package.
var (
	// ErrObserverClosed is returned when sending to a closed observer,
	// including one just closed by the disconnect overflow policy.
	ErrObserverClosed = errors.New("hub: observer closed")

	// ErrUnknownObserver is returned when an id is not registered.
	ErrUnknownObserver = errors.New("hub: unknown observer")

	// ErrInvalidMessage is returned for an observer message that cannot be decoded.
	ErrInvalidMessage = errors.New("hub: invalid message")

	// ErrInvalidPolicy is returned for an unknown overflow policy name.
	ErrInvalidPolicy = errors.New("hub: invalid overflow policy")
)
