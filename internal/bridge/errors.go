package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrDecode is returned for a bus payload that cannot be decoded for
	// its topic. The message is dropped.
	ErrDecode = errors.New("bridge: decode failed")

	// ErrMissingDependency is returned by New when a required collaborator is nil.
	ErrMissingDependency = errors.New("bridge: missing dependency")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("bridge: already started")
)
