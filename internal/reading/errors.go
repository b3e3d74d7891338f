package reading

import "errors"

// Domain errors for the reading package.
var (
	// ErrUnknownChannel is returned for a channel other than temperature or brightness.
	ErrUnknownChannel = errors.New("reading: unknown channel")

	// ErrInvalidValue is returned for NaN or infinite values.
	ErrInvalidValue = errors.New("reading: invalid value")
)
