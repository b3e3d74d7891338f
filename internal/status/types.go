package status

import (
	"fmt"
	"time"
)

// Kind classifies a device by its state domain.
type Kind string

// Device kinds.
const (
	KindBinary Kind = "binary"
	KindMotion Kind = "motion"
)

// State is a device state.
type State string

// Binary states.
const (
	StateOff State = "off"
	StateOn  State = "on"
)

// Motion states.
const (
	StateOpen    State = "open"
	StateClosed  State = "closed"
	StateOpening State = "opening"
	StateClosing State = "closing"
)

// Source records where an accepted change came from.
type Source string

// Change sources.
const (
	SourceBus     Source = "bus"
	SourceCommand Source = "command"
	SourceSeed    Source = "seed"
)

// Kind returns the kind whose domain contains s.
func (s State) Kind() (Kind, bool) {
	switch s {
	case StateOff, StateOn:
		return KindBinary, true
	case StateOpen, StateClosed, StateOpening, StateClosing:
		return KindMotion, true
	default:
		return "", false
	}
}

// Terminal reports whether s is a resting motion state.
func (s State) Terminal() bool {
	return s == StateOpen || s == StateClosed
}

// Valid reports whether s belongs to any kind's domain.
func (s State) Valid() bool {
	_, ok := s.Kind()
	return ok
}

// ParseState converts text to a State.
func ParseState(text string) (State, error) {
	s := State(text)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, text)
	}
	return s, nil
}

// Contains reports whether s is in k's domain.
func (k Kind) Contains(s State) bool {
	kind, ok := s.Kind()
	return ok && kind == k
}

// Status is the current state of one device.
type Status struct {
	Key       string    `json:"key"`
	Kind      Kind      `json:"kind"`
	State     State     `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Change describes one accepted mutation of the table.
type Change struct {
	Status   Status `json:"status"`
	Previous State  `json:"previous,omitempty"`
	Source   Source `json:"source"`

	// Created is set when the change inserted a new row.
	Created bool `json:"created"`
}
