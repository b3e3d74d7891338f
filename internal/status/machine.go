package status

import "fmt"

// Machine decides which transitions are legal.
//
// Thread Safety:
//   - A Machine is immutable after construction and safe for concurrent use.
type Machine struct {
	triggers map[State]State
}

// DefaultTriggers maps each terminal motion state to its optimistic successor.
func DefaultTriggers() map[State]State {
	return map[State]State{
		StateOpen:   StateOpening,
		StateClosed: StateClosing,
	}
}

// NewMachine builds a Machine from a terminal-state to optimistic-state map.
// A nil or empty map selects DefaultTriggers.
//
// Returns:
//   - error: ErrInvalidTransition if a key is not a terminal motion state
//     or a value is not a motion state
func NewMachine(triggers map[State]State) (*Machine, error) {
	if len(triggers) == 0 {
		triggers = DefaultTriggers()
	}

	m := &Machine{triggers: make(map[State]State, len(triggers))}
	for from, to := range triggers {
		if !from.Terminal() {
			return nil, fmt.Errorf("%w: trigger source %q is not a terminal motion state", ErrInvalidTransition, from)
		}
		if !KindMotion.Contains(to) {
			return nil, fmt.Errorf("%w: trigger target %q is not a motion state", ErrInvalidTransition, to)
		}
		m.triggers[from] = to
	}
	return m, nil
}

// Apply evaluates one requested or observed state against the current one.
//
// Authoritative updates are accepted whenever next is in kind's domain.
// Optimistic updates are accepted only for motion devices when next is the
// configured successor of a terminal current state.
//
// Returns the resulting state and whether the change was accepted. A
// rejected change returns current unchanged.
func (m *Machine) Apply(kind Kind, current, next State, authoritative bool) (State, bool) {
	if !kind.Contains(next) {
		return current, false
	}
	if authoritative {
		return next, true
	}
	if kind != KindMotion {
		return current, false
	}
	want, ok := m.triggers[current]
	if !ok || want != next {
		return current, false
	}
	return next, true
}

// Trigger computes the optimistic successor for a device of kind in state
// current and applies it.
func (m *Machine) Trigger(kind Kind, current State) (State, bool) {
	if kind != KindMotion {
		return current, false
	}
	next, ok := m.triggers[current]
	if !ok {
		return current, false
	}
	return m.Apply(kind, current, next, false)
}
