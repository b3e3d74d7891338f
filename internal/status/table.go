package status

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Committer runs fn inside whatever critical section must cover both the
// table mutation and its fan-out. The bridge uses it to hold its hydration
// gate shared; the default just calls fn.
type Committer func(fn func())

// entry is one device row. mu serializes read-modify-write on the key;
// cur is read lock-free by snapshots.
type entry struct {
	mu  sync.Mutex
	cur atomic.Pointer[Status]
}

// Table is the in-memory canonical status map.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Mutations on one key are serialized; different keys proceed in parallel.
type Table struct {
	machine *Machine

	mapMu   sync.RWMutex
	entries map[string]*entry

	commit Committer
	now    func() time.Time
}

// NewTable creates an empty Table governed by m.
func NewTable(m *Machine) *Table {
	return &Table{
		machine: m,
		entries: make(map[string]*entry),
		commit:  func(fn func()) { fn() },
		now:     time.Now,
	}
}

// SetCommitter replaces the commit wrapper. Call before first use.
func (t *Table) SetCommitter(c Committer) {
	t.commit = c
}

// SetClock replaces the time source. Call before first use.
func (t *Table) SetClock(now func() time.Time) {
	t.now = now
}

// Load replaces the table's contents with rows read from the store.
// Rows with an invalid state or empty key are returned as errors and skipped.
func (t *Table) Load(rows []Status) []error {
	var errs []error
	entries := make(map[string]*entry, len(rows))
	for _, row := range rows {
		if row.Key == "" {
			errs = append(errs, ErrInvalidKey)
			continue
		}
		kind, ok := row.State.Kind()
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s has state %q", ErrInvalidState, row.Key, row.State))
			continue
		}
		row.Kind = kind
		e := &entry{}
		e.cur.Store(&row)
		entries[row.Key] = e
	}

	t.mapMu.Lock()
	t.entries = entries
	t.mapMu.Unlock()
	return errs
}

// Get returns the current status for key.
func (t *Table) Get(key string) (Status, bool) {
	t.mapMu.RLock()
	e, ok := t.entries[key]
	t.mapMu.RUnlock()
	if !ok {
		return Status{}, false
	}
	cur := e.cur.Load()
	if cur == nil {
		return Status{}, false
	}
	return *cur, true
}

// Snapshot returns every committed row ordered by key.
func (t *Table) Snapshot() []Status {
	t.mapMu.RLock()
	out := make([]Status, 0, len(t.entries))
	for _, e := range t.entries {
		if cur := e.cur.Load(); cur != nil {
			out = append(out, *cur)
		}
	}
	t.mapMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of committed rows.
func (t *Table) Len() int {
	return len(t.Snapshot())
}

// Observe applies an authoritative state for key, creating the row if
// needed. onCommit runs inside the committer while key is locked.
//
// Returns:
//   - Change: The accepted change
//   - error: ErrInvalidKey, or ErrInvalidState when state is outside the
//     existing row's kind
func (t *Table) Observe(key string, state State, onCommit func(Change)) (Change, error) {
	if key == "" {
		return Change{}, ErrInvalidKey
	}
	kind, ok := state.Kind()
	if !ok {
		return Change{}, fmt.Errorf("%w: %q", ErrInvalidState, state)
	}

	e := t.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.cur.Load()
	change := Change{Source: SourceBus}
	if prev == nil {
		change.Created = true
		change.Status = Status{Key: key, Kind: kind, State: state}
	} else {
		next, accepted := t.machine.Apply(prev.Kind, prev.State, state, true)
		if !accepted {
			return Change{}, fmt.Errorf("%w: %q is not a %s state (device %s)", ErrInvalidState, state, prev.Kind, key)
		}
		change.Previous = prev.State
		change.Status = Status{Key: key, Kind: prev.Kind, State: next}
	}
	change.Status.UpdatedAt = t.nextTimestamp(prev)

	t.store(e, change, onCommit)
	return change, nil
}

// Trigger applies the optimistic transition for key.
//
// Returns:
//   - Change: The accepted change
//   - error: ErrUnknownDevice when key has no row, ErrInvalidTransition
//     when the state machine rejects the trigger (binary devices always,
//     motion devices already in motion)
func (t *Table) Trigger(key string, onCommit func(Change)) (Change, error) {
	t.mapMu.RLock()
	e, ok := t.entries[key]
	t.mapMu.RUnlock()
	if !ok {
		return Change{}, fmt.Errorf("%w: %q", ErrUnknownDevice, key)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.cur.Load()
	if prev == nil {
		return Change{}, fmt.Errorf("%w: %q", ErrUnknownDevice, key)
	}

	next, accepted := t.machine.Trigger(prev.Kind, prev.State)
	if !accepted {
		return Change{}, fmt.Errorf("%w: %s device %s is %s", ErrInvalidTransition, prev.Kind, key, prev.State)
	}

	change := Change{
		Source:   SourceCommand,
		Previous: prev.State,
		Status: Status{
			Key:       key,
			Kind:      prev.Kind,
			State:     next,
			UpdatedAt: t.nextTimestamp(prev),
		},
	}
	t.store(e, change, onCommit)
	return change, nil
}

// Seed inserts key with state if it has no row yet.
//
// Returns:
//   - Change: The inserted row, when created is true
//   - bool: Whether a row was created
//   - error: ErrInvalidKey or ErrInvalidState
func (t *Table) Seed(key string, state State, onCommit func(Change)) (Change, bool, error) {
	if key == "" {
		return Change{}, false, ErrInvalidKey
	}
	kind, ok := state.Kind()
	if !ok {
		return Change{}, false, fmt.Errorf("%w: %q", ErrInvalidState, state)
	}

	e := t.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur.Load() != nil {
		return Change{}, false, nil
	}

	change := Change{
		Source:  SourceSeed,
		Created: true,
		Status:  Status{Key: key, Kind: kind, State: state, UpdatedAt: t.now()},
	}
	t.store(e, change, onCommit)
	return change, true, nil
}

// entryFor returns the entry for key, inserting an empty one if absent.
func (t *Table) entryFor(key string) *entry {
	t.mapMu.RLock()
	e, ok := t.entries[key]
	t.mapMu.RUnlock()
	if ok {
		return e
	}

	t.mapMu.Lock()
	defer t.mapMu.Unlock()
	if e, ok = t.entries[key]; ok {
		return e
	}
	e = &entry{}
	t.entries[key] = e
	return e
}

// store publishes the new row and runs onCommit inside the committer.
// Caller holds e.mu.
func (t *Table) store(e *entry, change Change, onCommit func(Change)) {
	st := change.Status
	t.commit(func() {
		e.cur.Store(&st)
		if onCommit != nil {
			onCommit(change)
		}
	})
}

// nextTimestamp returns now, nudged forward so updatedAt strictly
// increases per key even if the clock stalls or steps back.
func (t *Table) nextTimestamp(prev *Status) time.Time {
	now := t.now()
	if prev != nil && !now.After(prev.UpdatedAt) {
		return prev.UpdatedAt.Add(time.Nanosecond)
	}
	return now
}
