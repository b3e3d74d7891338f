package status

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()
	m, err := NewMachine(nil)
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}
	return NewTable(m)
}

// frozenClock returns a clock that never advances.
func frozenClock() func() time.Time {
	at := time.Unix(1700000000, 0)
	return func() time.Time { return at }
}

func TestTable_ObserveCreatesAndUpdates(t *testing.T) {
	tbl := newTestTable(t)

	ch, err := tbl.Observe("light", StateOn, nil)
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if !ch.Created || ch.Status.Kind != KindBinary || ch.Source != SourceBus {
		t.Errorf("first Observe() change = %+v", ch)
	}

	ch, err = tbl.Observe("light", StateOff, nil)
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if ch.Created || ch.Previous != StateOn || ch.Status.State != StateOff {
		t.Errorf("second Observe() change = %+v", ch)
	}

	st, ok := tbl.Get("light")
	if !ok || st.State != StateOff {
		t.Errorf("Get() = %+v, %v", st, ok)
	}
}

func TestTable_ObserveRejectsOtherKind(t *testing.T) {
	tbl := newTestTable(t)
	if _, err := tbl.Observe("coop-door", StateClosed, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := tbl.Observe("coop-door", StateOn, nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Observe(on) on motion device error = %v, want ErrInvalidState", err)
	}
	if st, _ := tbl.Get("coop-door"); st.State != StateClosed {
		t.Errorf("state = %s, want closed", st.State)
	}

	if _, err := tbl.Observe("", StateOn, nil); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Observe(empty key) error = %v", err)
	}
	if _, err := tbl.Observe("x", State("ajar"), nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Observe(ajar) error = %v", err)
	}
}

// A closed motion device triggers to closing; a second trigger before
// confirmation is rejected; the bus then overrides unconditionally.
func TestTable_TriggerLifecycle(t *testing.T) {
	tbl := newTestTable(t)
	if _, _, err := tbl.Seed("coop-door", StateClosed, nil); err != nil {
		t.Fatal(err)
	}

	ch, err := tbl.Trigger("coop-door", nil)
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if ch.Status.State != StateClosing || ch.Source != SourceCommand {
		t.Errorf("Trigger() change = %+v", ch)
	}
	t1 := ch.Status.UpdatedAt

	if _, err := tbl.Trigger("coop-door", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Trigger() error = %v, want ErrInvalidTransition", err)
	}
	if st, _ := tbl.Get("coop-door"); st.State != StateClosing {
		t.Errorf("state after rejected trigger = %s, want closing", st.State)
	}

	ch, err = tbl.Observe("coop-door", StateOpen, nil)
	if err != nil {
		t.Fatalf("Observe(open) error = %v", err)
	}
	if ch.Status.State != StateOpen {
		t.Errorf("state = %s, want open", ch.Status.State)
	}
	if !ch.Status.UpdatedAt.After(t1) {
		t.Errorf("UpdatedAt %v not after %v", ch.Status.UpdatedAt, t1)
	}
}

func TestTable_TriggerUnknownAndBinary(t *testing.T) {
	tbl := newTestTable(t)

	if _, err := tbl.Trigger("nope", nil); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("Trigger(unknown) error = %v, want ErrUnknownDevice", err)
	}

	if _, err := tbl.Observe("light", StateOff, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Trigger("light", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Trigger(binary) error = %v, want ErrInvalidTransition", err)
	}
}

func TestTable_UpdatedAtStrictlyIncreases(t *testing.T) {
	tbl := newTestTable(t)
	tbl.SetClock(frozenClock())

	var last time.Time
	for i := 0; i < 10; i++ {
		state := StateOn
		if i%2 == 1 {
			state = StateOff
		}
		ch, err := tbl.Observe("light", state, nil)
		if err != nil {
			t.Fatal(err)
		}
		if i > 0 && !ch.Status.UpdatedAt.After(last) {
			t.Fatalf("update %d: UpdatedAt %v not after %v", i, ch.Status.UpdatedAt, last)
		}
		last = ch.Status.UpdatedAt
	}
}

func TestTable_SeedKeepsExisting(t *testing.T) {
	tbl := newTestTable(t)
	if _, err := tbl.Observe("coop-door", StateOpen, nil); err != nil {
		t.Fatal(err)
	}

	_, created, err := tbl.Seed("coop-door", StateClosed, nil)
	if err != nil || created {
		t.Errorf("Seed() on existing key = (%v, %v)", created, err)
	}
	if st, _ := tbl.Get("coop-door"); st.State != StateOpen {
		t.Errorf("state = %s, want open", st.State)
	}

	ch, created, err := tbl.Seed("light", StateOff, nil)
	if err != nil || !created || ch.Source != SourceSeed {
		t.Errorf("Seed() on new key = (%+v, %v, %v)", ch, created, err)
	}
}

func TestTable_SnapshotOrderedByKey(t *testing.T) {
	tbl := newTestTable(t)
	rows := map[string]State{"light": StateOff, "coop-door": StateClosed, "heater": StateOn}
	for key, state := range rows {
		if _, err := tbl.Observe(key, state, nil); err != nil {
			t.Fatal(err)
		}
	}

	snap := tbl.Snapshot()
	want := []string{"coop-door", "heater", "light"}
	if len(snap) != len(want) {
		t.Fatalf("Snapshot() len = %d, want %d", len(snap), len(want))
	}
	for i, key := range want {
		if snap[i].Key != key {
			t.Errorf("Snapshot()[%d] = %s, want %s", i, snap[i].Key, key)
		}
	}
}

func TestTable_Load(t *testing.T) {
	tbl := newTestTable(t)
	errs := tbl.Load([]Status{
		{Key: "coop-door", State: StateOpen, UpdatedAt: time.Unix(10, 0)},
		{Key: "light", State: StateOn},
		{Key: "broken", State: State("ajar")},
		{Key: "", State: StateOn},
	})
	if len(errs) != 2 {
		t.Errorf("Load() errors = %v, want 2", errs)
	}
	if tbl.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tbl.Len())
	}
	if st, _ := tbl.Get("coop-door"); st.Kind != KindMotion {
		t.Errorf("loaded kind = %s, want motion", st.Kind)
	}
}

func TestTable_CommitterWrapsStoreAndCallback(t *testing.T) {
	tbl := newTestTable(t)

	var inside bool
	var calls int
	tbl.SetCommitter(func(fn func()) {
		inside = true
		fn()
		inside = false
	})

	_, err := tbl.Observe("light", StateOn, func(ch Change) {
		calls++
		if !inside {
			t.Error("onCommit ran outside the committer")
		}
		if st, _ := tbl.Get("light"); st.State != ch.Status.State {
			t.Error("row not stored before onCommit")
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("onCommit calls = %d, want 1", calls)
	}

	// Rejected changes never commit.
	if _, err := tbl.Trigger("light", func(Change) { calls++ }); err == nil {
		t.Fatal("Trigger(binary) should fail")
	}
	if calls != 1 {
		t.Errorf("onCommit calls = %d after rejection, want 1", calls)
	}
}

// Last write wins by arrival order: concurrent writers on one key produce
// commit callbacks in the same order the table applied them.
func TestTable_ConcurrentSameKeyOrdering(t *testing.T) {
	tbl := newTestTable(t)

	var mu sync.Mutex
	var committed []State

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		state := StateOn
		if i%2 == 1 {
			state = StateOff
		}
		wg.Add(1)
		go func(s State) {
			defer wg.Done()
			_, err := tbl.Observe("light", s, func(ch Change) {
				mu.Lock()
				committed = append(committed, ch.Status.State)
				mu.Unlock()
			})
			if err != nil {
				t.Error(err)
			}
		}(state)
	}
	wg.Wait()

	st, _ := tbl.Get("light")
	if last := committed[len(committed)-1]; st.State != last {
		t.Errorf("final state %s != last committed %s", st.State, last)
	}
}

func TestTable_ConcurrentDifferentKeys(t *testing.T) {
	tbl := newTestTable(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("light-%02d", i)
			for j := 0; j < 20; j++ {
				if _, err := tbl.Observe(key, StateOn, nil); err != nil {
					t.Error(err)
				}
			}
		}(i)
	}
	wg.Wait()

	if tbl.Len() != 50 {
		t.Errorf("Len() = %d, want 50", tbl.Len())
	}
}
