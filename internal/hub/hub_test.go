package hub

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

// drain reads every queued message without blocking.
func drain(obs *Observer) []string {
	var out []string
	for {
		select {
		case msg, ok := <-obs.Outbound():
			if !ok {
				return out
			}
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestHub_RegisterDeliversSnapshotFirst(t *testing.T) {
	h := New()
	obs := NewObserver(16, PolicyDisconnect)

	if err := h.Register(obs, [][]byte{[]byte("s1"), []byte("s2")}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	h.Broadcast([]byte("e1"))

	got := drain(obs)
	want := []string{"s1", "s2", "e1"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("messages = %v, want %v", got, want)
	}
	if h.Count() != 1 {
		t.Errorf("Count() = %d, want 1", h.Count())
	}
}

func TestHub_BroadcastOrderPerObserver(t *testing.T) {
	h := New()
	a := NewObserver(16, PolicyDisconnect)
	b := NewObserver(16, PolicyDisconnect)
	for _, obs := range []*Observer{a, b} {
		if err := h.Register(obs, nil); err != nil {
			t.Fatal(err)
		}
	}

	for _, msg := range []string{"70", "71"} {
		if n := h.Broadcast([]byte(msg)); n != 2 {
			t.Errorf("Broadcast(%s) delivered to %d, want 2", msg, n)
		}
	}

	for _, obs := range []*Observer{a, b} {
		if got := drain(obs); fmt.Sprint(got) != "[70 71]" {
			t.Errorf("observer %s got %v", obs.ID(), got)
		}
	}
}

func TestHub_UnregisterIdempotent(t *testing.T) {
	h := New()
	obs := NewObserver(8, PolicyDisconnect)
	if err := h.Register(obs, nil); err != nil {
		t.Fatal(err)
	}

	if !h.Unregister(obs.ID()) {
		t.Error("first Unregister() = false")
	}
	if h.Unregister(obs.ID()) {
		t.Error("second Unregister() = true")
	}
	if !obs.Closed() {
		t.Error("observer not closed")
	}
	select {
	case <-obs.Done():
	default:
		t.Error("Done() not closed")
	}
	if h.Broadcast([]byte("x")) != 0 {
		t.Error("broadcast reached unregistered observer")
	}
}

func TestHub_SlowObserverDisconnected(t *testing.T) {
	h := New()
	slow := NewObserver(minBuffer, PolicyDisconnect)
	fast := NewObserver(64, PolicyDisconnect)
	for _, obs := range []*Observer{slow, fast} {
		if err := h.Register(obs, nil); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < minBuffer+1; i++ {
		h.Broadcast([]byte(fmt.Sprint(i)))
	}

	if !slow.Closed() {
		t.Error("slow observer not closed on overflow")
	}
	if h.Count() != 1 {
		t.Errorf("Count() = %d, want 1", h.Count())
	}
	if got := len(drain(fast)); got != minBuffer+1 {
		t.Errorf("fast observer got %d messages, want %d", got, minBuffer+1)
	}
}

func TestHub_DropOldest(t *testing.T) {
	h := New()
	obs := NewObserver(minBuffer, PolicyDropOldest)
	if err := h.Register(obs, nil); err != nil {
		t.Fatal(err)
	}

	total := minBuffer + 3
	for i := 0; i < total; i++ {
		h.Broadcast([]byte(fmt.Sprint(i)))
	}

	if obs.Closed() {
		t.Fatal("drop_oldest observer closed")
	}
	got := drain(obs)
	if len(got) != minBuffer {
		t.Fatalf("queued = %d, want %d", len(got), minBuffer)
	}
	if got[0] != "3" || got[len(got)-1] != fmt.Sprint(total-1) {
		t.Errorf("queue = %v, want oldest dropped", got)
	}
	if obs.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", obs.Dropped())
	}
}

func TestHub_SendTo(t *testing.T) {
	h := New()
	a := NewObserver(8, PolicyDisconnect)
	b := NewObserver(8, PolicyDisconnect)
	for _, obs := range []*Observer{a, b} {
		if err := h.Register(obs, nil); err != nil {
			t.Fatal(err)
		}
	}

	if err := h.SendJSON(a.ID(), NewError(CodeUnknownDevice, "no such device", "shed")); err != nil {
		t.Fatalf("SendJSON() error = %v", err)
	}
	got := drain(a)
	want := `{"error":{"code":"unknown_device","message":"no such device","target":"shed"}}`
	if len(got) != 1 || got[0] != want {
		t.Errorf("a got %v, want %s", got, want)
	}
	if len(drain(b)) != 0 {
		t.Error("SendTo leaked to another observer")
	}

	if err := h.SendTo("missing", []byte("x")); !errors.Is(err, ErrUnknownObserver) {
		t.Errorf("SendTo(missing) error = %v", err)
	}
}

func TestHub_RegisterClosedObserver(t *testing.T) {
	h := New()
	obs := NewObserver(8, PolicyDisconnect)
	obs.Close()

	if err := h.Register(obs, [][]byte{[]byte("s")}); !errors.Is(err, ErrObserverClosed) {
		t.Errorf("Register(closed) error = %v", err)
	}
	if h.Count() != 0 {
		t.Error("closed observer registered")
	}
}

func TestHub_CloseAll(t *testing.T) {
	h := New()
	observers := []*Observer{NewObserver(8, ""), NewObserver(8, "")}
	for _, obs := range observers {
		if err := h.Register(obs, nil); err != nil {
			t.Fatal(err)
		}
	}

	h.CloseAll()
	if h.Count() != 0 {
		t.Errorf("Count() = %d after CloseAll", h.Count())
	}
	for _, obs := range observers {
		if !obs.Closed() {
			t.Error("observer left open")
		}
	}
}

func TestHub_ConcurrentRegisterBroadcast(t *testing.T) {
	h := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			obs := NewObserver(256, PolicyDropOldest)
			if err := h.Register(obs, nil); err != nil {
				t.Error(err)
			}
			h.Unregister(obs.ID())
		}()
		go func() {
			defer wg.Done()
			h.Broadcast([]byte("tick"))
		}()
	}
	wg.Wait()
	if h.Count() != 0 {
		t.Errorf("Count() = %d, want 0", h.Count())
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"disconnect", PolicyDisconnect, false},
		{"drop_oldest", PolicyDropOldest, false},
		{"", PolicyDisconnect, false},
		{"block", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePolicy(%q) = (%q, %v)", tt.in, got, err)
		}
	}
}
