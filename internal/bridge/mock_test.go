package bridge

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/coop-bridge/internal/hub"
	"github.com/nerrad567/coop-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/coop-bridge/internal/status"
)

// mockBus implements Bus for testing.
type mockBus struct {
	mu         sync.Mutex
	published  []mockPublish
	handlers   map[string]mqtt.MessageHandler
	connected  bool
	publishErr error
}

type mockPublish struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

func newMockBus() *mockBus {
	return &mockBus{
		handlers:  make(map[string]mqtt.MessageHandler),
		connected: true,
	}
}

func (m *mockBus) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: string(payload), QoS: qos, Retained: retained})
	return nil
}

func (m *mockBus) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *mockBus) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	return nil
}

func (m *mockBus) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// deliver simulates the broker delivering a message.
func (m *mockBus) deliver(t *testing.T, topic, payload string) error {
	t.Helper()
	m.mu.Lock()
	h, ok := m.handlers[topic]
	m.mu.Unlock()
	if !ok {
		t.Fatalf("no handler subscribed for %s", topic)
	}
	return h(topic, []byte(payload))
}

func (m *mockBus) publishedOn(topic string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// testClock is a settable time source.
type testClock struct {
	mu sync.Mutex
	at time.Time
}

func newTestClock() *testClock {
	return &testClock{at: time.Date(2026, 10, 1, 6, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.at = c.at.Add(d)
	c.mu.Unlock()
}

// newTestBridge builds and starts a bridge over a mock bus with the coop
// door and a light seeded.
func newTestBridge(t *testing.T, mutate func(*Options)) (*Bridge, *mockBus, *testClock) {
	t.Helper()
	bus := newMockBus()
	clock := newTestClock()
	opts := Options{
		Config: Config{
			ClientID: "coop-controller",
			Defaults: map[string]status.State{
				"coop-door": status.StateClosed,
				"light":     status.StateOff,
			},
		},
		Bus:   bus,
		Clock: clock.Now,
	}
	if mutate != nil {
		mutate(&opts)
	}

	b, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return b, bus, clock
}

// connect registers a new observer and returns it with its hydration consumed.
func connect(t *testing.T, b *Bridge) (*hub.Observer, []string) {
	t.Helper()
	obs := hub.NewObserver(1024, hub.PolicyDisconnect)
	if err := b.Connect(obs); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return obs, drain(obs)
}

// drain reads every queued message without blocking.
func drain(obs *hub.Observer) []string {
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

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

var errBusDown = errors.New("bus down")
