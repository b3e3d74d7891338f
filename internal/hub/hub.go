package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Logger is the logging interface used by the hub.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Hub tracks connected observers and fans messages out to them.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Hub struct {
	mu        sync.RWMutex
	observers map[string]*Observer
	logger    Logger
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{
		observers: make(map[string]*Observer),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger. Call before first use.
func (h *Hub) SetLogger(logger Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// Register queues snapshot for obs and then adds it to the broadcast set.
//
// Parameters:
//   - obs: The new observer
//   - snapshot: Encoded hydration messages, delivered in order before any broadcast
//
// Returns:
//   - error: ErrObserverClosed if obs is closed or the snapshot overflowed its queue
func (h *Hub) Register(obs *Observer, snapshot [][]byte) error {
	for _, msg := range snapshot {
		if err := obs.enqueue(msg); err != nil {
			return fmt.Errorf("hydrating observer %s: %w", obs.ID(), err)
		}
	}

	h.mu.Lock()
	h.observers[obs.ID()] = obs
	count := len(h.observers)
	h.mu.Unlock()

	h.logger.Debug("observer connected", "observer_id", obs.ID(), "observers", count)
	return nil
}

// Unregister removes and closes the observer with id. It reports whether
// the observer was registered; calling it again is a no-op.
func (h *Hub) Unregister(id string) bool {
	h.mu.Lock()
	obs, ok := h.observers[id]
	delete(h.observers, id)
	count := len(h.observers)
	h.mu.Unlock()

	if !ok {
		return false
	}
	obs.Close()
	h.logger.Debug("observer disconnected", "observer_id", id, "observers", count)
	return true
}

// Broadcast queues msg on every registered observer and returns how many
// accepted it. Observers that fail are evicted.
func (h *Hub) Broadcast(msg []byte) int {
	h.mu.RLock()
	observers := make([]*Observer, 0, len(h.observers))
	for _, obs := range h.observers {
		observers = append(observers, obs)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, obs := range observers {
		if err := obs.enqueue(msg); err != nil {
			h.evict(obs, err)
			continue
		}
		delivered++
	}
	return delivered
}

// BroadcastJSON encodes v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encoding broadcast: %w", err)
	}
	return h.Broadcast(data), nil
}

// SendTo queues msg for one observer.
//
// Returns:
//   - error: ErrUnknownObserver, or ErrObserverClosed if the send failed
//     (the observer is then evicted)
func (h *Hub) SendTo(id string, msg []byte) error {
	h.mu.RLock()
	obs, ok := h.observers[id]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownObserver, id)
	}
	if err := obs.enqueue(msg); err != nil {
		h.evict(obs, err)
		return err
	}
	return nil
}

// SendJSON encodes v and sends it to one observer.
func (h *Hub) SendJSON(id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return h.SendTo(id, data)
}

// Count returns the number of registered observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// CloseAll closes and removes every observer.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	observers := h.observers
	h.observers = make(map[string]*Observer)
	h.mu.Unlock()

	for _, obs := range observers {
		obs.Close()
	}
}

func (h *Hub) evict(obs *Observer, err error) {
	if errors.Is(err, ErrObserverClosed) && h.Unregister(obs.ID()) {
		h.logger.Warn("observer evicted", "observer_id", obs.ID(), "error", err)
	}
}
