package hub

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Policy selects what happens when an observer's queue is full.
type Policy string

// Overflow policies.
const (
	PolicyDisconnect Policy = "disconnect"
	PolicyDropOldest Policy = "drop_oldest"
)

// minBuffer leaves room for a full hydration snapshot.
const minBuffer = 8

// ParsePolicy converts a configured policy name.
func ParsePolicy(name string) (Policy, error) {
	switch p := Policy(name); p {
	case PolicyDisconnect, PolicyDropOldest:
		return p, nil
	case "":
		return PolicyDisconnect, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, name)
	}
}

// Observer is one connected viewer.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Observer struct {
	id          string
	connectedAt time.Time
	policy      Policy

	mu     sync.Mutex
	send   chan []byte
	done   chan struct{}
	closed bool

	dropped atomic.Uint64
}

// NewObserver creates an observer with a fresh UUID and a queue of
// buffer messages.
func NewObserver(buffer int, policy Policy) *Observer {
	if buffer < minBuffer {
		buffer = minBuffer
	}
	if policy == "" {
		policy = PolicyDisconnect
	}
	return &Observer{
		id:          uuid.NewString(),
		connectedAt: time.Now(),
		policy:      policy,
		send:        make(chan []byte, buffer),
		done:        make(chan struct{}),
	}
}

// ID returns the observer's identifier.
func (o *Observer) ID() string { return o.id }

// ConnectedAt returns when the observer was created.
func (o *Observer) ConnectedAt() time.Time { return o.connectedAt }

// Outbound returns the queue the transport drains. It is closed when the
// observer closes.
func (o *Observer) Outbound() <-chan []byte { return o.send }

// Done is closed when the observer closes.
func (o *Observer) Done() <-chan struct{} { return o.done }

// Dropped returns how many messages the drop_oldest policy discarded.
func (o *Observer) Dropped() uint64 { return o.dropped.Load() }

// Closed reports whether the observer has been closed.
func (o *Observer) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Close closes the observer. Safe to call more than once.
func (o *Observer) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeLocked()
}

// enqueue adds msg to the queue without blocking, applying the overflow
// policy when full.
func (o *Observer) enqueue(msg []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrObserverClosed
	}

	select {
	case o.send <- msg:
		return nil
	default:
	}

	if o.policy == PolicyDropOldest {
		select {
		case <-o.send:
			o.dropped.Add(1)
		default:
		}
		// Only enqueue sends, and it holds mu, so the freed slot is ours.
		o.send <- msg
		return nil
	}

	o.closeLocked()
	return fmt.Errorf("%w: send buffer full", ErrObserverClosed)
}

func (o *Observer) closeLocked() {
	if o.closed {
		return
	}
	o.closed = true
	close(o.done)
	close(o.send)
}
