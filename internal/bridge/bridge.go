package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/coop-bridge/internal/hub"
	"github.com/nerrad567/coop-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/coop-bridge/internal/infrastructure/writebehind"
	"github.com/nerrad567/coop-bridge/internal/reading"
	"github.com/nerrad567/coop-bridge/internal/status"
)

// Bus is the message bus the bridge subscribes and publishes on.
// *mqtt.Client satisfies it.
type Bus interface {
	// Publish sends payload to topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers handler for topic.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// Unsubscribe drops the subscription on topic.
	Unsubscribe(topic string) error

	// IsConnected reports whether the bus connection is up.
	IsConnected() bool
}

// Submitter queues durable writes without blocking.
// *writebehind.Queue satisfies it.
type Submitter interface {
	Submit(op string, fn writebehind.Func) error
	Degraded() bool
}

// Mirror receives a copy of every reading and status change for a
// time-series store. *influxdb.Client satisfies it.
type Mirror interface {
	WriteReading(channel string, value float64, observedAt time.Time)
	WriteStatus(key, state, source string, at time.Time)
}

// Logger is the logging interface used by the bridge.
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

// Options holds the collaborators for a Bridge.
type Options struct {
	// Config is the bridge configuration.
	Config Config

	// Bus is required.
	Bus Bus

	// Hub is the observer fanout. A new hub is created if nil.
	Hub *hub.Hub

	// Store queues durable writes. If nil, nothing is persisted.
	Store Submitter

	// Statuses, History and Readings are the durable repositories. Each
	// is optional; a nil repository is skipped on both load and write.
	Statuses status.Repository
	History  status.HistoryRepository
	Readings reading.Repository

	// Mirror is an optional time-series copy.
	Mirror Mirror

	// Sun supplies sunrise and sunset values. If nil, sun topics are not published.
	Sun SunSource

	// Logger is an optional structured logger.
	Logger Logger

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Bridge is the coop bridge context object.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg Config

	bus      Bus
	hub      *hub.Hub
	table    *status.Table
	readings *reading.Log

	store       Submitter
	statusRepo  status.Repository
	historyRepo status.HistoryRepository
	readingRepo reading.Repository
	mirror      Mirror
	sun         SunSource

	// gate is held shared by mutators and exclusively by Connect.
	gate sync.RWMutex

	// clientStatus is "" until the monitored client is first seen.
	clientMu     sync.RWMutex
	clientStatus string

	logger Logger
	now    func() time.Time

	startMu sync.Mutex
	started bool

	// loopMu orders wg.Add against Stop's wg.Wait.
	loopMu  sync.Mutex
	stopped bool

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a Bridge. Call Start to load state and subscribe.
//
// Returns:
//   - *Bridge: The bridge
//   - error: ErrMissingDependency without a bus, or an invalid trigger map
func New(opts Options) (*Bridge, error) {
	if opts.Bus == nil {
		return nil, fmt.Errorf("%w: bus", ErrMissingDependency)
	}

	machine, err := status.NewMachine(opts.Config.Triggers)
	if err != nil {
		return nil, fmt.Errorf("building state machine: %w", err)
	}

	cfg := opts.Config
	cfg.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		cfg:         cfg,
		bus:         opts.Bus,
		hub:         opts.Hub,
		table:       status.NewTable(machine),
		readings:    reading.NewLog(cfg.Hydration),
		store:       opts.Store,
		statusRepo:  opts.Statuses,
		historyRepo: opts.History,
		readingRepo: opts.Readings,
		mirror:      opts.Mirror,
		sun:         opts.Sun,
		logger:      opts.Logger,
		now:         opts.Clock,
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	if b.hub == nil {
		b.hub = hub.New()
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	if b.now == nil {
		b.now = time.Now
	}

	b.table.SetCommitter(b.commit)
	b.table.SetClock(b.now)
	b.readings.SetCommitter(b.commit)
	b.readings.SetClock(b.now)
	return b, nil
}

// Start restores state from the store, subscribes to the ingest topics
// and starts the periodic loops. Loops stop when Stop is called.
func (b *Bridge) Start(ctx context.Context) error {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	if b.started {
		return ErrAlreadyStarted
	}

	b.coldStart(ctx)

	for _, sub := range (mqtt.Topics{}).Ingest() {
		if err := b.bus.Subscribe(sub.Topic, sub.QoS, b.HandleBusMessage); err != nil {
			return fmt.Errorf("subscribe to %s: %w", sub.Topic, err)
		}
	}

	b.started = true
	b.startLoops()

	b.logger.Info("bridge started",
		"devices", b.table.Len(),
		"beacon_interval", b.cfg.BeaconInterval,
		"sun_interval", b.cfg.SunInterval,
	)
	return nil
}

// Stop ends the periodic loops and closes every observer. Safe to call
// more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.loopMu.Lock()
		b.stopped = true
		b.loopMu.Unlock()

		close(b.done)
		b.cancel()
		b.wg.Wait()
		b.unsubscribe()
		b.hub.CloseAll()
		b.logger.Info("bridge stopped")
	})
}

// unsubscribe drops the ingest subscriptions taken by Start. A bus that is
// already down has nothing to drop.
func (b *Bridge) unsubscribe() {
	b.startMu.Lock()
	started := b.started
	b.startMu.Unlock()
	if !started {
		return
	}
	for _, sub := range (mqtt.Topics{}).Ingest() {
		err := b.bus.Unsubscribe(sub.Topic)
		switch {
		case err == nil:
		case errors.Is(err, mqtt.ErrNotConnected):
			b.logger.Debug("bus down, skipping unsubscribe", "topic", sub.Topic)
		default:
			b.logger.Warn("unsubscribe failed", "topic", sub.Topic, "error", err)
		}
	}
}

// Hub returns the observer hub.
func (b *Bridge) Hub() *hub.Hub {
	return b.hub
}

// Statuses returns the current status table ordered by key.
func (b *Bridge) Statuses() []status.Status {
	return b.table.Snapshot()
}

// Status returns the current status for key.
func (b *Bridge) Status(key string) (status.Status, bool) {
	return b.table.Get(key)
}

// Recent returns the cached recent readings for channel, oldest first.
func (b *Bridge) Recent(channel reading.Channel) []reading.Reading {
	return b.readings.Recent(channel)
}

// History returns recorded changes for key, newest first.
func (b *Bridge) History(ctx context.Context, key string, limit int) ([]status.HistoryEntry, error) {
	if b.historyRepo == nil {
		return []status.HistoryEntry{}, nil
	}
	return b.historyRepo.History(ctx, key, limit)
}

// ClientStatus returns the monitored client's liveness, or "" if unknown.
func (b *Bridge) ClientStatus() string {
	b.clientMu.RLock()
	defer b.clientMu.RUnlock()
	return b.clientStatus
}

// Health is a point-in-time view of the bridge.
type Health struct {
	BusConnected  bool   `json:"bus_connected"`
	StoreDegraded bool   `json:"store_degraded"`
	Observers     int    `json:"observers"`
	Devices       int    `json:"devices"`
	ClientStatus  string `json:"client_status,omitempty"`
}

// Health reports bus connectivity, store state and fanout size.
func (b *Bridge) Health() Health {
	h := Health{
		BusConnected: b.bus.IsConnected(),
		Observers:    b.hub.Count(),
		Devices:      b.table.Len(),
		ClientStatus: b.ClientStatus(),
	}
	if b.store != nil {
		h.StoreDegraded = b.store.Degraded()
	}
	return h
}

// SetLogger sets the logger. Call before Start.
func (b *Bridge) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// commit runs fn holding the hydration gate shared.
func (b *Bridge) commit(fn func()) {
	b.gate.RLock()
	defer b.gate.RUnlock()
	fn()
}
