package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/coop-bridge/internal/infrastructure/config"
)

// Client is the bridge's connection to the coop broker.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Ingest routes are replayed on every reconnect.
type Client struct {
	paho     pahomqtt.Client
	clientID string
	hooks    Hooks

	routes routeTable
	online atomic.Bool
}

// Hooks are optional callbacks fixed at Connect time.
type Hooks struct {
	// Logger receives handler errors, recovered panics and lost connections.
	Logger Logger

	// OnConnect runs after every successful session, including the first.
	OnConnect func()

	// OnConnectionLost runs when the broker connection drops.
	OnConnectionLost func(err error)
}

// Logger is the logging surface the client needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on paho's delivery goroutine one at a time, in arrival
// order. A returned error is logged and otherwise ignored; it never stops
// delivery of later messages.
type MessageHandler func(topic string, payload []byte) error

// route is one ingest subscription, kept for replay.
type route struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// routeTable tracks the subscriptions to replay after a reconnect. The
// zero value is ready to use.
type routeTable struct {
	mu     sync.Mutex
	byName map[string]route
}

func (t *routeTable) put(r route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.byName == nil {
		t.byName = make(map[string]route)
	}
	t.byName[r.topic] = r
}

func (t *routeTable) drop(topic string) {
	t.mu.Lock()
	delete(t.byName, topic)
	t.mu.Unlock()
}

func (t *routeTable) all() []route {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]route, 0, len(t.byName))
	for _, r := range t.byName {
		out = append(out, r)
	}
	return out
}

// Connect dials the broker and announces the bridge online.
//
// The session is clean, auto-reconnecting and delivers in order. The
// broker holds a retained Last Will on bridge/status that marks the
// bridge offline if it vanishes.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - hooks: Optional logger and connection callbacks
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrConnectionFailed if the broker is not reachable in time
func Connect(cfg config.MQTTConfig, hooks Hooks) (*Client, error) {
	if hooks.Logger == nil {
		hooks.Logger = noopLogger{}
	}
	c := &Client{clientID: cfg.Broker.ClientID, hooks: hooks}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.clientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.sessionUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.sessionLost(err) })

	c.paho = pahomqtt.NewClient(opts)
	token := c.paho.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		c.paho.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// sessionUp runs on paho's goroutine and may not have fired yet.
	c.online.Store(true)
	return c, nil
}

// sessionUp replays routes, re-announces the bridge and runs OnConnect.
func (c *Client) sessionUp() {
	c.online.Store(true)

	for _, r := range c.routes.all() {
		c.paho.Subscribe(r.topic, r.qos, c.wrapHandler(r.handler))
	}
	c.announce("online", "")

	if c.hooks.OnConnect != nil {
		c.hooks.OnConnect()
	}
}

func (c *Client) sessionLost(err error) {
	c.online.Store(false)
	c.logger().Warn("MQTT connection lost", "error", err)
	if c.hooks.OnConnectionLost != nil {
		c.hooks.OnConnectionLost(err)
	}
}

// announce publishes the bridge's retained presence on bridge/status.
func (c *Client) announce(state, reason string) pahomqtt.Token {
	return c.paho.Publish(TopicBridgeStatus, QoSAtLeastOnce, true, statusPayload(state, c.clientID, reason))
}

// Close announces a graceful shutdown and disconnects. Safe on a nil or
// never-connected client.
func (c *Client) Close() error {
	if c == nil || c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.announce("offline", "graceful_shutdown").WaitTimeout(defaultPublishTimeout)
	}
	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.online.Store(false)
	return nil
}

// HealthCheck reports whether the broker connection is up.
//
// Returns:
//   - error: nil if healthy, ErrNotConnected or the context error otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	return c.online.Load() && c.paho != nil && c.paho.IsConnected()
}

func (c *Client) logger() Logger {
	if c.hooks.Logger == nil {
		return noopLogger{}
	}
	return c.hooks.Logger
}

// wrapHandler adapts a MessageHandler to paho.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.deliver(handler, msg.Topic(), msg.Payload())
	}
}

// deliver runs one handler. A panic is logged and swallowed so the
// delivery goroutine keeps serving the remaining ingest topics.
func (c *Client) deliver(handler MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger().Error("MQTT handler panic recovered", "topic", topic, "panic", r)
		}
	}()

	if err := handler(topic, payload); err != nil {
		c.logger().Warn("MQTT handler returned error", "topic", topic, "payload_bytes", len(payload), "error", err)
	}
}
