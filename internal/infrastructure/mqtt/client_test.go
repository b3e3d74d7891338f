package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/coop-bridge/internal/infrastructure/config"
)

// testConfig returns an MQTT configuration pointing at a local broker.
func testConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip connects to the local broker, skipping the test when none
// is listening.
func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()

	cfg := testConfig(clientID)
	addr := net.JoinHostPort(cfg.Broker.Host, strconv.Itoa(cfg.Broker.Port))
	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		t.Skipf("no MQTT broker at %s: %v", addr, err)
	}
	conn.Close() //nolint:errcheck // Reachability check only

	client, err := Connect(cfg, Hooks{})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func hasRoute(c *Client, topic string) bool {
	for _, r := range c.routes.all() {
		if r.topic == topic {
			return true
		}
	}
	return false
}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

// =============================================================================
// Unit tests (no broker)
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig("coopbridge-opts")
	cfg.Auth.Username = "coop"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "coopbridge-opts" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "coop" || opts.Password != "secret" {
		t.Errorf("credentials not applied: %q/%q", opts.Username, opts.Password)
	}
	if !opts.Order {
		t.Error("in-order delivery must be enabled")
	}
	if !opts.AutoReconnect {
		t.Error("auto reconnect must be enabled")
	}

	cfg.Broker.Host = "::1"
	opts = buildClientOptions(cfg)
	if got := opts.Servers[0].String(); got != "tcp://[::1]:1883" {
		t.Errorf("IPv6 broker = %q, want tcp://[::1]:1883", got)
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("TLS scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil {
		t.Error("TLS config not set")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig("coopbridge-lwt"))
	configureLWT(opts, "coopbridge-lwt")

	if !opts.WillEnabled {
		t.Fatal("will not enabled")
	}
	if opts.WillTopic != TopicBridgeStatus {
		t.Errorf("WillTopic = %q, want %q", opts.WillTopic, TopicBridgeStatus)
	}
	if !opts.WillRetained {
		t.Error("will must be retained")
	}
	if !strings.Contains(string(opts.WillPayload), `"reason":"unexpected_disconnect"`) {
		t.Errorf("WillPayload = %s", opts.WillPayload)
	}
}

func TestStatusPayload(t *testing.T) {
	online := statusPayload("online", "cb", "")
	if strings.Contains(online, "reason") {
		t.Errorf("online payload should have no reason: %s", online)
	}
	if !strings.Contains(online, `"status":"online"`) || !strings.Contains(online, `"client_id":"cb"`) {
		t.Errorf("online payload = %s", online)
	}
}

func TestTopics_Ingest(t *testing.T) {
	subs := Topics{}.Ingest()

	want := map[string]byte{
		TopicTemperature:        QoSAtLeastOnce,
		TopicBrightness:         QoSAtLeastOnce,
		TopicDeviceStatus:       QoSExactlyOnce,
		TopicClientConnected:    QoSAtLeastOnce,
		TopicClientDisconnected: QoSAtLeastOnce,
	}
	if len(subs) != len(want) {
		t.Fatalf("Ingest() returned %d subscriptions, want %d", len(subs), len(want))
	}
	for _, s := range subs {
		qos, ok := want[s.Topic]
		if !ok {
			t.Errorf("unexpected topic %q", s.Topic)
			continue
		}
		if s.QoS != qos {
			t.Errorf("topic %q QoS = %d, want %d", s.Topic, s.QoS, qos)
		}
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		got, want string
	}{
		{topics.Temperature(), "sensor/temperature"},
		{topics.Brightness(), "sensor/brightness"},
		{topics.DeviceStatus(), "device/status"},
		{topics.ClientConnected(), "client/connected"},
		{topics.ClientDisconnected(), "client/disconnected"},
		{topics.TimeBeacon(), "time/beacon"},
		{topics.SunRise(), "sun/rise"},
		{topics.SunSet(), "sun/set"},
		{topics.RemoteTrigger(), "device/remotetrigger"},
		{topics.BridgeStatus(), "bridge/status"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestPublish_Validation(t *testing.T) {
	c := &Client{}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 0, ErrInvalidTopic},
		{"invalid qos", "time/beacon", []byte("x"), 3, ErrInvalidQoS},
		{"oversized", "time/beacon", make([]byte, maxPayloadSize+1), 0, ErrPublishFailed},
		{"not connected", "time/beacon", []byte("x"), 0, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := &Client{}
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 0, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("sensor/temperature", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v", err)
	}
	if err := c.Subscribe("sensor/temperature", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := c.Subscribe("sensor/temperature", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
	if routes := c.routes.all(); len(routes) != 0 {
		t.Errorf("tracked routes = %v, want none", routes)
	}
}

func TestDeliver_RecoversPanic(t *testing.T) {
	logger := &mockLogger{}
	c := &Client{hooks: Hooks{Logger: logger}}

	c.deliver(func(string, []byte) error { panic("boom") }, "sensor/temperature", []byte("1"))
	c.deliver(func(string, []byte) error { return errors.New("bad payload") }, "sensor/temperature", []byte("x"))

	if len(logger.errors) != 1 {
		t.Errorf("expected 1 panic log, got %v", logger.errors)
	}
	if len(logger.warns) != 1 {
		t.Errorf("expected 1 handler error log, got %v", logger.warns)
	}
}

func TestUnsubscribe_DropsRouteWhileDisconnected(t *testing.T) {
	c := &Client{}
	c.routes.put(route{topic: TopicTemperature, qos: QoSAtLeastOnce, handler: func(string, []byte) error { return nil }})

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Unsubscribe(TopicTemperature); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
	if hasRoute(c, TopicTemperature) {
		t.Error("route still tracked; it would be replayed on reconnect")
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	c := &Client{}

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

// =============================================================================
// Broker tests (skipped without a broker on 127.0.0.1:1883)
// =============================================================================

func TestPublishSubscribeRoundtrip(t *testing.T) {
	client := connectOrSkip(t, "coopbridge-test-roundtrip")

	received := make(chan string, 1)
	topic := "coopbridge/test/roundtrip"
	err := client.Subscribe(topic, QoSAtLeastOnce, func(_ string, payload []byte) error {
		received <- string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !hasRoute(client, topic) {
		t.Error("route not tracked")
	}

	if err := client.PublishString(topic, "71.5", QoSAtLeastOnce, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != "71.5" {
			t.Errorf("payload = %q, want 71.5", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}

	if err := client.Unsubscribe(topic); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if hasRoute(client, topic) {
		t.Error("route still tracked after Unsubscribe")
	}
}

func TestOrderedDelivery(t *testing.T) {
	client := connectOrSkip(t, "coopbridge-test-order")

	const n = 20
	topic := "coopbridge/test/order"
	got := make(chan string, n)
	if err := client.Subscribe(topic, QoSAtLeastOnce, func(_ string, p []byte) error {
		got <- string(p)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for i := 0; i < n; i++ {
		if err := client.PublishString(topic, fmt.Sprint(i), QoSAtLeastOnce, false); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	for i := 0; i < n; i++ {
		select {
		case p := <-got:
			if p != fmt.Sprint(i) {
				t.Fatalf("message %d = %q, out of order", i, p)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}
