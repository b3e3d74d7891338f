package mqtt

// Bus topics. The device side uses a flat scheme: {category}/{name}.
const (
	// Consumed.
	TopicTemperature        = "sensor/temperature"
	TopicBrightness         = "sensor/brightness"
	TopicDeviceStatus       = "device/status"
	TopicClientConnected    = "client/connected"
	TopicClientDisconnected = "client/disconnected"

	// Published.
	TopicTimeBeacon    = "time/beacon"
	TopicSunRise       = "sun/rise"
	TopicSunSet        = "sun/set"
	TopicRemoteTrigger = "device/remotetrigger"

	// TopicBridgeStatus carries the bridge's own retained online/offline
	// status and its Last Will.
	TopicBridgeStatus = "bridge/status"
)

// QoS levels used by the bridge.
const (
	QoSAtMostOnce  byte = 0
	QoSAtLeastOnce byte = 1
	QoSExactlyOnce byte = 2
)

// Topics provides accessors for the bridge's bus topics.
//
//	topics := mqtt.Topics{}
//	client.Publish(topics.RemoteTrigger(), []byte("coop-door"), mqtt.QoSExactlyOnce, false)
type Topics struct{}

// Temperature returns the topic carrying temperature readings.
func (Topics) Temperature() string { return TopicTemperature }

// Brightness returns the topic carrying brightness percentages.
func (Topics) Brightness() string { return TopicBrightness }

// DeviceStatus returns the topic carrying "key|state" status reports.
func (Topics) DeviceStatus() string { return TopicDeviceStatus }

// ClientConnected returns the topic announcing a bus client coming online.
func (Topics) ClientConnected() string { return TopicClientConnected }

// ClientDisconnected returns the topic announcing a bus client going offline.
func (Topics) ClientDisconnected() string { return TopicClientDisconnected }

// TimeBeacon returns the heartbeat topic.
func (Topics) TimeBeacon() string { return TopicTimeBeacon }

// SunRise returns the sunrise topic.
func (Topics) SunRise() string { return TopicSunRise }

// SunSet returns the sunset topic.
func (Topics) SunSet() string { return TopicSunSet }

// RemoteTrigger returns the topic observer commands are relayed on.
func (Topics) RemoteTrigger() string { return TopicRemoteTrigger }

// BridgeStatus returns the bridge's own status topic.
func (Topics) BridgeStatus() string { return TopicBridgeStatus }

// Subscription pairs a consumed topic with the QoS it is subscribed at.
type Subscription struct {
	Topic string
	QoS   byte
}

// Ingest returns every topic the bridge consumes, in subscription order.
func (t Topics) Ingest() []Subscription {
	return []Subscription{
		{Topic: t.Temperature(), QoS: QoSAtLeastOnce},
		{Topic: t.Brightness(), QoS: QoSAtLeastOnce},
		{Topic: t.DeviceStatus(), QoS: QoSExactlyOnce},
		{Topic: t.ClientConnected(), QoS: QoSAtLeastOnce},
		{Topic: t.ClientDisconnected(), QoS: QoSAtLeastOnce},
	}
}
