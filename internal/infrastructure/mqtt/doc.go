// Package mqtt is the bridge's bus adapter, built on paho.mqtt.golang.
//
// This package manages:
//   - Connection to the broker with auto-reconnect and subscription replay
//   - Publishing with QoS validation and acknowledgement timeouts
//   - In-order, panic-safe delivery of inbound messages to handlers
//   - A retained online/offline status on bridge/status, with a Last Will
//
// The topic set is fixed and flat (sensor/temperature, device/status,
// device/remotetrigger, ...); see topics.go.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Hooks{Logger: log})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	for _, sub := range (mqtt.Topics{}).Ingest() {
//	    err = client.Subscribe(sub.Topic, sub.QoS, b.HandleBusMessage)
//	}
package mqtt
