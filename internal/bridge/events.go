package bridge

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/coop-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/coop-bridge/internal/reading"
	"github.com/nerrad567/coop-bridge/internal/status"
)

// statusDelimiter separates key and state in device/status payloads.
const statusDelimiter = "|"

// Brightness bounds, in percent.
const (
	minBrightness = 0
	maxBrightness = 100
)

// Event is a typed inbound event.
type Event interface {
	eventName() string
}

// ReadingObserved is a sensor reading decoded from the bus.
type ReadingObserved struct {
	Channel reading.Channel
	Value   float64
}

// StatusObserved is an authoritative device status decoded from the bus.
type StatusObserved struct {
	Key   string
	State status.State
}

// ClientLiveness reports a bus client connecting or disconnecting.
type ClientLiveness struct {
	ClientID string
	Online   bool
}

// TriggerRequested is an observer asking for a device to be triggered.
type TriggerRequested struct {
	ObserverID string
	Key        string
}

func (ReadingObserved) eventName() string  { return "reading_observed" }
func (StatusObserved) eventName() string   { return "status_observed" }
func (ClientLiveness) eventName() string   { return "client_liveness" }
func (TriggerRequested) eventName() string { return "trigger_requested" }

// Decode converts a bus message into an Event.
//
// Returns:
//   - Event: The decoded event, or nil for a topic the bridge ignores
//   - error: ErrDecode when the payload does not match its topic
func Decode(topic string, payload []byte) (Event, error) {
	text := strings.TrimSpace(string(payload))

	switch topic {
	case mqtt.TopicTemperature:
		v, err := parseNumber(text)
		if err != nil {
			return nil, fmt.Errorf("%w: temperature %q: %v", ErrDecode, text, err)
		}
		return ReadingObserved{Channel: reading.ChannelTemperature, Value: v}, nil

	case mqtt.TopicBrightness:
		v, err := parseNumber(text)
		if err != nil {
			return nil, fmt.Errorf("%w: brightness %q: %v", ErrDecode, text, err)
		}
		// Fractional percentages are truncated.
		v = math.Trunc(v)
		if v < minBrightness || v > maxBrightness {
			return nil, fmt.Errorf("%w: brightness %v outside %d..%d", ErrDecode, v, minBrightness, maxBrightness)
		}
		return ReadingObserved{Channel: reading.ChannelBrightness, Value: v}, nil

	case mqtt.TopicDeviceStatus:
		key, rawState, ok := strings.Cut(text, statusDelimiter)
		key = strings.TrimSpace(key)
		rawState = strings.TrimSpace(rawState)
		if !ok || key == "" || rawState == "" {
			return nil, fmt.Errorf("%w: status %q is not key%sstate", ErrDecode, text, statusDelimiter)
		}
		state, err := status.ParseState(rawState)
		if err != nil {
			return nil, fmt.Errorf("%w: status %q: %w", ErrDecode, text, err)
		}
		return StatusObserved{Key: key, State: state}, nil

	case mqtt.TopicClientConnected, mqtt.TopicClientDisconnected:
		if text == "" {
			return nil, fmt.Errorf("%w: empty client id on %s", ErrDecode, topic)
		}
		return ClientLiveness{ClientID: text, Online: topic == mqtt.TopicClientConnected}, nil

	default:
		return nil, nil
	}
}

func parseNumber(text string) (float64, error) {
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return v, nil
}
