package reading

import (
	"fmt"
	"time"
)

// Channel names a sensor stream.
type Channel string

// Sensor channels.
const (
	ChannelTemperature Channel = "temperature"
	ChannelBrightness  Channel = "brightness"
)

// Channels returns every known channel.
func Channels() []Channel {
	return []Channel{ChannelTemperature, ChannelBrightness}
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelTemperature || c == ChannelBrightness
}

// ParseChannel converts text to a Channel.
func ParseChannel(text string) (Channel, error) {
	c := Channel(text)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, text)
	}
	return c, nil
}

// Reading is one numeric observation.
type Reading struct {
	Channel    Channel   `json:"channel"`
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}
