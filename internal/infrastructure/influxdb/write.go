package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the mirror.
const (
	MeasurementReading = "coop_reading"
	MeasurementStatus  = "coop_status"
)

// WriteReading mirrors one sensor reading.
//
// Parameters:
//   - channel: "temperature" or "brightness"
//   - value: The reading value
//   - observedAt: Ingest time assigned by the bridge
func (c *Client) WriteReading(channel string, value float64, observedAt time.Time) {
	c.mirror(readingPoint(c.site, channel, value, observedAt))
}

// WriteStatus mirrors one accepted status change.
//
// Parameters:
//   - key: Device key (e.g. "coop-door")
//   - state: New state
//   - source: "bus" for authoritative updates, "command" for optimistic ones
//   - at: The status's updatedAt
func (c *Client) WriteStatus(key, state, source string, at time.Time) {
	c.mirror(statusPoint(c.site, key, state, source, at))
}

// mirror hands p to the batcher. A closed client drops it.
func (c *Client) mirror(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.queued.Add(1)
	c.points.WritePoint(p)
}

func readingPoint(site, channel string, value float64, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementReading,
		map[string]string{
			"site":    site,
			"channel": channel,
		},
		map[string]interface{}{
			"value": value,
		},
		at,
	)
}

func statusPoint(site, key, state, source string, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementStatus,
		map[string]string{
			"site":   site,
			"device": key,
			"source": source,
		},
		map[string]interface{}{
			"state": state,
		},
		at,
	)
}
