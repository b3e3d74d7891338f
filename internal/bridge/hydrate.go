package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/coop-bridge/internal/hub"
	"github.com/nerrad567/coop-bridge/internal/reading"
)

// Connect hydrates obs and adds it to the broadcast set. The snapshot and
// registration happen under the exclusive gate, so no mutation is both in
// the snapshot and delivered as an increment.
//
// Returns:
//   - error: If the snapshot could not be encoded or queued
func (b *Bridge) Connect(obs *hub.Observer) error {
	b.gate.Lock()
	defer b.gate.Unlock()

	snapshot, err := b.hydration()
	if err != nil {
		return err
	}
	if err := b.hub.Register(obs, snapshot); err != nil {
		return err
	}
	b.logger.Info("observer connected", "observer_id", obs.ID(), "observers", b.hub.Count())
	return nil
}

// Disconnect removes observer id. Safe to call more than once.
func (b *Bridge) Disconnect(id string) {
	if b.hub.Unregister(id) {
		b.logger.Info("observer disconnected", "observer_id", id, "observers", b.hub.Count())
	}
}

// Snapshot returns the encoded hydration messages a new observer would
// receive now.
func (b *Bridge) Snapshot() ([][]byte, error) {
	b.gate.Lock()
	defer b.gate.Unlock()
	return b.hydration()
}

// hydration builds the snapshot in wire order: statuses, lightReadings,
// tempReadings, then clientStatus when known. Caller holds the gate.
func (b *Bridge) hydration() ([][]byte, error) {
	statuses := b.table.Snapshot()
	rows := make([]hub.StatusRow, 0, len(statuses))
	for _, st := range statuses {
		rows = append(rows, statusRow(st))
	}

	msgs := []any{
		hub.StatusesMessage{Statuses: rows},
		hub.LightReadingsMessage{LightReadings: points(b.readings.Recent(reading.ChannelBrightness))},
		hub.TempReadingsMessage{TempReadings: points(b.readings.Recent(reading.ChannelTemperature))},
	}
	if cs := b.ClientStatus(); cs != "" {
		msgs = append(msgs, hub.ClientStatusMessage{ClientStatus: cs})
	}

	out := make([][]byte, 0, len(msgs))
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("encoding hydration: %w", err)
		}
		out = append(out, data)
	}
	return out, nil
}

func points(rds []reading.Reading) []hub.ReadingPoint {
	out := make([]hub.ReadingPoint, 0, len(rds))
	for _, rd := range rds {
		out = append(out, hub.ReadingPoint{CreatedAt: rd.ObservedAt.UnixMilli(), Reading: rd.Value})
	}
	return out
}
