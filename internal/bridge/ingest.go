package bridge

import (
	"errors"
	"fmt"

	"github.com/nerrad567/coop-bridge/internal/hub"
	"github.com/nerrad567/coop-bridge/internal/reading"
	"github.com/nerrad567/coop-bridge/internal/status"
)

// HandleBusMessage decodes one bus message and dispatches it. It matches
// mqtt.MessageHandler; the returned error is for logging only and is
// wrapped with ErrDecode for malformed payloads. Unknown topics return nil.
func (b *Bridge) HandleBusMessage(topic string, payload []byte) error {
	ev, err := Decode(topic, payload)
	if err != nil {
		return err
	}
	if ev == nil {
		return nil
	}
	return b.Dispatch(ev)
}

// Dispatch routes one event to its handler.
func (b *Bridge) Dispatch(ev Event) error {
	switch e := ev.(type) {
	case ReadingObserved:
		return b.onReading(e)
	case StatusObserved:
		return b.onStatus(e)
	case ClientLiveness:
		b.onLiveness(e)
		return nil
	case TriggerRequested:
		return b.onTrigger(e)
	default:
		return fmt.Errorf("unhandled event %T", ev)
	}
}

func (b *Bridge) onReading(e ReadingObserved) error {
	_, err := b.readings.Append(e.Channel, e.Value, b.onReadingCommit)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}

// onReadingCommit runs under the channel lock and the gate.
func (b *Bridge) onReadingCommit(rd reading.Reading) {
	var update any
	switch rd.Channel {
	case reading.ChannelTemperature:
		update = hub.TempUpdate{Temp: rd.Value}
	case reading.ChannelBrightness:
		update = hub.LightUpdate{Light: rd.Value}
	}
	b.broadcast(hub.UpdateMessage{Update: update})
	b.persistReading(rd)
}

func (b *Bridge) onStatus(e StatusObserved) error {
	_, err := b.table.Observe(e.Key, e.State, b.onStatusCommit)
	if err != nil {
		if errors.Is(err, status.ErrInvalidState) || errors.Is(err, status.ErrInvalidKey) {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return err
	}
	return nil
}

// onStatusCommit runs under the key lock and the gate.
func (b *Bridge) onStatusCommit(ch status.Change) {
	b.broadcast(hub.UpdateMessage{Update: statusRow(ch.Status)})
	b.persistStatus(ch)
}

// onLiveness tracks the monitored client and republishes sun times on
// every client connect.
func (b *Bridge) onLiveness(e ClientLiveness) {
	if e.ClientID == b.cfg.ClientID && b.cfg.ClientID != "" {
		value := hub.ClientOffline
		if e.Online {
			value = hub.ClientOnline
		}
		b.commit(func() {
			b.clientMu.Lock()
			b.clientStatus = value
			b.clientMu.Unlock()
			b.broadcast(hub.ClientStatusMessage{ClientStatus: value})
		})
		b.logger.Info("monitored client liveness changed", "client_id", e.ClientID, "client_status", value)
	}

	if e.Online {
		// Bus handlers must not block on a qos 2 publish.
		b.goPublishSun()
	}
}

// broadcast encodes msg and fans it out. Caller holds the gate.
func (b *Bridge) broadcast(msg any) {
	if _, err := b.hub.BroadcastJSON(msg); err != nil {
		b.logger.Error("broadcast failed", "error", err)
	}
}

// statusRow renders st for observers. Updated is whole unix seconds,
// which dashboards already parse; two changes inside one second tie.
func statusRow(st status.Status) hub.StatusRow {
	return hub.StatusRow{
		Name:    st.Key,
		Status:  string(st.State),
		Updated: st.UpdatedAt.Unix(),
	}
}
