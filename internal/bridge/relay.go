package bridge

import (
	"errors"
	"fmt"

	"github.com/nerrad567/coop-bridge/internal/hub"
	"github.com/nerrad567/coop-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/coop-bridge/internal/status"
)

// HandleObserverMessage decodes one message from observer id and
// dispatches it. Invalid messages are answered with an invalid_message
// error sent to that observer only.
func (b *Bridge) HandleObserverMessage(id string, data []byte) error {
	in, err := hub.DecodeInbound(data)
	if err != nil {
		b.logger.Debug("invalid observer message", "observer_id", id, "error", err)
		b.sendError(id, hub.CodeInvalidMessage, err.Error(), "")
		return err
	}
	return b.Dispatch(TriggerRequested{ObserverID: id, Key: in.RemoteTrigger})
}

// onTrigger applies the optimistic transition, if any, and always relays
// the trigger to the bus for known devices.
func (b *Bridge) onTrigger(e TriggerRequested) error {
	_, err := b.table.Trigger(e.Key, b.onStatusCommit)
	switch {
	case errors.Is(err, status.ErrUnknownDevice):
		b.logger.Warn("trigger for unknown device dropped", "observer_id", e.ObserverID, "device", e.Key)
		b.sendError(e.ObserverID, hub.CodeUnknownDevice, fmt.Sprintf("no device %q", e.Key), e.Key)
		return err
	case errors.Is(err, status.ErrInvalidTransition):
		// The actuator decides; the raw trigger is still relayed.
		b.logger.Info("optimistic transition rejected", "device", e.Key, "error", err)
	case err != nil:
		return err
	}

	if perr := b.bus.Publish(mqtt.TopicRemoteTrigger, []byte(e.Key), mqtt.QoSExactlyOnce, false); perr != nil {
		b.logger.Error("relaying trigger failed", "device", e.Key, "error", perr)
		return fmt.Errorf("relaying trigger for %s: %w", e.Key, perr)
	}
	b.logger.Debug("trigger relayed", "observer_id", e.ObserverID, "device", e.Key)
	return nil
}

func (b *Bridge) sendError(id, code, message, target string) {
	if id == "" {
		return
	}
	if err := b.hub.SendJSON(id, hub.NewError(code, message, target)); err != nil {
		b.logger.Debug("error reply not delivered", "observer_id", id, "error", err)
	}
}
