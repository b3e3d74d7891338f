package hub

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Error codes sent to observers.
const (
	CodeUnknownDevice  = "unknown_device"
	CodeInvalidMessage = "invalid_message"
)

// Client liveness values.
const (
	ClientOnline  = "Online"
	ClientOffline = "Offline"
)

// ReadingPoint is one reading in a hydration list.
type ReadingPoint struct {
	CreatedAt int64   `json:"createdAt"` // unix milliseconds
	Reading   float64 `json:"reading"`
}

// StatusRow is one device status, used both in hydration and as an update.
type StatusRow struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Updated int64  `json:"updated"` // unix seconds
}

// StatusesMessage hydrates all device statuses.
type StatusesMessage struct {
	Statuses []StatusRow `json:"statuses"`
}

// LightReadingsMessage hydrates recent brightness readings.
type LightReadingsMessage struct {
	LightReadings []ReadingPoint `json:"lightReadings"`
}

// TempReadingsMessage hydrates recent temperature readings.
type TempReadingsMessage struct {
	TempReadings []ReadingPoint `json:"tempReadings"`
}

// TempUpdate is an incremental temperature reading.
type TempUpdate struct {
	Temp float64 `json:"temp"`
}

// LightUpdate is an incremental brightness reading.
type LightUpdate struct {
	Light float64 `json:"light"`
}

// UpdateMessage wraps one incremental update: TempUpdate, LightUpdate or StatusRow.
type UpdateMessage struct {
	Update any `json:"update"`
}

// ClientStatusMessage reports the monitored bus client's liveness.
type ClientStatusMessage struct {
	ClientStatus string `json:"clientStatus"`
}

// ErrorBody describes a failed observer request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Target  string `json:"target,omitempty"`
}

// ErrorMessage is sent only to the observer whose request failed.
type ErrorMessage struct {
	Error ErrorBody `json:"error"`
}

// NewError builds an ErrorMessage.
func NewError(code, message, target string) ErrorMessage {
	return ErrorMessage{Error: ErrorBody{Code: code, Message: message, Target: target}}
}

// Inbound is a message from an observer.
type Inbound struct {
	RemoteTrigger string `json:"remoteTrigger"`
}

// DecodeInbound parses an observer message. The only accepted message is
// {"remoteTrigger": "<device key>"} with a non-empty key.
func DecodeInbound(data []byte) (Inbound, error) {
	var raw struct {
		RemoteTrigger *string `json:"remoteTrigger"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if raw.RemoteTrigger == nil {
		return Inbound{}, fmt.Errorf("%w: missing remoteTrigger", ErrInvalidMessage)
	}
	key := strings.TrimSpace(*raw.RemoteTrigger)
	if key == "" {
		return Inbound{}, fmt.Errorf("%w: empty remoteTrigger", ErrInvalidMessage)
	}
	return Inbound{RemoteTrigger: key}, nil
}
