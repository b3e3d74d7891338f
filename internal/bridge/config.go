package bridge

import (
	"fmt"
	"time"

	"github.com/nerrad567/coop-bridge/internal/infrastructure/config"
	"github.com/nerrad567/coop-bridge/internal/reading"
	"github.com/nerrad567/coop-bridge/internal/status"
)

// Defaults for periodic work.
const (
	defaultBeaconInterval = 60 * time.Second
	defaultSunInterval    = 12 * time.Hour
	defaultPruneInterval  = 24 * time.Hour
)

// Config holds the bridge's runtime settings.
type Config struct {
	// ClientID is the bus client whose liveness drives clientStatus.
	ClientID string

	// Defaults seeds absent status rows at cold start.
	Defaults map[string]status.State

	// Triggers maps terminal motion states to optimistic successors.
	// Nil selects status.DefaultTriggers.
	Triggers map[status.State]status.State

	// Hydration bounds the readings sent to new observers.
	Hydration reading.Config

	BeaconInterval time.Duration
	SunInterval    time.Duration

	// Location supplies the local offset added to beacon payloads.
	Location *time.Location

	// HistoryRetention is how long status history is kept. Zero disables pruning.
	HistoryRetention time.Duration
	PruneInterval    time.Duration
}

// ConfigFrom derives bridge settings from the application config.
//
// Returns:
//   - Config: Settings with states parsed
//   - error: If a default status or trigger transition names an unknown state
func ConfigFrom(cfg *config.Config) (Config, error) {
	out := Config{
		ClientID: cfg.Devices.ClientID,
		Defaults: make(map[string]status.State, len(cfg.Devices.Statuses)),
		Hydration: reading.Config{
			MaxSamples: cfg.Hydration.MaxSamples,
			Window:     cfg.HydrationWindow(),
		},
		BeaconInterval:   cfg.BeaconInterval(),
		SunInterval:      cfg.SunInterval(),
		Location:         cfg.Location(),
		HistoryRetention: time.Duration(cfg.Store.HistoryRetentionDays) * 24 * time.Hour,
	}

	for key, raw := range cfg.Devices.Statuses {
		state, err := status.ParseState(raw)
		if err != nil {
			return Config{}, fmt.Errorf("devices.statuses[%s]: %w", key, err)
		}
		out.Defaults[key] = state
	}

	if len(cfg.Devices.TriggerTransitions) > 0 {
		out.Triggers = make(map[status.State]status.State, len(cfg.Devices.TriggerTransitions))
		for from, to := range cfg.Devices.TriggerTransitions {
			fromState, err := status.ParseState(from)
			if err != nil {
				return Config{}, fmt.Errorf("devices.trigger_transitions key: %w", err)
			}
			toState, err := status.ParseState(to)
			if err != nil {
				return Config{}, fmt.Errorf("devices.trigger_transitions[%s]: %w", from, err)
			}
			out.Triggers[fromState] = toState
		}
	}
	return out, nil
}

func (c *Config) applyDefaults() {
	if c.BeaconInterval <= 0 {
		c.BeaconInterval = defaultBeaconInterval
	}
	if c.SunInterval <= 0 {
		c.SunInterval = defaultSunInterval
	}
	if c.PruneInterval <= 0 {
		c.PruneInterval = defaultPruneInterval
	}
	if c.Location == nil {
		c.Location = time.Local
	}
}
