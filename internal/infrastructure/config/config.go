package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Observer overflow policies accepted by websocket.overflow_policy.
const (
	OverflowDisconnect = "disconnect"
	OverflowDropOldest = "drop_oldest"
)

// Config is the root configuration structure for the coop bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Beacon    BeaconConfig    `yaml:"beacon"`
	Sun       SunConfig       `yaml:"sun"`
	Devices   DevicesConfig   `yaml:"devices"`
	Hydration HydrationConfig `yaml:"hydration"`
	Store     StoreConfig     `yaml:"store"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP server settings for the observer endpoint.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains observer connection settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`

	// SendBuffer is the per-observer outbound queue length.
	SendBuffer int `yaml:"send_buffer"`

	// OverflowPolicy decides what happens when an observer's queue is full:
	// "disconnect" closes the observer, "drop_oldest" discards the oldest message.
	OverflowPolicy string `yaml:"overflow_policy"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// BeaconConfig controls the time/beacon heartbeat.
type BeaconConfig struct {
	// Interval is the number of seconds between beacons.
	Interval int `yaml:"interval"`
}

// SunConfig contains the sunrise/sunset hours republished on the bus.
type SunConfig struct {
	Rise     int `yaml:"rise"`
	Set      int `yaml:"set"`
	Interval int `yaml:"interval"`
}

// DevicesConfig describes the devices the bridge tracks.
type DevicesConfig struct {
	// ClientID is the bus client id of the field controller. Its
	// connect/disconnect events drive the observer-facing clientStatus.
	ClientID string `yaml:"client_id"`

	// Statuses maps device keys to their cold-start default state.
	Statuses map[string]string `yaml:"statuses"`

	// TriggerTransitions maps a terminal motion state to the state
	// predicted when an observer triggers the device.
	TriggerTransitions map[string]string `yaml:"trigger_transitions"`
}

// HydrationConfig bounds the reading history sent to new observers.
type HydrationConfig struct {
	MaxSamples  int `yaml:"max_samples"`
	WindowHours int `yaml:"window_hours"`
}

// StoreConfig tunes the write-behind store adapter.
type StoreConfig struct {
	QueueSize            int `yaml:"queue_size"`
	MaxAttempts          int `yaml:"max_attempts"`
	RetryDelayMS         int `yaml:"retry_delay_ms"`
	DegradedAfter        int `yaml:"degraded_after"`
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: COOPBRIDGE_SECTION_KEY
// For example: COOPBRIDGE_DATABASE_PATH, COOPBRIDGE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "coop-001",
			Name:     "Coop",
			Timezone: "Local",
		},
		Database: DatabaseConfig{
			Path:        "./data/coopbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "coopbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			SendBuffer:     256,
			OverflowPolicy: OverflowDisconnect,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Beacon: BeaconConfig{
			Interval: 60,
		},
		Sun: SunConfig{
			Rise:     7,
			Set:      19,
			Interval: 43200,
		},
		Devices: DevicesConfig{
			TriggerTransitions: map[string]string{
				"open":   "opening",
				"closed": "closing",
			},
		},
		Hydration: HydrationConfig{
			MaxSamples:  360,
			WindowHours: 24,
		},
		Store: StoreConfig{
			QueueSize:            1024,
			MaxAttempts:          5,
			RetryDelayMS:         200,
			DegradedAfter:        3,
			HistoryRetentionDays: 30,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: COOPBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COOPBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("COOPBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("COOPBRIDGE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("COOPBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("COOPBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("COOPBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("COOPBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// motionStates and binaryStates mirror the state domains of the status package.
// They are duplicated here so config stays free of domain imports.
var (
	motionStates = map[string]bool{"open": true, "closed": true, "opening": true, "closing": true}
	binaryStates = map[string]bool{"off": true, "on": true}
)

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Site.Timezone != "" {
		if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("site.timezone %q is not a valid IANA zone", c.Site.Timezone))
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	switch c.WebSocket.OverflowPolicy {
	case OverflowDisconnect, OverflowDropOldest:
	default:
		errs = append(errs, fmt.Sprintf("websocket.overflow_policy must be %q or %q", OverflowDisconnect, OverflowDropOldest))
	}

	if c.Beacon.Interval <= 0 {
		errs = append(errs, "beacon.interval must be positive")
	}

	for key, state := range c.Devices.Statuses {
		if key == "" {
			errs = append(errs, "devices.statuses contains an empty key")
			continue
		}
		if strings.Contains(key, "|") {
			errs = append(errs, fmt.Sprintf("devices.statuses key %q must not contain '|'", key))
		}
		if !motionStates[state] && !binaryStates[state] {
			errs = append(errs, fmt.Sprintf("devices.statuses.%s has unknown state %q", key, state))
		}
	}

	for from, to := range c.Devices.TriggerTransitions {
		if from != "open" && from != "closed" {
			errs = append(errs, fmt.Sprintf("devices.trigger_transitions key %q must be a terminal motion state", from))
		}
		if !motionStates[to] {
			errs = append(errs, fmt.Sprintf("devices.trigger_transitions.%s has unknown state %q", from, to))
		}
	}

	if c.Hydration.MaxSamples <= 0 {
		errs = append(errs, "hydration.max_samples must be positive")
	}
	if c.Hydration.WindowHours <= 0 {
		errs = append(errs, "hydration.window_hours must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReadTimeout returns the API read timeout as a Duration.
func (a APIConfig) ReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (a APIConfig) WriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (a APIConfig) IdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}

// BeaconInterval returns the beacon period as a Duration.
func (c *Config) BeaconInterval() time.Duration {
	return time.Duration(c.Beacon.Interval) * time.Second
}

// SunInterval returns the sun republish period as a Duration.
func (c *Config) SunInterval() time.Duration {
	return time.Duration(c.Sun.Interval) * time.Second
}

// HydrationWindow returns the trailing window for hydration readings.
func (c *Config) HydrationWindow() time.Duration {
	return time.Duration(c.Hydration.WindowHours) * time.Hour
}

// Location returns the configured site time zone, falling back to the
// process-local zone when unset or invalid.
func (c *Config) Location() *time.Location {
	if c.Site.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
