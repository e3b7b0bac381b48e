package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the relay core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Relay     RelayConfig     `yaml:"relay"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Devices   DevicesConfig   `yaml:"devices"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// RelayConfig contains relay broker connection settings.
// Devices reach the server through this MQTT broker.
type RelayConfig struct {
	Broker    RelayBrokerConfig    `yaml:"broker"`
	Auth      RelayAuthConfig      `yaml:"auth"`
	QoS       int                  `yaml:"qos"`
	Reconnect RelayReconnectConfig `yaml:"reconnect"`

	// CommandTimeout is the device round-trip timeout in seconds.
	CommandTimeout int `yaml:"command_timeout"`
}

// RelayBrokerConfig contains relay broker connection details.
type RelayBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// RelayAuthConfig contains relay broker authentication credentials.
type RelayAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RelayReconnectConfig contains relay reconnection settings.
type RelayReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket hub settings.
type WebSocketConfig struct {
	// PingInterval is the keepalive ping interval in seconds.
	PingInterval int `yaml:"ping_interval"`

	// WriteTimeout is the per-message write deadline in seconds.
	WriteTimeout int `yaml:"write_timeout"`
}

// TelemetryConfig contains InfluxDB settings for device state history.
type TelemetryConfig struct {
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

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	// JWTSecret signs account session tokens. Must be set in production.
	JWTSecret string `yaml:"jwt_secret"`

	// TokenTTL is the session token lifetime in seconds.
	TokenTTL int `yaml:"token_ttl"`
}

// DevicesConfig contains device runtime settings.
type DevicesConfig struct {
	// UpdateDebounce is the state-change notification window in milliseconds.
	// Mutations within one window collapse to a single update and save.
	UpdateDebounce int `yaml:"update_debounce"`
}

// Load reads configuration from a YAML file, applies environment variable
// overrides, fills in defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator CLI/env
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides replaces selected values from environment variables.
// Only secrets and connection details are overridable; structural settings
// stay in the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RELAY_CORE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("RELAY_CORE_BROKER_HOST"); v != "" {
		cfg.Relay.Broker.Host = v
	}
	if v := os.Getenv("RELAY_CORE_BROKER_USERNAME"); v != "" {
		cfg.Relay.Auth.Username = v
	}
	if v := os.Getenv("RELAY_CORE_BROKER_PASSWORD"); v != "" {
		cfg.Relay.Auth.Password = v
	}
	if v := os.Getenv("RELAY_CORE_JWT_SECRET"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := os.Getenv("RELAY_CORE_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}
	if v := os.Getenv("RELAY_CORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Default values applied to zero fields after loading.
const (
	defaultBrokerPort     = 1883
	defaultAPIPort        = 8008
	defaultBusyTimeout    = 5
	defaultCommandTimeout = 5
	defaultReadTimeout    = 15
	defaultWriteTimeout   = 15
	defaultIdleTimeout    = 60
	defaultPingInterval   = 30
	defaultWSWriteTimeout = 10
	defaultTokenTTL       = 86400
	defaultDebounceMS     = 100
)

func applyDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/relay-core.db"
	}
	if cfg.Database.BusyTimeout == 0 {
		cfg.Database.BusyTimeout = defaultBusyTimeout
	}
	if cfg.Relay.Broker.Port == 0 {
		cfg.Relay.Broker.Port = defaultBrokerPort
	}
	if cfg.Relay.Broker.ClientID == "" {
		cfg.Relay.Broker.ClientID = "relay-core"
	}
	if cfg.Relay.QoS == 0 {
		cfg.Relay.QoS = 1
	}
	if cfg.Relay.CommandTimeout == 0 {
		cfg.Relay.CommandTimeout = defaultCommandTimeout
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = defaultAPIPort
	}
	if cfg.API.Timeouts.Read == 0 {
		cfg.API.Timeouts.Read = defaultReadTimeout
	}
	if cfg.API.Timeouts.Write == 0 {
		cfg.API.Timeouts.Write = defaultWriteTimeout
	}
	if cfg.API.Timeouts.Idle == 0 {
		cfg.API.Timeouts.Idle = defaultIdleTimeout
	}
	if cfg.WebSocket.PingInterval == 0 {
		cfg.WebSocket.PingInterval = defaultPingInterval
	}
	if cfg.WebSocket.WriteTimeout == 0 {
		cfg.WebSocket.WriteTimeout = defaultWSWriteTimeout
	}
	if cfg.Security.TokenTTL == 0 {
		cfg.Security.TokenTTL = defaultTokenTTL
	}
	if cfg.Devices.UpdateDebounce == 0 {
		cfg.Devices.UpdateDebounce = defaultDebounceMS
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// Validate checks that required fields are present and consistent.
func (c *Config) Validate() error {
	var problems []string

	if c.Relay.Broker.Host == "" {
		problems = append(problems, "relay.broker.host is required")
	}
	if c.Relay.QoS < 0 || c.Relay.QoS > 2 {
		problems = append(problems, "relay.qos must be 0, 1 or 2")
	}
	if c.Security.JWTSecret == "" {
		problems = append(problems, "security.jwt_secret is required (or set RELAY_CORE_JWT_SECRET)")
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.URL == "" {
			problems = append(problems, "telemetry.url is required when telemetry is enabled")
		}
		if c.Telemetry.Token == "" {
			problems = append(problems, "telemetry.token is required when telemetry is enabled")
		}
	}
	if c.Devices.UpdateDebounce < 0 {
		problems = append(problems, "devices.update_debounce must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// BrokerURL returns the relay broker URL in paho format.
func (c *RelayConfig) BrokerURL() string {
	scheme := "tcp"
	if c.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Broker.Host, c.Broker.Port)
}
