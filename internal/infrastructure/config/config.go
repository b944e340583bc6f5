package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for MQTT Desk.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Broker    BrokerConfig    `yaml:"broker"`
	Session   SessionConfig   `yaml:"session"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Audit     AuditConfig     `yaml:"audit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BrokerConfig contains the transport settings for the broker connection.
//
// Host, Port, Username and Password are only used when ConnectOnStart is
// set; interactive connects supply their own.
type BrokerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	ClientID       string `yaml:"client_id"`
	KeepAlive      int    `yaml:"keepalive"`
	AutoReconnect  bool   `yaml:"auto_reconnect"`
	CleanSession   bool   `yaml:"clean_session"`
	ConnectOnStart bool   `yaml:"connect_on_start"`
}

// SessionConfig tunes the session manager.
type SessionConfig struct {
	// MessageLogLimit bounds the in-memory message log. 0 means unbounded.
	MessageLogLimit int `yaml:"message_log_limit"`

	// ConnectTimeout fails a connect attempt that gets no CONNACK. 0 disables.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// DisconnectTimeout settles a disconnect the transport never confirms. 0 disables.
	DisconnectTimeout time.Duration `yaml:"disconnect_timeout"`

	// EventBuffer is the capacity of the transport event queue.
	EventBuffer int `yaml:"event_buffer"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	Auth     APIAuthConfig    `yaml:"auth"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// APIAuthConfig enables bearer-token authentication.
// An empty Secret leaves the API open (local desktop use).
type APIAuthConfig struct {
	Secret   string `yaml:"secret"`
	TokenTTL int    `yaml:"token_ttl"` // minutes
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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

// AuditConfig controls the persistent connection history.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`

	// MaxEntries caps the history; the oldest entries are pruned. 0 = unbounded.
	MaxEntries int `yaml:"max_entries"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MQTTDESK_SECTION_KEY
// For example: MQTTDESK_BROKER_HOST, MQTTDESK_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

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

// Default returns a Config with sensible defaults for a local desktop.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Host:         "localhost",
			Port:         1883,
			KeepAlive:    60,
			CleanSession: true,
		},
		Session: SessionConfig{
			MessageLogLimit:   5000,
			ConnectTimeout:    15 * time.Second,
			DisconnectTimeout: 5 * time.Second,
			EventBuffer:       256,
		},
		Database: DatabaseConfig{
			Path:        "./data/mqttdesk.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			Auth: APIAuthConfig{
				TokenTTL: 1440,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Audit: AuditConfig{
			Enabled:    true,
			MaxEntries: 10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MQTTDESK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Broker
	if v := os.Getenv("MQTTDESK_BROKER_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("MQTTDESK_BROKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Broker.Port = port
		}
	}
	if v := os.Getenv("MQTTDESK_BROKER_USERNAME"); v != "" {
		cfg.Broker.Username = v
	}
	if v := os.Getenv("MQTTDESK_BROKER_PASSWORD"); v != "" {
		cfg.Broker.Password = v
	}
	if v := os.Getenv("MQTTDESK_BROKER_CLIENT_ID"); v != "" {
		cfg.Broker.ClientID = v
	}

	// Database
	if v := os.Getenv("MQTTDESK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("MQTTDESK_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("MQTTDESK_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("MQTTDESK_API_SECRET"); v != "" {
		cfg.API.Auth.Secret = v
	}

	// InfluxDB
	if v := os.Getenv("MQTTDESK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("MQTTDESK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Broker validation
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, "broker.port must be between 1 and 65535")
	}
	if c.Broker.KeepAlive < 0 {
		errs = append(errs, "broker.keepalive must not be negative")
	}
	if c.Broker.ConnectOnStart && c.Broker.Host == "" {
		errs = append(errs, "broker.host is required when broker.connect_on_start is set")
	}

	// Session validation
	if c.Session.MessageLogLimit < 0 {
		errs = append(errs, "session.message_log_limit must not be negative (0 = unbounded)")
	}
	if c.Session.ConnectTimeout < 0 {
		errs = append(errs, "session.connect_timeout must not be negative")
	}
	if c.Session.DisconnectTimeout < 0 {
		errs = append(errs, "session.disconnect_timeout must not be negative")
	}
	if c.Session.EventBuffer < 1 {
		errs = append(errs, "session.event_buffer must be at least 1")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// A configured secret must be strong enough that tokens cannot be forged.
	const minSecretLength = 32
	if c.API.Auth.Secret != "" && len(c.API.Auth.Secret) < minSecretLength {
		errs = append(errs, "api.auth.secret must be at least 32 characters")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	// Audit validation
	if c.Audit.MaxEntries < 0 {
		errs = append(errs, "audit.max_entries must not be negative (0 = unbounded)")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// KeepAliveDuration returns the broker keepalive as a Duration.
func (c *Config) KeepAliveDuration() time.Duration {
	return time.Duration(c.Broker.KeepAlive) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
