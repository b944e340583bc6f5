package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
broker:
  host: "broker.local"
  port: 8883
  client_id: "desk-1"
  keepalive: 30
  auto_reconnect: true
session:
  message_log_limit: 100
  connect_timeout: "10s"
  disconnect_timeout: "2s"
database:
  path: "/tmp/test.db"
api:
  host: "0.0.0.0"
  port: 9000
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Broker.Host != "broker.local" || cfg.Broker.Port != 8883 {
		t.Errorf("Broker = %s:%d, want broker.local:8883", cfg.Broker.Host, cfg.Broker.Port)
	}
	if cfg.Broker.ClientID != "desk-1" {
		t.Errorf("Broker.ClientID = %q, want %q", cfg.Broker.ClientID, "desk-1")
	}
	if !cfg.Broker.AutoReconnect {
		t.Error("Broker.AutoReconnect = false, want true")
	}
	if got := cfg.KeepAliveDuration(); got != 30*time.Second {
		t.Errorf("KeepAliveDuration() = %v, want 30s", got)
	}
	if cfg.Session.MessageLogLimit != 100 {
		t.Errorf("Session.MessageLogLimit = %d, want 100", cfg.Session.MessageLogLimit)
	}
	if cfg.Session.ConnectTimeout != 10*time.Second {
		t.Errorf("Session.ConnectTimeout = %v, want 10s", cfg.Session.ConnectTimeout)
	}
	if cfg.Session.DisconnectTimeout != 2*time.Second {
		t.Errorf("Session.DisconnectTimeout = %v, want 2s", cfg.Session.DisconnectTimeout)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	// Unset sections keep their defaults.
	if cfg.Session.EventBuffer != 256 {
		t.Errorf("Session.EventBuffer = %d, want default 256", cfg.Session.EventBuffer)
	}
	if !cfg.Broker.CleanSession {
		t.Error("Broker.CleanSession lost its default")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
session:
  message_log_limit: -1
database:
  path: "/tmp/test.db"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for negative message_log_limit, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	validSecret := "test-secret-key-at-least-32-chars!"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unbounded log", func(c *Config) { c.Session.MessageLogLimit = 0 }, false},
		{"timeouts disabled", func(c *Config) { c.Session.ConnectTimeout = 0; c.Session.DisconnectTimeout = 0 }, false},
		{"valid secret", func(c *Config) { c.API.Auth.Secret = validSecret }, false},
		{"broker port low", func(c *Config) { c.Broker.Port = 0 }, true},
		{"broker port high", func(c *Config) { c.Broker.Port = 70000 }, true},
		{"negative keepalive", func(c *Config) { c.Broker.KeepAlive = -1 }, true},
		{"connect on start without host", func(c *Config) { c.Broker.ConnectOnStart = true; c.Broker.Host = "" }, true},
		{"negative log limit", func(c *Config) { c.Session.MessageLogLimit = -5 }, true},
		{"negative connect timeout", func(c *Config) { c.Session.ConnectTimeout = -time.Second }, true},
		{"zero event buffer", func(c *Config) { c.Session.EventBuffer = 0 }, true},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, true},
		{"api port high", func(c *Config) { c.API.Port = 70000 }, true},
		{"secret too short", func(c *Config) { c.API.Auth.Secret = "short" }, true},
		{"influx without url", func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.Bucket = "b" }, true},
		{"influx without bucket", func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.URL = "http://x" }, true},
		{"unbounded audit", func(c *Config) { c.Audit.MaxEntries = 0 }, false},
		{"negative audit cap", func(c *Config) { c.Audit.MaxEntries = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("MQTTDESK_BROKER_HOST", "mqtt.example.com")
	t.Setenv("MQTTDESK_BROKER_PORT", "8883")
	t.Setenv("MQTTDESK_BROKER_USERNAME", "testuser")
	t.Setenv("MQTTDESK_BROKER_PASSWORD", "testpass")
	t.Setenv("MQTTDESK_BROKER_CLIENT_ID", "desk-env")
	t.Setenv("MQTTDESK_DATABASE_PATH", "/custom/path.db")
	t.Setenv("MQTTDESK_API_HOST", "192.168.1.1")
	t.Setenv("MQTTDESK_API_PORT", "9999")
	t.Setenv("MQTTDESK_API_SECRET", "api-secret")
	t.Setenv("MQTTDESK_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("MQTTDESK_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	if cfg.Broker.Host != "mqtt.example.com" {
		t.Errorf("Broker.Host = %q, want %q", cfg.Broker.Host, "mqtt.example.com")
	}
	if cfg.Broker.Port != 8883 {
		t.Errorf("Broker.Port = %d, want 8883", cfg.Broker.Port)
	}
	if cfg.Broker.Username != "testuser" || cfg.Broker.Password != "testpass" {
		t.Errorf("Broker credentials = %q/%q, want testuser/testpass", cfg.Broker.Username, cfg.Broker.Password)
	}
	if cfg.Broker.ClientID != "desk-env" {
		t.Errorf("Broker.ClientID = %q, want %q", cfg.Broker.ClientID, "desk-env")
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.API.Host != "192.168.1.1" || cfg.API.Port != 9999 {
		t.Errorf("API = %s:%d, want 192.168.1.1:9999", cfg.API.Host, cfg.API.Port)
	}
	if cfg.API.Auth.Secret != "api-secret" {
		t.Errorf("API.Auth.Secret = %q, want %q", cfg.API.Auth.Secret, "api-secret")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestApplyEnvOverrides_BadPortIgnored(t *testing.T) {
	cfg := Default()
	t.Setenv("MQTTDESK_BROKER_PORT", "abc")

	applyEnvOverrides(cfg)

	if cfg.Broker.Port != 1883 {
		t.Errorf("Broker.Port = %d, want default 1883", cfg.Broker.Port)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() does not validate: %v", err)
	}
	if cfg.Broker.Port != 1883 {
		t.Errorf("Broker.Port = %d, want 1883", cfg.Broker.Port)
	}
	if cfg.Session.MessageLogLimit != 5000 {
		t.Errorf("Session.MessageLogLimit = %d, want 5000", cfg.Session.MessageLogLimit)
	}
	if cfg.Session.ConnectTimeout != 15*time.Second {
		t.Errorf("Session.ConnectTimeout = %v, want 15s", cfg.Session.ConnectTimeout)
	}
	if cfg.Session.DisconnectTimeout != 5*time.Second {
		t.Errorf("Session.DisconnectTimeout = %v, want 5s", cfg.Session.DisconnectTimeout)
	}
	if cfg.API.Auth.Secret != "" {
		t.Error("Default() should leave the API open")
	}
	if !cfg.Audit.Enabled || cfg.Audit.MaxEntries != 10000 {
		t.Errorf("Audit = %+v, want enabled with 10000 entries", cfg.Audit)
	}
}
