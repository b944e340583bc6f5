// Package logging provides structured logging for MQTT Desk.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Per-component child loggers
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	mqttLog := logger.Component("mqtt")
//	mqttLog.Info("connecting", "host", "localhost")
//
// # Security
//
// Attributes named password, token, ticket or secret are replaced with
// [REDACTED] by every handler. Do not rely on it for free-form messages:
// the session package logs the username of a connect attempt, never the
// password.
package logging
