package influxdb

import "errors"

// Sentinel errors for the telemetry sink, checked with errors.Is.
//
// Point writes never return errors: failures surface through the
// SetOnError callback wrapped in ErrWriteFailed and are counted in Stats.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: telemetry disabled in configuration")

	// ErrConnectionFailed means the server could not be pinged at startup.
	ErrConnectionFailed = errors.New("influxdb: server unreachable")

	// ErrWriteFailed wraps a batch the server rejected.
	ErrWriteFailed = errors.New("influxdb: batch write rejected")

	// ErrClosed is returned by HealthCheck once Close has been called.
	ErrClosed = errors.New("influxdb: client closed")
)
