// Package telemetry records session activity to a time-series sink.
//
// A Recorder subscribes to the event bridge and turns status changes,
// connection failures and received messages into points. It runs on its
// own goroutine, so a slow sink never holds up the session.
package telemetry
