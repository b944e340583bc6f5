package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSessionStatus    = "session_status"
	MeasurementMessagesReceived = "messages_received"
	MeasurementConnectFailures  = "connection_failures"
)

// WriteSessionStatus records a connection status transition.
//
// Parameters:
//   - broker: host:port the session targets (tag)
//   - phase: lower-case phase name, e.g. "connected" (tag)
//   - reason: failure reason, empty unless the phase is "failed"
//   - at: when the transition happened
func (c *Client) WriteSessionStatus(broker, phase, reason string, at time.Time) {
	fields := map[string]interface{}{
		"connected": phase == "connected",
	}
	if reason != "" {
		fields["reason"] = reason
	}
	c.WritePointWithTime(MeasurementSessionStatus,
		map[string]string{"broker": broker, "phase": phase},
		fields, at)
}

// WriteMessageReceived records one logged inbound message.
//
// The topic is stored as a field, not a tag, since topics are unbounded.
func (c *Client) WriteMessageReceived(broker, topic string, qos byte, retained bool, size int, at time.Time) {
	c.WritePointWithTime(MeasurementMessagesReceived,
		map[string]string{
			"broker":   broker,
			"qos":      strconv.Itoa(int(qos)),
			"retained": strconv.FormatBool(retained),
		},
		map[string]interface{}{
			"count": 1,
			"bytes": size,
			"topic": topic,
		}, at)
}

// WriteConnectionFailure records a failed connect attempt.
func (c *Client) WriteConnectionFailure(broker, reason string, at time.Time) {
	c.WritePointWithTime(MeasurementConnectFailures,
		map[string]string{"broker": broker},
		map[string]interface{}{"count": 1, "reason": reason},
		at)
}

// WritePoint writes a custom point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
// Writes after Close are dropped and counted.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		c.dropped.Add(1)
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
	c.queued.Add(1)
}
