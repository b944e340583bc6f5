// Package influxdb writes MQTT Desk session telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched writes and health checks.
//
// # Measurements
//
//   - session_status: one point per status transition (tags broker, phase)
//   - messages_received: one point per logged message (tags broker, qos, retained)
//   - connection_failures: one point per failed connect attempt
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSessionStatus("localhost:1883", "connected", "", time.Now())
//
// Write errors are delivered asynchronously through SetOnError.
package influxdb
