package api

import (
	"database/sql"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/mqttdesk/internal/infrastructure/influxdb"
	"github.com/nerrad567/mqttdesk/internal/session"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	Session       SessionMetrics   `json:"session"`
	Events        EventMetrics     `json:"events"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
	Telemetry     *influxdb.Stats  `json:"telemetry,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// SessionMetrics summarises the broker session.
type SessionMetrics struct {
	Phase         string `json:"phase"`
	Connected     bool   `json:"connected"`
	Broker        string `json:"broker,omitempty"`
	ClientID      string `json:"client_id"`
	Subscriptions int    `json:"subscriptions"`
	MessageCount  int    `json:"message_count"`
}

// EventMetrics contains event bridge statistics.
type EventMetrics struct {
	Subscribers int `json:"subscribers"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// poolStats is satisfied by *database.DB through its embedded *sql.DB.
type poolStats interface {
	Stats() sql.DBStats
}

// telemetryStats is satisfied by *influxdb.Client.
type telemetryStats interface {
	Stats() influxdb.Stats
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := s.session.Snapshot()

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Session: SessionMetrics{
			Phase:         snap.Status.Phase.String(),
			Connected:     snap.Status.Phase == session.PhaseConnected,
			Broker:        snap.Broker,
			ClientID:      s.clientID,
			Subscriptions: len(snap.Subscriptions),
			MessageCount:  s.session.MessageCount(),
		},
		Events: EventMetrics{
			Subscribers: s.events.SubscriberCount(),
		},
	}

	if ps, ok := s.db.(poolStats); ok {
		stats := ps.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: stats.OpenConnections,
			InUse:           stats.InUse,
			Idle:            stats.Idle,
			WaitCount:       stats.WaitCount,
		}
	}

	if ts, ok := s.influx.(telemetryStats); ok {
		stats := ts.Stats()
		metrics.Telemetry = &stats
	}

	writeJSON(w, http.StatusOK, metrics)
}
