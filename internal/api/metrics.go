package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-heatpump/internal/bridges/heatpump"
	"github.com/nerrad567/gray-logic-heatpump/internal/coordinator"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	Bridge        *BridgeMetrics  `json:"bridge,omitempty"`
	Coordinator   PollMetrics     `json:"coordinator"`
	Database      DatabaseMetrics `json:"database"`
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

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// BridgeMetrics contains MQTT bridge statistics.
type BridgeMetrics = heatpump.BridgeMetrics

// PollMetrics contains coordinator polling statistics.
type PollMetrics struct {
	Available      bool    `json:"available"`
	Registers      int     `json:"registers"`
	Fetches        uint64  `json:"fetches"`
	FetchFailures  uint64  `json:"fetch_failures"`
	Writes         uint64  `json:"writes"`
	WriteFailures  uint64  `json:"write_failures"`
	LastDurationMS float64 `json:"last_duration_ms"`
}

func pollMetrics(c *coordinator.Coordinator) PollMetrics {
	st := c.Stats()
	return PollMetrics{
		Available:      c.LastUpdateSuccess(),
		Registers:      len(c.Interest()),
		Fetches:        st.Fetches,
		FetchFailures:  st.FetchFailures,
		Writes:         st.Writes,
		WriteFailures:  st.WriteFailures,
		LastDurationMS: float64(st.LastDuration) / float64(time.Millisecond),
	}
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	// Collect runtime stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	// Build metrics response
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
	}

	// MQTT metrics (if available)
	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{
			Connected: s.mqtt.IsConnected(),
		}
	}

	if s.bridge != nil {
		bm := s.bridge.GetMetrics()
		metrics.Bridge = &bm
	}

	metrics.Coordinator = pollMetrics(s.entry.Coordinator())

	// Database stats (if available)
	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
