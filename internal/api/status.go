package api

import (
	"net/http"
	"runtime"
	"time"
)

// Status is the response of GET /api/v1/status.
type Status struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeStatus  `json:"runtime"`
	Devices       DeviceStatus   `json:"devices"`
	Sessions      int            `json:"sessions"`
	WebSocket     WebSocketState `json:"websocket"`
}

// RuntimeStatus contains Go runtime statistics.
type RuntimeStatus struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// DeviceStatus contains registry counts.
type DeviceStatus struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// WebSocketState contains live feed statistics.
type WebSocketState struct {
	ConnectedClients int `json:"connected_clients"`
}

const bytesPerMB = 1024 * 1024

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

// handleStatus returns registry, session and runtime statistics.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := s.registry.Stats()
	writeJSON(w, http.StatusOK, Status{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Runtime: RuntimeStatus{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / bytesPerMB,
			NumGC:         mem.NumGC,
		},
		Devices:   DeviceStatus{Total: stats.Total, Active: stats.Active},
		Sessions:  s.querier.Sessions(),
		WebSocket: WebSocketState{ConnectedClients: s.hub.ClientCount()},
	})
}
