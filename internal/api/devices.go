package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/devicelink/internal/device"
	"github.com/nerrad567/devicelink/internal/server"
)

// handleListDevices returns registered devices.
//
// Query parameters:
//   - active: "true" limits the list to logged-on devices
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var devices []device.Device
	if r.URL.Query().Get("active") == "true" {
		devices = s.registry.ListActive()
	} else {
		devices = s.registry.List()
	}
	if devices == nil {
		devices = []device.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by name.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	dev, err := s.registry.LookupByName(name)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleQueryDevice asks an active device for a sensor reading.
// The reading arrives asynchronously as DATA and is relayed like any other.
func (s *Server) handleQueryDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	err := s.querier.Query(r.Context(), name)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"device": name, "status": "sent"})
	case errors.Is(err, device.ErrNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, server.ErrDeviceNotActive):
		writeError(w, http.StatusConflict, ErrCodeConflict, "device is not logged on")
	case errors.Is(err, server.ErrNoEndpoint):
		writeError(w, http.StatusConflict, ErrCodeConflict, "device has no endpoint")
	default:
		s.logger.Warn("operator query failed", "device", name, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUnavailable, "device unreachable")
	}
}
