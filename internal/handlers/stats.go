package handlers

import (
	"net/http"
	"time"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	OpenConnections int    `json:"open_connections"`
	LiveRooms       int    `json:"live_rooms"`
	Viewers         int    `json:"viewers"`
	Uptime          string `json:"uptime"`
}

// Stats returns a snapshot of the realtime layer for dashboards.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	rooms, viewers := h.hub.Rooms.Counts()

	h.JSON(w, http.StatusOK, StatsResponse{
		OpenConnections: h.hub.Registry.Len(),
		LiveRooms:       rooms,
		Viewers:         viewers,
		Uptime:          time.Since(h.startTime).Round(time.Second).String(),
	})
}
