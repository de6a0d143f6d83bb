package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/streamcart/streamcart/internal/realtime"
	"github.com/streamcart/streamcart/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db        store.DataStore
	redis     *store.RedisStore
	hub       *realtime.Hub
	startTime time.Time
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(db store.DataStore, redis *store.RedisStore, hub *realtime.Hub) *Handler {
	return &Handler{db: db, redis: redis, hub: hub, startTime: time.Now()}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
