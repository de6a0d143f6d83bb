package models

import "time"

// StreamStatus is the durable lifecycle state of a livestream.
type StreamStatus string

const (
	StreamScheduled StreamStatus = "scheduled"
	StreamLive      StreamStatus = "live"
	StreamEnded     StreamStatus = "ended"
)

// Stream is the durable record of a livestream. The in-memory signaling
// room for a stream exists only while the status is live.
type Stream struct {
	ID         string       `json:"id"`
	StreamerID string       `json:"streamer_id"`
	Title      string       `json:"title"`
	Status     StreamStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	EndedAt    *time.Time   `json:"ended_at,omitempty"`
}
