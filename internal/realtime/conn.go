package realtime

import "github.com/streamcart/streamcart/internal/models"

// Conn is one open realtime connection bound to a verified user. The
// registry, rooms and relays only ever see this surface; the websocket
// plumbing lives in Session.
type Conn interface {
	// ConnID uniquely identifies this connection instance. A user with
	// several devices holds several Conns with distinct IDs.
	ConnID() string

	// User returns the verified identity that owns the connection.
	User() *models.User

	// Push enqueues an event for delivery. It never blocks; if the
	// connection's send buffer is full the event is dropped and the
	// connection is counted as slow.
	Push(ev Outbound)
}
