package realtime

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/streamcart/streamcart/internal/metrics"
)

// Registry maps user IDs to their currently open connections. A user
// may hold several connections at once (multi-device); each connection
// belongs to exactly one user. Connections are kept in connect order,
// which only matters for fan-out, not priority.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string][]Conn
	owner  map[string]string // conn ID -> user ID, for O(1) unregister
	log    zerolog.Logger
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		byUser: make(map[string][]Conn),
		owner:  make(map[string]string),
		log:    log.With().Str("component", "registry").Logger(),
	}
}

// Register adds a connection under its user. Registering the same
// connection instance twice is a no-op.
func (r *Registry) Register(c Conn) {
	userID := c.User().ID

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seen := r.owner[c.ConnID()]; seen {
		return
	}
	r.owner[c.ConnID()] = userID
	r.byUser[userID] = append(r.byUser[userID], c)

	metrics.OpenConnections.Inc()
	r.log.Debug().Str("user_id", userID).Str("conn_id", c.ConnID()).
		Int("conns", len(r.byUser[userID])).Msg("connection registered")
}

// Unregister removes a connection from whichever user owns it and
// deletes the user's entry when its last connection goes away.
// Unregistering an unknown connection is a no-op.
func (r *Registry) Unregister(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owner[c.ConnID()]
	if !ok {
		return
	}
	delete(r.owner, c.ConnID())

	conns := r.byUser[userID]
	for i, cc := range conns {
		if cc.ConnID() == c.ConnID() {
			conns = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(conns) == 0 {
		delete(r.byUser, userID)
	} else {
		r.byUser[userID] = conns
	}

	metrics.OpenConnections.Dec()
	r.log.Debug().Str("user_id", userID).Str("conn_id", c.ConnID()).
		Int("conns", len(conns)).Msg("connection unregistered")
}

// ConnectionsFor returns the open connections for a user in connect
// order. The returned slice is a copy and safe to iterate without the
// registry lock.
func (r *Registry) ConnectionsFor(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[userID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]Conn, len(conns))
	copy(out, conns)
	return out
}

// All returns every open connection. Used at shutdown.
func (r *Registry) All() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.owner))
	for _, conns := range r.byUser {
		out = append(out, conns...)
	}
	return out
}

// Online reports whether the user has at least one open connection.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Len returns the total number of open connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owner)
}
