package realtime

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/streamcart/streamcart/internal/metrics"
	"github.com/streamcart/streamcart/internal/models"
)

// RoomRole is a member's role inside one stream room.
type RoomRole string

const (
	RoleViewerMember   RoomRole = "viewer"
	RoleStreamerMember RoomRole = "streamer"
)

// NegotiationState tracks that a peer link was attempted between two
// members. It exists only so disconnect cleanup knows whom to notify;
// it does not validate the signaling protocol.
type NegotiationState string

const (
	NegotiationOffering  NegotiationState = "offering"
	NegotiationConnected NegotiationState = "connected"
)

// LeaveReason distinguishes an explicit leave from an abrupt
// disconnect. The two differ only in the event name peers receive.
type LeaveReason int

const (
	LeaveExplicit LeaveReason = iota
	LeaveDisconnected
)

type member struct {
	conn      Conn
	user      *models.User
	role      RoomRole
	peerLinks map[string]NegotiationState // target user ID -> state
}

// Room is the in-memory membership of one live stream. Rooms are
// created by the lifecycle coordinator when a stream goes live and
// deleted when the stream ends or the last member leaves.
type Room struct {
	mu       sync.RWMutex
	streamID string
	members  map[string]*member // user ID -> member
}

// RoomManager owns the table of live rooms. The table has its own
// lock; every room serializes its mutations behind its own lock so a
// slow operation on one room never stalls another. Lock order: the
// table lock may be taken while a room lock is held, never the
// reverse.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	log   zerolog.Logger
}

func NewRoomManager(log zerolog.Logger) *RoomManager {
	return &RoomManager{
		rooms: make(map[string]*Room),
		log:   log.With().Str("component", "rooms").Logger(),
	}
}

// EnsureRoom creates an empty room for the stream if none exists.
func (m *RoomManager) EnsureRoom(streamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[streamID]; ok {
		return
	}
	m.rooms[streamID] = &Room{streamID: streamID, members: make(map[string]*member)}
	metrics.ActiveRooms.Inc()
	m.log.Info().Str("stream_id", streamID).Msg("room created")
}

func (m *RoomManager) room(streamID string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[streamID]
}

// Join adds (or replaces, supporting reconnects) the member entry for
// the connection's user. Joining a stream with no live room fails. The
// room's table entry is re-checked after taking the room lock, so a
// join racing the last member's leave can never land in a room that
// was already unlinked from the table.
func (m *RoomManager) Join(streamID string, c Conn, role RoomRole) error {
	var prev *member
	var rejoin bool
	for {
		r := m.room(streamID)
		if r == nil {
			return notFoundError("stream is not live")
		}

		r.mu.Lock()
		if m.room(streamID) != r {
			// Unlinked between the lookup and the lock.
			r.mu.Unlock()
			continue
		}
		prev, rejoin = r.members[c.User().ID]
		r.members[c.User().ID] = &member{
			conn:      c,
			user:      c.User(),
			role:      role,
			peerLinks: make(map[string]NegotiationState),
		}
		r.mu.Unlock()
		break
	}

	switch {
	case role == RoleViewerMember && !(rejoin && prev.role == RoleViewerMember):
		metrics.RoomViewers.Inc()
	case role != RoleViewerMember && rejoin && prev.role == RoleViewerMember:
		metrics.RoomViewers.Dec()
	}
	m.log.Info().Str("stream_id", streamID).Str("user_id", c.User().ID).
		Str("role", string(role)).Bool("rejoin", rejoin).Msg("member joined")
	return nil
}

// Leave removes the user's member entry. Every peer with an attempted
// link to or from the departing member is notified point-to-point,
// then the remaining members get a room-wide user-left. An empty room
// is deleted. Leaving a room one is not in is a no-op.
func (m *RoomManager) Leave(streamID, userID string, reason LeaveReason) {
	m.leave(streamID, userID, "", reason)
}

// LeaveConn is Leave guarded by connection identity: it only removes
// the member if it is still held by the given connection. Disconnect
// cleanup uses this so a stale connection's teardown cannot evict the
// replacement entry of a user who already reconnected.
func (m *RoomManager) LeaveConn(streamID, userID, connID string, reason LeaveReason) {
	m.leave(streamID, userID, connID, reason)
}

func (m *RoomManager) leave(streamID, userID, connID string, reason LeaveReason) {
	r := m.room(streamID)
	if r == nil {
		return
	}

	r.mu.Lock()
	mem, ok := r.members[userID]
	if !ok || (connID != "" && mem.conn.ConnID() != connID) {
		r.mu.Unlock()
		return
	}
	delete(r.members, userID)

	// Notify every peer with a negotiation link touching the departed
	// member, in either direction: links it initiated and links others
	// initiated toward it. The reverse bookkeeping is dropped with it.
	abrupt := reason == LeaveDisconnected
	left := PeerLeftEvent{
		abrupt:   abrupt,
		StreamID: streamID,
		UserID:   userID,
		UserName: models.DisplayNameFor(mem.user),
	}
	notified := make(map[string]bool, len(mem.peerLinks))
	for targetID := range mem.peerLinks {
		if peer, ok := r.members[targetID]; ok {
			peer.conn.Push(left)
			notified[targetID] = true
		}
	}
	for peerID, peer := range r.members {
		if _, linked := peer.peerLinks[userID]; !linked {
			continue
		}
		delete(peer.peerLinks, userID)
		if !notified[peerID] {
			peer.conn.Push(left)
		}
	}

	remaining := make([]Conn, 0, len(r.members))
	for _, peer := range r.members {
		remaining = append(remaining, peer.conn)
	}

	// Unlink an emptied room from the table before releasing the room
	// lock. Join re-checks the table under that same lock, so there is
	// no window where a join can succeed into a room being deleted.
	removed := false
	if len(r.members) == 0 {
		m.mu.Lock()
		if m.rooms[streamID] == r {
			delete(m.rooms, streamID)
			removed = true
		}
		m.mu.Unlock()
	}
	r.mu.Unlock()

	for _, c := range remaining {
		c.Push(UserLeftEvent{
			StreamID: streamID,
			UserID:   userID,
			UserName: models.DisplayNameFor(mem.user),
		})
	}

	if mem.role == RoleViewerMember {
		metrics.RoomViewers.Dec()
	}
	if removed {
		metrics.ActiveRooms.Dec()
		m.log.Info().Str("stream_id", streamID).Msg("room removed")
	}
	m.log.Info().Str("stream_id", streamID).Str("user_id", userID).
		Bool("abrupt", abrupt).Msg("member left")
}

// Remove deletes the room outright. Members are not notified; the
// lifecycle coordinator broadcasts stream-ended before calling this.
func (m *RoomManager) Remove(streamID string) {
	m.mu.Lock()
	r, ok := m.rooms[streamID]
	if ok {
		delete(m.rooms, streamID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	r.mu.Lock()
	viewers := 0
	for _, mem := range r.members {
		if mem.role == RoleViewerMember {
			viewers++
		}
	}
	r.members = make(map[string]*member)
	r.mu.Unlock()

	metrics.ActiveRooms.Dec()
	metrics.RoomViewers.Sub(float64(viewers))
	m.log.Info().Str("stream_id", streamID).Msg("room removed")
}

// Broadcast pushes an event to every current member. Broadcasting to
// an absent room is a no-op, not an error.
func (m *RoomManager) Broadcast(streamID string, ev Outbound, except ...string) {
	r := m.room(streamID)
	if r == nil {
		return
	}

	r.mu.RLock()
	targets := make([]Conn, 0, len(r.members))
	for id, mem := range r.members {
		if contains(except, id) {
			continue
		}
		targets = append(targets, mem.conn)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		c.Push(ev)
	}
	metrics.RoomEvents.WithLabelValues(ev.EventType()).Inc()
}

// ViewerCount returns how many members hold the viewer role; 0 for an
// absent room.
func (m *RoomManager) ViewerCount(streamID string) int {
	r := m.room(streamID)
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, mem := range r.members {
		if mem.role == RoleViewerMember {
			n++
		}
	}
	return n
}

// MemberConn returns the connection of a current member.
func (m *RoomManager) MemberConn(streamID, userID string) (Conn, bool) {
	r := m.room(streamID)
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	mem, ok := r.members[userID]
	if !ok {
		return nil, false
	}
	return mem.conn, true
}

// MemberRole returns the role a user currently holds in the room.
func (m *RoomManager) MemberRole(streamID, userID string) (RoomRole, bool) {
	r := m.room(streamID)
	if r == nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	mem, ok := r.members[userID]
	if !ok {
		return "", false
	}
	return mem.role, true
}

// Streamer returns the identity of the room's streamer-role member.
func (m *RoomManager) Streamer(streamID string) (*models.User, bool) {
	r := m.room(streamID)
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, mem := range r.members {
		if mem.role == RoleStreamerMember {
			return mem.user, true
		}
	}
	return nil, false
}

// setPeerLink records negotiation bookkeeping on the sender's entry.
// Unknown room, sender or target leaves state untouched.
func (m *RoomManager) setPeerLink(streamID, senderID, targetID string, state NegotiationState) {
	r := m.room(streamID)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	mem, ok := r.members[senderID]
	if !ok {
		return
	}
	if _, ok := r.members[targetID]; !ok {
		return
	}
	mem.peerLinks[targetID] = state
}

// RoomsOf lists the streams the user is currently a member of. Used by
// disconnect cleanup.
func (m *RoomManager) RoomsOf(userID string) []string {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	var out []string
	for _, r := range rooms {
		r.mu.RLock()
		if _, ok := r.members[userID]; ok {
			out = append(out, r.streamID)
		}
		r.mu.RUnlock()
	}
	return out
}

// Counts returns the number of live rooms and total viewers, for the
// stats endpoint.
func (m *RoomManager) Counts() (rooms, viewers int) {
	m.mu.RLock()
	all := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		all = append(all, r)
	}
	m.mu.RUnlock()

	for _, r := range all {
		r.mu.RLock()
		for _, mem := range r.members {
			if mem.role == RoleViewerMember {
				viewers++
			}
		}
		r.mu.RUnlock()
	}
	return len(all), viewers
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
