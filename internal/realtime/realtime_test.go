package realtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamcart/streamcart/internal/models"
)

// fakeConn implements Conn and records every pushed event.
type fakeConn struct {
	id   string
	user *models.User

	mu     sync.Mutex
	events []Outbound
}

func newFakeConn(id string, user *models.User) *fakeConn {
	return &fakeConn{id: id, user: user}
}

func (c *fakeConn) ConnID() string     { return c.id }
func (c *fakeConn) User() *models.User { return c.user }

func (c *fakeConn) Push(ev Outbound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *fakeConn) pushed() []Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Outbound, len(c.events))
	copy(out, c.events)
	return out
}

func (c *fakeConn) pushedTypes() []string {
	var types []string
	for _, ev := range c.pushed() {
		types = append(types, ev.EventType())
	}
	return types
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

func buyer(id, name string) *models.User {
	return &models.User{ID: id, Name: name, Role: models.RoleBuyer}
}

func streamer(id, name, shop string) *models.User {
	return &models.User{ID: id, Name: name, Role: models.RoleStreamer, ShopName: shop}
}

// fakeStore is a minimal in-memory DataStore.
type fakeStore struct {
	mu            sync.Mutex
	users         map[string]*models.User
	conversations map[string]*models.Conversation
	messages      map[string]*models.Message
	streams       map[string]*models.Stream
	seq           int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         make(map[string]*models.User),
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string]*models.Message),
		streams:       make(map[string]*models.Stream),
	}
}

func (s *fakeStore) Close()                     {}
func (s *fakeStore) Ping(context.Context) error { return nil }

func (s *fakeStore) UpsertUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *fakeStore) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id], nil
}

func (s *fakeStore) addConversation(id string, members ...string) *models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &models.Conversation{ID: id, Members: members, CreatedAt: time.Now()}
	s.conversations[id] = c
	return c
}

func (s *fakeStore) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations[id], nil
}

func (s *fakeStore) FindOrCreateConversation(_ context.Context, a, b string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if len(c.Members) == 2 && c.HasMember(a) && c.HasMember(b) {
			return c, nil
		}
	}
	s.seq++
	c := &models.Conversation{
		ID:        fmt.Sprintf("conv-%d", s.seq),
		Members:   []string{a, b},
		CreatedAt: time.Now(),
	}
	s.conversations[c.ID] = c
	return c, nil
}

func (s *fakeStore) AppendMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("msg-%04d", s.seq)
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	cp := *msg
	s.messages[msg.ID] = &cp
	return nil
}

func (s *fakeStore) ConversationMessages(_ context.Context, conversationID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	sortMessages(out)
	return out, nil
}

func (s *fakeStore) UndeliveredMessages(_ context.Context, recipientID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.RecipientID == recipientID && !m.Delivered {
			out = append(out, *m)
		}
	}
	sortMessages(out)
	return out, nil
}

func (s *fakeStore) MarkDelivered(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if m, ok := s.messages[id]; ok {
			m.Delivered = true
		}
	}
	return nil
}

func (s *fakeStore) CreateStream(_ context.Context, st *models.Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.Status == "" {
		st.Status = models.StreamScheduled
	}
	cp := *st
	s.streams[st.ID] = &cp
	return nil
}

func (s *fakeStore) GetStream(_ context.Context, id string) (*models.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[id]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (s *fakeStore) SetStreamStatus(_ context.Context, id string, status models.StreamStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[id]
	if !ok {
		return fmt.Errorf("stream %s not found", id)
	}
	st.Status = status
	now := time.Now()
	switch status {
	case models.StreamLive:
		st.StartedAt = &now
	case models.StreamEnded:
		st.EndedAt = &now
	}
	return nil
}

func (s *fakeStore) streamStatus(id string) models.StreamStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.streams[id]; ok {
		return st.Status
	}
	return ""
}

func sortMessages(msgs []models.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp != msgs[j].Timestamp {
			return msgs[i].Timestamp < msgs[j].Timestamp
		}
		return msgs[i].ID < msgs[j].ID
	})
}

// fakeBuffer is an in-memory ChatBuffer.
type fakeBuffer struct {
	mu    sync.Mutex
	lines map[string][]models.StreamChat
}

func newFakeBuffer() *fakeBuffer {
	return &fakeBuffer{lines: make(map[string][]models.StreamChat)}
}

func (b *fakeBuffer) AddStreamChat(_ context.Context, streamID string, line *models.StreamChat) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines[streamID] = append(b.lines[streamID], *line)
	return nil
}

func (b *fakeBuffer) RecentStreamChat(_ context.Context, streamID string) ([]models.StreamChat, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.StreamChat(nil), b.lines[streamID]...), nil
}

func (b *fakeBuffer) DropStreamChat(_ context.Context, streamID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.lines, streamID)
	return nil
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
