package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/streamcart/streamcart/internal/metrics"
	"github.com/streamcart/streamcart/internal/models"
	"github.com/streamcart/streamcart/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 16 * 1024
	sendBufferSize = 64
)

// Hub bundles the realtime components one server process runs. It is
// constructed once at startup and passed to every session; there are
// no ambient singletons.
type Hub struct {
	Registry  *Registry
	Rooms     *RoomManager
	Chat      *ChatRelay
	Signal    *SignalRelay
	Lifecycle *Lifecycle
	DB        store.DataStore
	Log       zerolog.Logger
}

func NewHub(db store.DataStore, buf ChatBuffer, limiter SendLimiter, log zerolog.Logger) *Hub {
	reg := NewRegistry(log)
	rooms := NewRoomManager(log)
	return &Hub{
		Registry:  reg,
		Rooms:     rooms,
		Chat:      NewChatRelay(reg, db, limiter, log),
		Signal:    NewSignalRelay(rooms, log),
		Lifecycle: NewLifecycle(db, rooms, buf, log),
		DB:        db,
		Log:       log.With().Str("component", "hub").Logger(),
	}
}

// Shutdown closes every open session. The HTTP server does not track
// hijacked connections, so this runs after its own shutdown.
func (h *Hub) Shutdown() {
	for _, c := range h.Registry.All() {
		if closer, ok := c.(interface{ Close() }); ok {
			closer.Close()
		}
	}
	h.Log.Info().Msg("realtime sessions closed")
}

// Session owns one websocket connection for one verified user from
// handshake to close. It implements Conn; everything past the socket
// only sees that interface.
type Session struct {
	id   string
	user *models.User
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
	log  zerolog.Logger
}

// NewSession wraps an upgraded connection whose bearer credential has
// already been verified.
func NewSession(hub *Hub, ws *websocket.Conn, user *models.User) *Session {
	id := uuid.NewString()
	return &Session{
		id:   id,
		user: user,
		hub:  hub,
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
		log: hub.Log.With().Str("conn_id", id).
			Str("user_id", user.ID).Logger(),
	}
}

func (s *Session) ConnID() string     { return s.id }
func (s *Session) User() *models.User { return s.user }

// Push enqueues an event without blocking. A full buffer means the
// client is not draining; the event is dropped and counted.
func (s *Session) Push(ev Outbound) {
	data, err := EncodeOutbound(ev)
	if err != nil {
		s.log.Error().Err(err).Str("event", ev.EventType()).Msg("encode failed")
		return
	}
	select {
	case s.send <- data:
	case <-s.done:
	default:
		metrics.DroppedPushes.Inc()
		s.log.Warn().Str("event", ev.EventType()).Msg("send buffer full, event dropped")
	}
}

// Run registers the session, flushes queued chat, then reads frames
// until the connection closes. It blocks until teardown is complete.
func (s *Session) Run(ctx context.Context) {
	// Refresh the user directory so offline peers can resolve this
	// user's display data later. Best effort.
	if err := s.hub.DB.UpsertUser(ctx, s.user); err != nil {
		s.log.Warn().Err(err).Msg("user directory refresh failed")
	}

	s.hub.Registry.Register(s)
	defer s.teardown()

	go s.writePump()

	if err := s.hub.Chat.FlushUndelivered(ctx, s); err != nil {
		s.log.Error().Err(err).Msg("offline flush failed")
		s.Push(ErrorEvent{Message: "failed to deliver queued messages"})
	}

	s.readLoop(ctx)
}

func (s *Session) readLoop(ctx context.Context) {
	s.ws.SetReadLimit(maxFrameSize)
	_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("connection closed unexpectedly")
			}
			return
		}
		s.handleFrame(ctx, data)
	}
}

// handleFrame processes one inbound frame in isolation: any failure is
// translated to an error event for this connection only and never
// affects other connections or rooms.
func (s *Session) handleFrame(ctx context.Context, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			metrics.EventErrors.WithLabelValues(string(KindInternal)).Inc()
			s.log.Error().Interface("panic", r).Msg("panic handling event")
			s.Push(ErrorEvent{Message: "internal error"})
		}
	}()

	ev, err := DecodeInbound(data)
	if err != nil {
		s.pushError(err)
		return
	}
	if err := s.dispatch(ctx, ev); err != nil {
		s.pushError(err)
	}
}

func (s *Session) pushError(err error) {
	var rtErr *Error
	if e, ok := err.(*Error); ok {
		rtErr = e
	} else {
		rtErr = internalError("internal error", err)
	}

	metrics.EventErrors.WithLabelValues(string(rtErr.Kind)).Inc()
	if rtErr.Kind == KindInternal {
		s.log.Error().Err(err).Msg("event handling failed")
	} else {
		s.log.Debug().Err(err).Msg("event rejected")
	}
	s.Push(ErrorEvent{Message: rtErr.Public()})

	if rtErr.Kind == KindAuthentication {
		s.Close()
	}
}

func (s *Session) dispatch(ctx context.Context, ev Inbound) error {
	switch cmd := ev.(type) {
	case RegisterCmd:
		if cmd.UserID != "" && cmd.UserID != s.user.ID {
			return validationError("cannot register as another user")
		}
		s.hub.Registry.Register(s) // idempotent
		return s.hub.Chat.FlushUndelivered(ctx, s)

	case ChatSendCmd:
		if cmd.SenderID != "" && cmd.SenderID != s.user.ID {
			return validationError("cannot send as another user")
		}
		msg, err := s.hub.Chat.Send(ctx, s.user, cmd)
		if err != nil {
			return err
		}
		s.Push(MessageSentEvent{
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			Delivered:      msg.Delivered,
			Time:           msg.Timestamp,
		})
		return nil

	case GetHistoryCmd:
		history, err := s.hub.Chat.History(ctx, s.user, cmd.ConversationID)
		if err != nil {
			return err
		}
		s.Push(*history)
		return nil

	case JoinStreamCmd:
		joined, replay, err := s.hub.Lifecycle.JoinViewer(ctx, s, cmd.StreamID)
		if err != nil {
			return err
		}
		s.Push(*joined)
		for i := range replay {
			s.Push(StreamChatEvent{
				StreamID:  cmd.StreamID,
				UserID:    replay[i].UserID,
				UserName:  replay[i].UserName,
				Message:   replay[i].Message,
				Timestamp: replay[i].Timestamp,
			})
		}
		return nil

	case StartStreamingCmd:
		return s.hub.Lifecycle.Start(ctx, s, cmd.StreamID)

	case EndStreamCmd:
		return s.hub.Lifecycle.End(ctx, s, cmd.StreamID)

	case LeaveStreamCmd:
		s.hub.Rooms.Leave(cmd.StreamID, s.user.ID, LeaveExplicit)
		return nil

	case OfferCmd:
		s.hub.Signal.Relay(cmd.StreamID, EvOffer, s.user.ID, cmd.TargetID, cmd.Offer)
		return nil

	case AnswerCmd:
		s.hub.Signal.Relay(cmd.StreamID, EvAnswer, s.user.ID, cmd.TargetID, cmd.Answer)
		return nil

	case ICECandidateCmd:
		s.hub.Signal.Relay(cmd.StreamID, EvICECandidate, s.user.ID, cmd.TargetID, cmd.Candidate)
		return nil

	case StreamChatCmd:
		return s.hub.Lifecycle.Chat(ctx, s, cmd.StreamID, cmd.Message)

	case HeartCmd:
		return s.hub.Lifecycle.Heart(s, cmd.StreamID)

	case ShowcaseCmd:
		return s.hub.Lifecycle.Showcase(s, cmd)

	default:
		return validationError("unsupported event")
	}
}

// teardown runs the full disconnect cleanup: leave every room the
// user is still in through this connection, then unregister. A failure
// in one room's cleanup is logged and never aborts the rest.
func (s *Session) teardown() {
	for _, streamID := range s.hub.Rooms.RoomsOf(s.user.ID) {
		s.leaveRoom(streamID)
	}
	s.hub.Registry.Unregister(s)
	s.Close()
	s.log.Info().Msg("session closed")
}

func (s *Session) leaveRoom(streamID string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("stream_id", streamID).
				Msg("room cleanup failed")
		}
	}()
	s.hub.Rooms.LeaveConn(streamID, s.user.ID, s.id, LeaveDisconnected)
}

// Close shuts the session down. Safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.ws.Close()
	})
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case data := <-s.send:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}
