package realtime

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamcart/streamcart/internal/models"
	"github.com/streamcart/streamcart/internal/store"
)

// ChatBuffer is the replay buffer for in-stream chat. Satisfied by
// store.RedisStore; nil disables replay.
type ChatBuffer interface {
	AddStreamChat(ctx context.Context, streamID string, line *models.StreamChat) error
	RecentStreamChat(ctx context.Context, streamID string) ([]models.StreamChat, error)
	DropStreamChat(ctx context.Context, streamID string) error
}

// Lifecycle authorizes stream start/end against the durable stream
// record, owns the corresponding room's existence, and handles the
// room-wide event classes (in-stream chat, hearts, product showcase).
type Lifecycle struct {
	db    store.DataStore
	rooms *RoomManager
	buf   ChatBuffer
	log   zerolog.Logger
}

func NewLifecycle(db store.DataStore, rooms *RoomManager, buf ChatBuffer, log zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		db:    db,
		rooms: rooms,
		buf:   buf,
		log:   log.With().Str("component", "lifecycle").Logger(),
	}
}

// Start transitions a scheduled stream to live, creates its room and
// joins the owner as the streamer-role member. Only the stream's
// owning streamer may start it.
func (l *Lifecycle) Start(ctx context.Context, c Conn, streamID string) error {
	st, err := l.db.GetStream(ctx, streamID)
	if err != nil {
		return internalError("failed to load stream", err)
	}
	if st == nil {
		return notFoundError("stream not found")
	}
	if st.StreamerID != c.User().ID {
		return authorizationError("only the stream owner can start it")
	}
	if st.Status != models.StreamScheduled {
		return stateError("stream is not scheduled")
	}

	if err := l.db.SetStreamStatus(ctx, streamID, models.StreamLive); err != nil {
		return internalError("failed to update stream status", err)
	}

	l.rooms.EnsureRoom(streamID)
	if err := l.rooms.Join(streamID, c, RoleStreamerMember); err != nil {
		return err
	}
	l.rooms.Broadcast(streamID, StreamStartedEvent{StreamID: streamID})

	l.log.Info().Str("stream_id", streamID).Str("streamer_id", c.User().ID).Msg("stream started")
	return nil
}

// End closes a live stream: members are told the stream ended, the
// durable record is soft-ended (status transition, the record is
// retained for history), the replay buffer is discarded and the room
// removed, which drops all negotiation bookkeeping with it.
func (l *Lifecycle) End(ctx context.Context, c Conn, streamID string) error {
	st, err := l.db.GetStream(ctx, streamID)
	if err != nil {
		return internalError("failed to load stream", err)
	}
	if st == nil {
		return notFoundError("stream not found")
	}
	if st.StreamerID != c.User().ID {
		return authorizationError("only the stream owner can end it")
	}
	if st.Status != models.StreamLive {
		return stateError("stream is not live")
	}

	l.rooms.Broadcast(streamID, StreamEndedEvent{
		StreamID: streamID,
		Message:  "the stream has ended",
	})

	if err := l.db.SetStreamStatus(ctx, streamID, models.StreamEnded); err != nil {
		return internalError("failed to update stream status", err)
	}

	if l.buf != nil {
		if err := l.buf.DropStreamChat(ctx, streamID); err != nil {
			l.log.Warn().Err(err).Str("stream_id", streamID).Msg("failed to drop replay buffer")
		}
	}
	l.rooms.Remove(streamID)

	l.log.Info().Str("stream_id", streamID).Msg("stream ended")
	return nil
}

// JoinViewer adds the connection's user to a live stream's room as a
// viewer. Returns the join acknowledgement for the new viewer plus
// the recent chat lines to replay to them.
func (l *Lifecycle) JoinViewer(ctx context.Context, c Conn, streamID string) (*StreamJoinedEvent, []models.StreamChat, error) {
	st, err := l.db.GetStream(ctx, streamID)
	if err != nil {
		return nil, nil, internalError("failed to load stream", err)
	}
	if st == nil {
		return nil, nil, notFoundError("stream not found")
	}
	if st.Status != models.StreamLive {
		return nil, nil, stateError("stream is not live")
	}

	if err := l.rooms.Join(streamID, c, RoleViewerMember); err != nil {
		return nil, nil, err
	}

	viewer := c.User()
	l.rooms.Broadcast(streamID, ViewerJoinedEvent{
		StreamID:   streamID,
		ViewerID:   viewer.ID,
		ViewerName: models.DisplayNameFor(viewer),
	}, viewer.ID)

	count := l.rooms.ViewerCount(streamID)
	l.rooms.Broadcast(streamID, ViewerCountEvent{StreamID: streamID, Count: count})

	streamerName := ""
	if streamer, ok := l.rooms.Streamer(streamID); ok {
		streamerName = models.DisplayNameFor(streamer)
	} else if u, err := l.db.GetUser(ctx, st.StreamerID); err == nil && u != nil {
		streamerName = models.DisplayNameFor(u)
	}

	var replay []models.StreamChat
	if l.buf != nil {
		replay, err = l.buf.RecentStreamChat(ctx, streamID)
		if err != nil {
			l.log.Warn().Err(err).Str("stream_id", streamID).Msg("replay buffer read failed")
			replay = nil
		}
	}

	return &StreamJoinedEvent{
		StreamID:     streamID,
		StreamerID:   st.StreamerID,
		StreamerName: streamerName,
		ViewerCount:  count,
	}, replay, nil
}

// Chat broadcasts an in-stream chat line to the room and records it in
// the replay buffer.
func (l *Lifecycle) Chat(ctx context.Context, c Conn, streamID, message string) error {
	if message == "" {
		return validationError("message is required")
	}
	if _, ok := l.rooms.MemberRole(streamID, c.User().ID); !ok {
		return notFoundError("not in this stream")
	}

	ev := StreamChatEvent{
		StreamID:  streamID,
		UserID:    c.User().ID,
		UserName:  models.DisplayNameFor(c.User()),
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
	l.rooms.Broadcast(streamID, ev)

	if l.buf != nil {
		line := &models.StreamChat{
			UserID:    ev.UserID,
			UserName:  ev.UserName,
			Message:   ev.Message,
			Timestamp: ev.Timestamp,
		}
		if err := l.buf.AddStreamChat(ctx, streamID, line); err != nil {
			l.log.Warn().Err(err).Str("stream_id", streamID).Msg("replay buffer write failed")
		}
	}
	return nil
}

// Heart broadcasts a heart reaction to the room.
func (l *Lifecycle) Heart(c Conn, streamID string) error {
	if _, ok := l.rooms.MemberRole(streamID, c.User().ID); !ok {
		return notFoundError("not in this stream")
	}
	l.rooms.Broadcast(streamID, HeartEvent{
		StreamID: streamID,
		UserID:   c.User().ID,
		UserName: models.DisplayNameFor(c.User()),
	})
	return nil
}

// Showcase broadcasts a product showcase to the room. Streamer only.
func (l *Lifecycle) Showcase(c Conn, cmd ShowcaseCmd) error {
	role, ok := l.rooms.MemberRole(cmd.StreamID, c.User().ID)
	if !ok {
		return notFoundError("not in this stream")
	}
	if role != RoleStreamerMember {
		return authorizationError("only the streamer can showcase products")
	}
	if cmd.ProductID == "" {
		return validationError("productId is required")
	}
	l.rooms.Broadcast(cmd.StreamID, ShowcaseEvent{
		StreamID:  cmd.StreamID,
		ProductID: cmd.ProductID,
		Title:     cmd.Title,
		Price:     cmd.Price,
	})
	return nil
}
