package realtime

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamcart/streamcart/internal/metrics"
	"github.com/streamcart/streamcart/internal/models"
	"github.com/streamcart/streamcart/internal/store"
)

const (
	sendRateLimit  = 30
	sendRateWindow = time.Minute
)

// SendLimiter caps how fast one user may send chat messages. Satisfied
// by store.RedisStore; nil disables limiting.
type SendLimiter interface {
	AllowSend(ctx context.Context, userID string, limit int, window time.Duration) (bool, error)
}

// ChatRelay delivers one-to-one messages in realtime through the
// connection registry, queuing durably for recipients that are
// offline. Delivery is at-least-once: every open connection of the
// recipient gets its own push, and a queued message is flushed to the
// first connection that registers.
type ChatRelay struct {
	reg     *Registry
	db      store.DataStore
	limiter SendLimiter
	log     zerolog.Logger
}

func NewChatRelay(reg *Registry, db store.DataStore, limiter SendLimiter, log zerolog.Logger) *ChatRelay {
	return &ChatRelay{
		reg:     reg,
		db:      db,
		limiter: limiter,
		log:     log.With().Str("component", "chat").Logger(),
	}
}

// Send validates, persists and delivers one message. The message is
// stored with Delivered true iff the recipient has at least one open
// connection at the instant of send. The returned message is for the
// sender-side acknowledgement only; recipient-side delivery has
// already been fanned out when Send returns.
func (c *ChatRelay) Send(ctx context.Context, sender *models.User, cmd ChatSendCmd) (*models.Message, error) {
	if cmd.Content == "" {
		return nil, validationError("message content is required")
	}
	if cmd.RecipientID == "" || cmd.RecipientID == sender.ID {
		return nil, validationError("invalid recipient")
	}

	if c.limiter != nil {
		ok, err := c.limiter.AllowSend(ctx, sender.ID, sendRateLimit, sendRateWindow)
		if err != nil {
			// Rate limiting is best-effort; a broken limiter must not
			// block chat.
			c.log.Warn().Err(err).Msg("rate limiter unavailable")
		} else if !ok {
			return nil, validationError("sending too fast, slow down")
		}
	}

	conv, err := c.resolveConversation(ctx, sender.ID, cmd)
	if err != nil {
		return nil, err
	}
	if !conv.HasMember(sender.ID) {
		return nil, validationError("sender is not a conversation member")
	}
	if !conv.HasMember(cmd.RecipientID) {
		return nil, validationError("recipient is not a conversation member")
	}

	recipientConns := c.reg.ConnectionsFor(cmd.RecipientID)

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       sender.ID,
		RecipientID:    cmd.RecipientID,
		Content:        cmd.Content,
		Timestamp:      time.Now().UnixMilli(),
		Delivered:      len(recipientConns) > 0,
	}
	if err := c.db.AppendMessage(ctx, msg); err != nil {
		return nil, internalError("failed to store message", err)
	}

	ev := chatMessageEvent(msg, sender)
	for _, conn := range recipientConns {
		conn.Push(ev)
	}

	delivery := "queued"
	if msg.Delivered {
		delivery = "live"
	}
	metrics.ChatMessagesSent.WithLabelValues(delivery).Inc()
	c.log.Debug().Str("message_id", msg.ID).Str("recipient_id", cmd.RecipientID).
		Bool("delivered", msg.Delivered).Msg("message sent")

	return msg, nil
}

func (c *ChatRelay) resolveConversation(ctx context.Context, senderID string, cmd ChatSendCmd) (*models.Conversation, error) {
	if cmd.ConversationID == "" {
		conv, err := c.db.FindOrCreateConversation(ctx, senderID, cmd.RecipientID)
		if err != nil {
			return nil, internalError("failed to resolve conversation", err)
		}
		return conv, nil
	}

	conv, err := c.db.GetConversation(ctx, cmd.ConversationID)
	if err != nil {
		return nil, internalError("failed to load conversation", err)
	}
	if conv == nil {
		return nil, validationError("unknown conversation")
	}
	return conv, nil
}

// FlushUndelivered pushes every queued message for the connection's
// user to that connection in timestamp order, then marks them
// delivered. Called once when a connection registers; messages sent
// while the user was fully offline are never lost.
func (c *ChatRelay) FlushUndelivered(ctx context.Context, conn Conn) error {
	userID := conn.User().ID
	msgs, err := c.db.UndeliveredMessages(ctx, userID)
	if err != nil {
		return internalError("failed to load queued messages", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	senders := make(map[string]*models.User)
	ids := make([]string, 0, len(msgs))
	for i := range msgs {
		sender, err := c.senderFor(ctx, senders, msgs[i].SenderID)
		if err != nil {
			c.log.Warn().Err(err).Str("sender_id", msgs[i].SenderID).
				Msg("sender lookup failed during flush")
		}
		conn.Push(chatMessageEvent(&msgs[i], sender))
		ids = append(ids, msgs[i].ID)
	}

	if err := c.db.MarkDelivered(ctx, ids); err != nil {
		return internalError("failed to mark messages delivered", err)
	}

	metrics.OfflineFlushes.Add(float64(len(ids)))
	c.log.Info().Str("user_id", userID).Int("count", len(ids)).Msg("queued messages flushed")
	return nil
}

// History returns a conversation's messages in timestamp order plus
// the resolved peer identity for direct conversations.
func (c *ChatRelay) History(ctx context.Context, requester *models.User, conversationID string) (*HistoryEvent, error) {
	conv, err := c.db.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, internalError("failed to load conversation", err)
	}
	if conv == nil {
		return nil, notFoundError("conversation not found")
	}
	if !conv.HasMember(requester.ID) {
		return nil, authorizationError("not a conversation member")
	}

	msgs, err := c.db.ConversationMessages(ctx, conversationID)
	if err != nil {
		return nil, internalError("failed to load messages", err)
	}

	senders := make(map[string]*models.User)
	out := &HistoryEvent{
		ConversationID: conversationID,
		Messages:       make([]ChatMessageEvent, 0, len(msgs)),
	}
	for i := range msgs {
		sender, err := c.senderFor(ctx, senders, msgs[i].SenderID)
		if err != nil {
			c.log.Warn().Err(err).Str("sender_id", msgs[i].SenderID).
				Msg("sender lookup failed during history")
		}
		out.Messages = append(out.Messages, chatMessageEvent(&msgs[i], sender))
	}

	if otherID := conv.OtherMember(requester.ID); otherID != "" {
		out.RecipientID = otherID
		other, err := c.senderFor(ctx, senders, otherID)
		if err != nil {
			c.log.Warn().Err(err).Str("user_id", otherID).Msg("peer lookup failed")
		}
		if other != nil {
			out.RecipientName = models.DisplayNameFor(other)
			out.RecipientAvatar = other.Avatar
		}
	}

	return out, nil
}

func (c *ChatRelay) senderFor(ctx context.Context, cache map[string]*models.User, id string) (*models.User, error) {
	if u, ok := cache[id]; ok {
		return u, nil
	}
	u, err := c.db.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	cache[id] = u
	return u, nil
}

func chatMessageEvent(msg *models.Message, sender *models.User) ChatMessageEvent {
	ev := ChatMessageEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Time:           msg.Timestamp,
	}
	if sender != nil {
		ev.SenderName = models.DisplayNameFor(sender)
		ev.SenderAvatar = sender.Avatar
	}
	return ev
}
