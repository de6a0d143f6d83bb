package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/streamcart/streamcart/internal/models"
)

// DataStore is the durable storage surface the realtime core depends
// on. Both PostgresStore and SQLiteStore implement this interface;
// production runs Postgres, development falls back to SQLite.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User directory (read side of the account system; the realtime
	// layer upserts the identity it verified at handshake so display
	// data can be resolved for offline participants)
	UpsertUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)

	// Conversations
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	FindOrCreateConversation(ctx context.Context, userA, userB string) (*models.Conversation, error)

	// Messages
	AppendMessage(ctx context.Context, msg *models.Message) error
	ConversationMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	UndeliveredMessages(ctx context.Context, recipientID string) ([]models.Message, error)
	MarkDelivered(ctx context.Context, ids []string) error

	// Streams
	CreateStream(ctx context.Context, s *models.Stream) error
	GetStream(ctx context.Context, id string) (*models.Stream, error)
	SetStreamStatus(ctx context.Context, id string, status models.StreamStatus) error
}

// directConversationID derives the conversation ID for a user pair.
// The pair is sorted first, so the ID is order-independent, and the
// derivation is deterministic, so two racing creators insert the same
// row instead of two duplicate conversations.
func directConversationID(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("conversation:"+userA+"\x00"+userB)).String()
}
