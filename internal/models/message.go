package models

// Message is a durable chat message. Messages are immutable except for
// the Delivered flag, which flips to true once the message has been
// pushed to at least one open connection of the recipient.
type Message struct {
	ID             string `json:"id"` // ULID, sortable by creation time
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	RecipientID    string `json:"recipient_id"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"ts"` // Unix ms
	Delivered      bool   `json:"delivered"`
}

// StreamChat is a transient in-stream chat line kept in the replay
// buffer so late joiners see recent room chat.
type StreamChat struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"` // Unix ms
}
