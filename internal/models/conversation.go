package models

import "time"

// Conversation is a durable one-to-one chat thread.
type Conversation struct {
	ID        string    `json:"id"`
	Members   []string  `json:"members"` // user IDs, size >= 2
	CreatedAt time.Time `json:"created_at"`
}

// HasMember reports whether userID belongs to the conversation.
func (c *Conversation) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// OtherMember returns the peer of userID in a direct (2-member)
// conversation, or "" if the conversation is not direct.
func (c *Conversation) OtherMember(userID string) string {
	if len(c.Members) != 2 {
		return ""
	}
	if c.Members[0] == userID {
		return c.Members[1]
	}
	return c.Members[0]
}
