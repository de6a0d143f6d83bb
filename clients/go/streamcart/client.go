// Package streamcart provides a client for the streamcart realtime
// protocol: direct chat, livestream rooms and peer signaling relay.
package streamcart

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is a decoded server event. Fields holds everything except the
// type discriminator.
type Event struct {
	Type   string
	Fields map[string]json.RawMessage
}

// Field renders a field as its JSON string value, or the raw JSON for
// non-strings.
func (e Event) Field(field string) string {
	raw, ok := e.Fields[field]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Client is a streamcart realtime client. Events arriving from the
// server are delivered on Events until the connection closes.
type Client struct {
	Events <-chan Event

	ws     *websocket.Conn
	events chan Event
	mu     sync.Mutex // serializes writes
	once   sync.Once
}

// Dial connects and authenticates against a realtime server. baseURL
// is the http(s) endpoint; the path and scheme are derived from it.
func Dial(baseURL, token string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.Dial(u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}

	c := &Client{ws: ws, events: make(chan Event, 64)}
	c.Events = c.events
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			continue
		}
		ev := Event{Fields: fields}
		if raw, ok := fields["type"]; ok {
			_ = json.Unmarshal(raw, &ev.Type)
			delete(fields, "type")
		}
		select {
		case c.events <- ev:
		default:
			// Slow consumer; drop rather than stall the socket.
		}
	}
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		_ = c.ws.Close()
		close(c.events)
	})
}

func (c *Client) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// SendChat sends a direct message. conversationID may be empty; the
// server resolves or creates the conversation with the recipient.
func (c *Client) SendChat(conversationID, recipientID, content string) error {
	return c.send(map[string]string{
		"type":           "chatMessage",
		"conversationId": conversationID,
		"recipientId":    recipientID,
		"content":        content,
	})
}

// GetHistory requests a conversation's message history.
func (c *Client) GetHistory(conversationID string) error {
	return c.send(map[string]string{
		"type":           "getHistory",
		"conversationId": conversationID,
	})
}

// StartStreaming starts a scheduled stream owned by this user.
func (c *Client) StartStreaming(streamID string) error {
	return c.send(map[string]string{"type": "start-streaming", "streamId": streamID})
}

// EndStream ends a live stream owned by this user.
func (c *Client) EndStream(streamID string) error {
	return c.send(map[string]string{"type": "end-stream", "streamId": streamID})
}

// JoinStream joins a live stream as a viewer.
func (c *Client) JoinStream(streamID string) error {
	return c.send(map[string]string{"type": "join-stream", "streamId": streamID})
}

// LeaveStream leaves a stream's room.
func (c *Client) LeaveStream(streamID string) error {
	return c.send(map[string]string{"type": "leave-stream", "streamId": streamID})
}

// StreamChat sends an in-stream chat line.
func (c *Client) StreamChat(streamID, message string) error {
	return c.send(map[string]string{
		"type":     "chat",
		"streamId": streamID,
		"message":  message,
	})
}

// Showcase presents a product to the room. Streamer only.
func (c *Client) Showcase(streamID, productID, title, price string) error {
	return c.send(map[string]string{
		"type":      "showcase",
		"streamId":  streamID,
		"productId": productID,
		"title":     title,
		"price":     price,
	})
}

// Heart sends a heart reaction.
func (c *Client) Heart(streamID string) error {
	return c.send(map[string]string{"type": "heart", "streamId": streamID})
}

// Offer relays a peer connection offer to another room member.
func (c *Client) Offer(streamID, targetID string, offer json.RawMessage) error {
	return c.send(map[string]interface{}{
		"type":     "offer",
		"streamId": streamID,
		"targetId": targetID,
		"offer":    offer,
	})
}

// Answer relays a peer connection answer to another room member.
func (c *Client) Answer(streamID, targetID string, answer json.RawMessage) error {
	return c.send(map[string]interface{}{
		"type":     "answer",
		"streamId": streamID,
		"targetId": targetID,
		"answer":   answer,
	})
}

// ICECandidate relays an ICE candidate to another room member.
func (c *Client) ICECandidate(streamID, targetID string, candidate json.RawMessage) error {
	return c.send(map[string]interface{}{
		"type":      "ice-candidate",
		"streamId":  streamID,
		"targetId":  targetID,
		"candidate": candidate,
	})
}
