package realtime

import (
	"encoding/json"
	"fmt"
)

// Event type discriminators. These names are the wire contract the
// web and mobile frontends depend on.
const (
	// Inbound (client -> server)
	EvRegister       = "register"
	EvChatMessage    = "chatMessage" // both directions
	EvGetHistory     = "getHistory"  // both directions
	EvJoinStream     = "join-stream"
	EvStartStreaming = "start-streaming"
	EvEndStream      = "end-stream"
	EvLeaveStream    = "leave-stream"
	EvOffer          = "offer" // both directions
	EvAnswer         = "answer"
	EvICECandidate   = "ice-candidate"
	EvStreamChat     = "chat" // both directions
	EvHeart          = "heart"
	EvShowcase       = "showcase"

	// Outbound only (server -> client)
	EvMessageSent      = "message-sent"
	EvStreamStarted    = "stream-started"
	EvStreamJoined     = "stream-joined"
	EvViewerJoined     = "viewer-joined"
	EvViewerCount      = "viewerCount"
	EvPeerLeft         = "peer-left"
	EvPeerDisconnected = "peer-disconnected"
	EvUserLeft         = "user-left"
	EvStreamEnded      = "stream-ended"
	EvError            = "error"
)

// Inbound is a decoded client event. Each message type has its own
// struct so handling is exhaustively matched in the session dispatch.
type Inbound interface {
	isInbound()
}

type RegisterCmd struct {
	UserID string `json:"userId"`
}

type ChatSendCmd struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	RecipientID    string `json:"recipientId"`
	Content        string `json:"content"`
}

type GetHistoryCmd struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type JoinStreamCmd struct {
	StreamID string `json:"streamId"`
}

type StartStreamingCmd struct {
	StreamID string `json:"streamId"`
}

type EndStreamCmd struct {
	StreamID string `json:"streamId"`
}

type LeaveStreamCmd struct {
	StreamID string `json:"streamId"`
}

type OfferCmd struct {
	StreamID string          `json:"streamId"`
	TargetID string          `json:"targetId"`
	Offer    json.RawMessage `json:"offer"`
}

type AnswerCmd struct {
	StreamID string          `json:"streamId"`
	TargetID string          `json:"targetId"`
	Answer   json.RawMessage `json:"answer"`
}

type ICECandidateCmd struct {
	StreamID  string          `json:"streamId"`
	TargetID  string          `json:"targetId"`
	Candidate json.RawMessage `json:"candidate"`
}

type StreamChatCmd struct {
	StreamID string `json:"streamId"`
	Message  string `json:"message"`
}

type HeartCmd struct {
	StreamID string `json:"streamId"`
}

type ShowcaseCmd struct {
	StreamID  string `json:"streamId"`
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Price     string `json:"price"`
}

func (RegisterCmd) isInbound()       {}
func (ChatSendCmd) isInbound()       {}
func (GetHistoryCmd) isInbound()     {}
func (JoinStreamCmd) isInbound()     {}
func (StartStreamingCmd) isInbound() {}
func (EndStreamCmd) isInbound()      {}
func (LeaveStreamCmd) isInbound()    {}
func (OfferCmd) isInbound()          {}
func (AnswerCmd) isInbound()         {}
func (ICECandidateCmd) isInbound()   {}
func (StreamChatCmd) isInbound()     {}
func (HeartCmd) isInbound()          {}
func (ShowcaseCmd) isInbound()       {}

// DecodeInbound parses a raw text frame into its typed event. Unknown
// or malformed frames yield a ValidationError.
func DecodeInbound(data []byte) (Inbound, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, validationError("malformed event")
	}

	var (
		ev  Inbound
		err error
	)
	switch head.Type {
	case EvRegister:
		ev, err = decodeAs[RegisterCmd](data)
	case EvChatMessage:
		ev, err = decodeAs[ChatSendCmd](data)
	case EvGetHistory:
		ev, err = decodeAs[GetHistoryCmd](data)
	case EvJoinStream:
		ev, err = decodeAs[JoinStreamCmd](data)
	case EvStartStreaming:
		ev, err = decodeAs[StartStreamingCmd](data)
	case EvEndStream:
		ev, err = decodeAs[EndStreamCmd](data)
	case EvLeaveStream:
		ev, err = decodeAs[LeaveStreamCmd](data)
	case EvOffer:
		ev, err = decodeAs[OfferCmd](data)
	case EvAnswer:
		ev, err = decodeAs[AnswerCmd](data)
	case EvICECandidate:
		ev, err = decodeAs[ICECandidateCmd](data)
	case EvStreamChat:
		ev, err = decodeAs[StreamChatCmd](data)
	case EvHeart:
		ev, err = decodeAs[HeartCmd](data)
	case EvShowcase:
		ev, err = decodeAs[ShowcaseCmd](data)
	default:
		return nil, validationError(fmt.Sprintf("unknown event type %q", head.Type))
	}
	if err != nil {
		return nil, validationError("malformed event payload")
	}
	return ev, nil
}

func decodeAs[T Inbound](data []byte) (Inbound, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Outbound is a server event ready to encode for a client.
type Outbound interface {
	EventType() string
}

type ChatMessageEvent struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	SenderName     string `json:"senderName"`
	SenderAvatar   string `json:"senderAvatar,omitempty"`
	Content        string `json:"content"`
	Time           int64  `json:"time"`
}

type MessageSentEvent struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	Delivered      bool   `json:"delivered"`
	Time           int64  `json:"time"`
}

type HistoryEvent struct {
	ConversationID  string             `json:"conversationId"`
	RecipientID     string             `json:"recipientId"`
	RecipientName   string             `json:"recipientName"`
	RecipientAvatar string             `json:"recipientAvatar,omitempty"`
	Messages        []ChatMessageEvent `json:"messages"`
}

type StreamStartedEvent struct {
	StreamID string `json:"streamId"`
}

type StreamJoinedEvent struct {
	StreamID     string `json:"streamId"`
	StreamerID   string `json:"streamerId"`
	StreamerName string `json:"streamer"`
	ViewerCount  int    `json:"viewerCount"`
}

type ViewerJoinedEvent struct {
	StreamID   string `json:"streamId"`
	ViewerID   string `json:"viewerId"`
	ViewerName string `json:"viewerName"`
}

type ViewerCountEvent struct {
	StreamID string `json:"streamId"`
	Count    int    `json:"count"`
}

type SignalEvent struct {
	kind     string
	StreamID string          `json:"streamId"`
	From     string          `json:"from"`
	Payload  json.RawMessage `json:"-"`
}

type PeerLeftEvent struct {
	abrupt   bool
	StreamID string `json:"streamId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type UserLeftEvent struct {
	StreamID string `json:"streamId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type StreamEndedEvent struct {
	StreamID string `json:"streamId"`
	Message  string `json:"message"`
}

type StreamChatEvent struct {
	StreamID  string `json:"streamId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type HeartEvent struct {
	StreamID string `json:"streamId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type ShowcaseEvent struct {
	StreamID  string `json:"streamId"`
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Price     string `json:"price"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

func (ChatMessageEvent) EventType() string   { return EvChatMessage }
func (MessageSentEvent) EventType() string   { return EvMessageSent }
func (HistoryEvent) EventType() string       { return EvGetHistory }
func (StreamStartedEvent) EventType() string { return EvStreamStarted }
func (StreamJoinedEvent) EventType() string  { return EvStreamJoined }
func (ViewerJoinedEvent) EventType() string  { return EvViewerJoined }
func (ViewerCountEvent) EventType() string   { return EvViewerCount }
func (e SignalEvent) EventType() string      { return e.kind }

func (e PeerLeftEvent) EventType() string {
	if e.abrupt {
		return EvPeerDisconnected
	}
	return EvPeerLeft
}

func (UserLeftEvent) EventType() string    { return EvUserLeft }
func (StreamEndedEvent) EventType() string { return EvStreamEnded }
func (StreamChatEvent) EventType() string  { return EvStreamChat }
func (HeartEvent) EventType() string       { return EvHeart }
func (ShowcaseEvent) EventType() string    { return EvShowcase }
func (ErrorEvent) EventType() string       { return EvError }

// newSignal builds the forwarded offer/answer/ice-candidate event. The
// payload is re-keyed under the original field name (offer, answer,
// candidate) so the receiving peer sees the same shape the sender sent.
func newSignal(kind, streamID, from string, payload json.RawMessage) SignalEvent {
	return SignalEvent{kind: kind, StreamID: streamID, From: from, Payload: payload}
}

// MarshalJSON places the signaling payload under its type-specific key.
func (e SignalEvent) MarshalJSON() ([]byte, error) {
	key := "payload"
	switch e.kind {
	case EvOffer:
		key = "offer"
	case EvAnswer:
		key = "answer"
	case EvICECandidate:
		key = "candidate"
	}
	payload := e.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return json.Marshal(map[string]any{
		"streamId": e.StreamID,
		"from":     e.From,
		key:        payload,
	})
}

// EncodeOutbound serializes an event with its type discriminator
// spliced in front of the struct's own fields.
func EncodeOutbound(ev Outbound) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	head := fmt.Sprintf(`{"type":%q`, ev.EventType())
	if len(body) <= 2 { // empty object
		return []byte(head + "}"), nil
	}
	return append([]byte(head+","), body[1:]...), nil
}
