package realtime

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/streamcart/streamcart/internal/metrics"
)

// SignalRelay forwards peer-connection negotiation messages between two
// members of a room. It is a pure relay: payloads are opaque and never
// interpreted, and nothing is persisted.
type SignalRelay struct {
	rooms *RoomManager
	log   zerolog.Logger
}

func NewSignalRelay(rooms *RoomManager, log zerolog.Logger) *SignalRelay {
	return &SignalRelay{
		rooms: rooms,
		log:   log.With().Str("component", "signaling").Logger(),
	}
}

// Relay forwards an offer, answer or ice-candidate from sender to
// target inside a room. Late signaling from a peer that already left
// is expected: a missing room or target is logged and dropped, never
// surfaced to the caller.
func (s *SignalRelay) Relay(streamID, kind, senderID, targetID string, payload json.RawMessage) {
	switch kind {
	case EvOffer, EvAnswer, EvICECandidate:
	default:
		s.log.Warn().Str("kind", kind).Msg("unknown signal kind dropped")
		return
	}

	target, ok := s.rooms.MemberConn(streamID, targetID)
	if !ok {
		s.log.Debug().Str("stream_id", streamID).Str("sender_id", senderID).
			Str("target_id", targetID).Str("kind", kind).
			Msg("signal dropped, target not in room")
		return
	}

	target.Push(newSignal(kind, streamID, senderID, payload))

	// ICE candidates trickle throughout the session and do not move
	// the negotiation state.
	switch kind {
	case EvOffer:
		s.rooms.setPeerLink(streamID, senderID, targetID, NegotiationOffering)
	case EvAnswer:
		s.rooms.setPeerLink(streamID, senderID, targetID, NegotiationConnected)
	}

	metrics.SignalsRelayed.WithLabelValues(kind).Inc()
}
