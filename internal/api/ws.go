package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/streamcart/streamcart/internal/auth"
	"github.com/streamcart/streamcart/internal/realtime"
)

// WSHandler upgrades /ws requests and runs a realtime session per
// connection.
type WSHandler struct {
	hub      *realtime.Hub
	verifier *auth.Verifier
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(hub *realtime.Hub, verifier *auth.Verifier, allowedOrigins []string, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:      hub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log.With().Str("component", "ws").Logger(),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser client
		}
		for _, a := range allowed {
			if strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	// Authenticate after the upgrade so the client gets a proper error
	// event before the close, rather than a bare HTTP status.
	user, err := h.verifier.Verify(bearerToken(r))
	if err != nil {
		h.log.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("handshake rejected")
		data, encErr := realtime.EncodeOutbound(realtime.ErrorEvent{Message: "authentication failed"})
		if encErr == nil {
			_ = ws.WriteMessage(websocket.TextMessage, data)
		}
		_ = ws.Close()
		return
	}

	realtime.NewSession(h.hub, ws, user).Run(r.Context())
}

// bearerToken pulls the credential from the Authorization header or,
// for browser websocket clients that cannot set headers, the token
// query parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
