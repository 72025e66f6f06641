package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/fishy/internal/domain/types"
	"github.com/okian/fishy/pkg/logger"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

// handleTradeEvents handles GET /v1/trades/events. The stream carries every
// trade event addressed to the user named by X-User-ID or ?user=, or all
// events when neither is given.
func (s *Server) handleTradeEvents(w http.ResponseWriter, r *http.Request) {
	const op = "api.trade_events"
	user := r.URL.Query().Get("user")
	if user == "" {
		user = actor(r)
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(WrapKind(op, ErrUpgrade, err)))
		return
	}
	defer func() { _ = conn.Close() }()

	events, cancel := s.deps.Subscribe(user)
	defer cancel()

	// The reader only services control frames and notices the client leaving.
	gone := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			return
		case e, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(types.NewTradeEvent(e)); err != nil {
				s.logger.Debug(r.Context(), "websocket write failed", logger.String("user_id", user), logger.Error(err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
