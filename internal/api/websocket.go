package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/coop-bridge/internal/hub"
)

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Observers are read-mostly dashboards on the local network.
		return true
	},
}

// handleWebSocket upgrades the connection, hydrates the new observer and
// starts its pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	obs := hub.NewObserver(s.wsCfg.SendBuffer, s.policy)
	if err := s.bridge.Connect(obs); err != nil {
		s.logger.Error("observer hydration failed", "observer_id", obs.ID(), "error", err)
		//nolint:errcheck // Best-effort close frame; the connection is dropped anyway
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "hydration failed"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	s.pumps.Add(2)
	go s.writePump(conn, obs)
	go s.readPump(conn, obs)
}

// readPump hands every inbound frame to the bridge. It disconnects the
// observer when the peer goes away.
func (s *Server) readPump(conn *websocket.Conn, obs *hub.Observer) {
	defer func() {
		s.bridge.Disconnect(obs.ID())
		conn.Close()
		s.pumps.Done()
	}()

	if s.wsCfg.MaxMessageSize > 0 {
		conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	}
	pingInterval, pongWait := s.keepalive()
	keepalive := pingInterval + pongWait
	//nolint:errcheck // Best-effort deadline on connection setup
	conn.SetReadDeadline(time.Now().Add(keepalive))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(keepalive))
	})

	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "observer_id", obs.ID(), "error", err)
			} else {
				s.logger.Debug("websocket closed",
					"observer_id", obs.ID(),
					"connected_for", time.Since(obs.ConnectedAt()).Round(time.Second),
					"error", err,
				)
			}
			return
		}
		// Any frame counts as liveness, for browsers that ignore pings.
		//nolint:errcheck // Best-effort deadline reset
		conn.SetReadDeadline(time.Now().Add(keepalive))
		if msgType != websocket.TextMessage {
			continue
		}
		//nolint:errcheck // The bridge answers the observer and logs; nothing to do here
		s.bridge.HandleObserverMessage(obs.ID(), message)
	}
}

// writePump drains the observer's queue onto the connection and sends
// pings. A closed queue means the bridge evicted or shut down the
// observer, so it sends a close frame and exits.
func (s *Server) writePump(conn *websocket.Conn, obs *hub.Observer) {
	pingInterval, writeWait := s.keepalive()
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
		s.pumps.Done()
	}()

	for {
		select {
		case message, ok := <-obs.Outbound():
			if !ok {
				//nolint:errcheck // Best-effort close message
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(writeWait))
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.bridge.Disconnect(obs.ID())
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.bridge.Disconnect(obs.ID())
				return
			}
		}
	}
}

// keepalive returns the ping interval and pong wait, falling back to
// 30s and 10s when unset.
func (s *Server) keepalive() (ping, pong time.Duration) {
	ping = time.Duration(s.wsCfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = 30 * time.Second
	}
	pong = time.Duration(s.wsCfg.PongTimeout) * time.Second
	if pong <= 0 {
		pong = 10 * time.Second
	}
	return ping, pong
}
