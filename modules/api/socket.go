package api

import (
	"time"

	"github.com/example/workspace-realtime/modules/broadcast"
	"github.com/example/workspace-realtime/modules/registry"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	identityLocalsKey = "identity"
	writeWait         = 10 * time.Second
)

// upgradeMiddleware authenticates the upgrade request before the socket
// is accepted. Rejected requests never reach the registry.
func (m *APIModule) upgradeMiddleware(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	identity, err := m.auth.Authenticate(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   CodeUnauthenticated,
			Message: err.Error(),
		})
	}

	c.Locals(identityLocalsKey, identity)
	return c.Next()
}

// handleWebSocket serves one connection: a writer goroutine drains the
// outbound queue while this goroutine reads and dispatches inbound frames.
func (m *APIModule) handleWebSocket(c *websocket.Conn) {
	identity, ok := c.Locals(identityLocalsKey).(registry.Identity)
	if !ok {
		_ = c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthenticated"))
		_ = c.Close()
		return
	}

	conn, err := m.broadcast.Registry().Register(uuid.New().String(), identity)
	if err != nil {
		m.logger.Warn("WebSocket registration failed", "userID", identity.UserID, "error", err)
		_ = c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "registration failed"))
		_ = c.Close()
		return
	}
	session := m.dispatcher.NewSession(conn)

	writerDone := make(chan struct{})
	go m.writeLoop(c, conn, writerDone)

	defer func() {
		m.dispatcher.Close(session)
		<-writerDone
		_ = c.Close()
		m.logger.Info("WebSocket disconnected", "connectionID", conn.ID, "userID", identity.UserID)
	}()

	m.logger.Info("WebSocket connected", "connectionID", conn.ID, "userID", identity.UserID)

	if err := m.broadcast.Router().Send(conn, broadcast.Envelope{
		Event: broadcast.EventConnected,
		Data:  broadcast.Connected{ConnectionID: conn.ID, UserID: identity.UserID},
	}); err != nil {
		m.logger.Warn("Failed to queue welcome", "connectionID", conn.ID, "error", err)
		return
	}

	if m.config.MaxMessageBytes > 0 {
		c.SetReadLimit(m.config.MaxMessageBytes)
	}
	_ = c.SetReadDeadline(time.Now().Add(m.config.PongTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(m.config.PongTimeout))
	})

	for {
		msgType, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Debug("WebSocket read ended", "connectionID", conn.ID, "error", err)
			}
			return
		}
		_ = c.SetReadDeadline(time.Now().Add(m.config.PongTimeout))

		if msgType != websocket.TextMessage {
			continue
		}
		m.dispatcher.Dispatch(session, data)
	}
}

// writeLoop is the only writer of c. It exits when the connection is
// closed or a write fails.
func (m *APIModule) writeLoop(c *websocket.Conn, conn *registry.Connection, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-conn.Frames():
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
				m.logger.Debug("WebSocket write failed", "connectionID", conn.ID, "error", err)
				conn.Close()
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				_ = c.Close()
				return
			}
		case <-conn.Done():
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
