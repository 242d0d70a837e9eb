package api

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// maxFrameBytes bounds a single client frame. A chat message is at most
// 5000 bytes; module payloads are far smaller.
const maxFrameBytes = 64 << 10

// handleWebSocket runs one connection: every frame is handled in arrival
// order on this goroutine, and the session is torn down when the read
// loop ends.
func (m *Module) handleWebSocket(c *websocket.Conn) {
	connID := uuid.NewString()
	authUserID, _ := c.Locals(UserIDKey).(string)

	if m.deps.Hub.Register(connID, c) == nil {
		_ = c.Close()
		return
	}
	session := m.router.NewSession(connID, authUserID)
	m.deps.Logger.Debug("WebSocket client connected", "conn", connID, "user", authUserID)

	defer func() {
		m.router.Disconnect(session)
		m.deps.Hub.Unregister(connID)
		m.deps.Logger.Debug("WebSocket client disconnected", "conn", connID)
	}()

	c.SetReadLimit(maxFrameBytes)
	for {
		messageType, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				m.deps.Logger.Warn("WebSocket read error", "conn", connID, "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		m.router.HandleFrame(m.ctx, session, raw)
	}
}
