package reveal

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Hub tracks the reveal streams open per form session. One browser tab holds
// one stream; a newer connection for the same session replaces the older one.
type Hub struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{active: make(map[string]*websocket.Conn)}
}

// GetActive returns the open stream of a session.
func (h *Hub) GetActive(sessionID string) *websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active[sessionID]
}

// Register records conn as the stream of sessionID.
func (h *Hub) Register(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, exists := h.active[sessionID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "stream replaced")
	}
	h.active[sessionID] = conn
	slog.Debug("Reveal stream registered", "session_id", sessionID)
}

// Unregister forgets conn if it is still the session's stream.
func (h *Hub) Unregister(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, exists := h.active[sessionID]; exists && current == conn {
		delete(h.active, sessionID)
		slog.Debug("Reveal stream unregistered", "session_id", sessionID)
	}
}

// CloseSession terminates the stream of a session, e.g. after a restart.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.active[sessionID]
	if !ok {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "session closed")
	delete(h.active, sessionID)
	slog.Info("Reveal stream closed", "session_id", sessionID)
}

// Count returns the number of open streams.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active)
}
