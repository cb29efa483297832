package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"microgrid_simulator/internal/logger"
)

// Client represents a connected WebSocket client watching one session.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	session string
}

// Hub manages WebSocket clients and broadcasts messages per session.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	log     logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Hub{
		clients: make(map[*Client]bool),
		log:     log,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Broadcast sends a message to all clients watching the session.
func (h *Hub) Broadcast(session string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.session != session {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// Client buffer full, skip
			h.log.Warnf("client buffer full, dropping message for session %s", session)
		}
	}
}

// CloseSession disconnects every client watching session. Each connection's
// read loop then unregisters its client.
func (h *Hub) CloseSession(session string) {
	h.mu.RLock()
	var conns []*websocket.Conn
	for c := range h.clients {
		if c.session == session && c.conn != nil {
			conns = append(conns, c.conn)
		}
	}
	h.mu.RUnlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "session deleted")
	deadline := time.Now().Add(time.Second)
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		conn.Close()
	}
	if len(conns) > 0 {
		h.log.Infof("closed %d client(s) of deleted session %s", len(conns), session)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SessionClientCount returns the number of clients watching a session.
func (h *Hub) SessionClientCount(session string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if c.session == session {
			n++
		}
	}
	return n
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
