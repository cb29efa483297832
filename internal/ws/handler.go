package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"microgrid_simulator/internal/logger"
	"microgrid_simulator/internal/store"
)

// MaxStepCount bounds a single sim:step request.
const MaxStepCount = 1000

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler manages WebSocket connections and routes messages to the
// session selected by the "session" query parameter.
type Handler struct {
	hub      *Hub
	sessions *store.Store
	log      logger.Logger
}

// NewHandler also hooks hub into sessions so deleting a session drops its
// clients.
func NewHandler(hub *Hub, sessions *store.Store) *Handler {
	sessions.OnDelete(hub.CloseSession)
	return &Handler{hub: hub, sessions: sessions, log: hub.log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Resolve(r.URL.Query().Get("session"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("websocket upgrade: %v", err)
		return
	}

	client := &Client{
		hub:     h.hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		session: sess.ID,
	}

	h.hub.Register(client)
	go client.writePump()

	h.sendSessionInit(client, sess)

	// Read messages from client
	h.readPump(client)
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warnf("websocket read: %v", err)
			}
			return
		}

		h.handleMessage(c, msg)
	}
}

// handleMessage looks the session up again for every command, so a client
// that outlives its session cannot drive the removed engine.
func (h *Handler) handleMessage(c *Client, msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		h.replyError(c, fmt.Errorf("invalid message: %w", err))
		return
	}
	sess, err := h.sessions.Get(c.session)
	if err != nil {
		h.replyError(c, err)
		return
	}
	engine := sess.Engine

	switch env.Type {
	case TypeSimStart:
		engine.Start()

	case TypeSimPause:
		engine.Pause()

	case TypeSimReset:
		engine.Reset()

	case TypeSimStep:
		p := StepPayload{Count: 1}
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				h.replyError(c, fmt.Errorf("invalid %s payload: %w", env.Type, err))
				return
			}
		}
		if p.Count < 1 || p.Count > MaxStepCount {
			h.replyError(c, fmt.Errorf("step count must be within [1, %d], got %d", MaxStepCount, p.Count))
			return
		}
		engine.StepN(p.Count)

	case TypeDecisionEvaluate:
		var p EvaluatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.replyError(c, fmt.Errorf("invalid %s payload: %w", env.Type, err))
			return
		}
		d, err := engine.Evaluate(p)
		if err != nil {
			h.replyError(c, err)
			return
		}
		h.reply(c, TypeDecisionResult, DecisionResultPayload{Inputs: p, Decision: d})

	default:
		h.replyError(c, fmt.Errorf("unknown message type: %s", env.Type))
	}
}

func (h *Handler) sendSessionInit(c *Client, sess *store.Session) {
	h.reply(c, TypeSessionInit, SessionInitPayload{
		SessionID: sess.ID,
		Fields:    fieldList(),
		Snapshot:  sess.Engine.Snapshot(),
		History:   sess.Engine.History(),
		State:     SimStateFromEngine(sess.Engine.State()),
	})
}

func (h *Handler) replyError(c *Client, err error) {
	h.log.Warnf("session %s: %v", c.session, err)
	h.reply(c, TypeError, ErrorPayload{Message: err.Error()})
}

// reply sends a message to one client only. It must be called from the
// client's read loop so the send channel is still open.
func (h *Handler) reply(c *Client, msgType string, payload any) {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		h.log.Errorf("marshal %s: %v", msgType, err)
		return
	}
	select {
	case c.send <- msg:
	default:
		h.log.Warnf("client buffer full, dropping %s for session %s", msgType, c.session)
	}
}
