package ws

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microgrid_simulator/internal/model"
	"microgrid_simulator/internal/simulator"
	"microgrid_simulator/internal/store"
)

// testSessions creates a hub and a store whose engines broadcast to it.
func testSessions() (*Hub, *store.Store) {
	hub := NewHub(nil)
	s := store.New(func(id string) *simulator.Engine {
		cfg := simulator.DefaultConfig()
		cfg.Rand = rand.New(rand.NewSource(1))
		cfg.TickInterval = time.Hour // only Step advances the clock in tests
		return simulator.New(cfg, NewBridge(hub, id))
	}, 0)
	return hub, s
}

// dialHandler sets up a test server with the handler and returns a WS connection.
func dialHandler(t *testing.T, handler *Handler, query string) (*websocket.Conn, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn, func() {
		conn.Close()
		server.Close()
	}
}

// readJSON reads the next JSON message from the connection.
func readJSON(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

// readUntil reads messages until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) Envelope {
	t.Helper()
	for i := 0; i < 50; i++ {
		env := readJSON(t, conn)
		if env.Type == msgType {
			return env
		}
	}
	t.Fatalf("no %s message received", msgType)
	return Envelope{}
}

// sendJSON sends a JSON message on the connection.
func sendJSON(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	data, err := NewEnvelope(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestHandler_SessionInit(t *testing.T) {
	hub, sessions := testSessions()
	handler := NewHandler(hub, sessions)

	conn, cleanup := dialHandler(t, handler, "")
	defer cleanup()

	env := readJSON(t, conn)
	assert.Equal(t, TypeSessionInit, env.Type)

	var p SessionInitPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))

	def, err := sessions.Default()
	require.NoError(t, err)
	assert.Equal(t, def.ID, p.SessionID)
	assert.Len(t, p.Fields, len(model.FieldCatalog))
	assert.Equal(t, "solarGeneration", p.Fields[0].ID)
	assert.Equal(t, "kW", p.Fields[0].Unit)
	assert.Equal(t, model.InitialSnapshot(), p.Snapshot)
	assert.Empty(t, p.History)
	assert.False(t, p.State.Running)
	assert.Equal(t, 0, p.State.Hour)
}

func TestHandler_SelectsSession(t *testing.T) {
	hub, sessions := testSessions()
	sess, err := sessions.Create()
	require.NoError(t, err)
	sess.Engine.StepN(3)

	handler := NewHandler(hub, sessions)
	conn, cleanup := dialHandler(t, handler, "?session="+sess.ID)
	defer cleanup()

	var p SessionInitPayload
	require.NoError(t, json.Unmarshal(readJSON(t, conn).Payload, &p))
	assert.Equal(t, sess.ID, p.SessionID)
	assert.Len(t, p.History, 3)
	assert.Equal(t, 3, p.State.Hour)
}

func TestHandler_UnknownSession(t *testing.T) {
	hub, sessions := testSessions()
	server := httptest.NewServer(NewHandler(hub, sessions))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?session=missing"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_StartPause(t *testing.T) {
	hub, sessions := testSessions()
	handler := NewHandler(hub, sessions)

	conn, cleanup := dialHandler(t, handler, "")
	defer cleanup()
	readJSON(t, conn) // session:init

	def, err := sessions.Default()
	require.NoError(t, err)

	sendJSON(t, conn, TypeSimStart, nil)
	env := readUntil(t, conn, TypeSimState)
	var s SimStatePayload
	require.NoError(t, json.Unmarshal(env.Payload, &s))
	assert.True(t, s.Running)
	assert.True(t, def.Engine.IsRunning())

	sendJSON(t, conn, TypeSimPause, nil)
	env = readUntil(t, conn, TypeSimState)
	require.NoError(t, json.Unmarshal(env.Payload, &s))
	assert.False(t, s.Running)
	assert.False(t, def.Engine.IsRunning())
}

func TestHandler_Step(t *testing.T) {
	hub, sessions := testSessions()
	handler := NewHandler(hub, sessions)

	conn, cleanup := dialHandler(t, handler, "")
	defer cleanup()
	readJSON(t, conn)

	sendJSON(t, conn, TypeSimStep, StepPayload{Count: 2})

	env := readUntil(t, conn, TypeEnergySnapshot)
	var snap SnapshotPayload
	require.NoError(t, json.Unmarshal(env.Payload, &snap))
	assert.Equal(t, 0, snap.Hour)
	require.NotNil(t, snap.Snapshot.Decision)

	env = readUntil(t, conn, TypeHistoryRecord)
	var rec model.HistoryRecord
	require.NoError(t, json.Unmarshal(env.Payload, &rec))
	assert.Equal(t, 0, rec.Tick)

	readUntil(t, conn, TypeSummaryUpdate)
	env = readUntil(t, conn, TypeHistoryRecord)
	require.NoError(t, json.Unmarshal(env.Payload, &rec))
	assert.Equal(t, 1, rec.Tick)

	def, err := sessions.Default()
	require.NoError(t, err)
	assert.Equal(t, 2, def.Engine.State().Hour)
}

func TestHandler_StepDefaultsToOne(t *testing.T) {
	hub, sessions := testSessions()
	handler := NewHandler(hub, sessions)

	conn, cleanup := dialHandler(t, handler, "")
	defer cleanup()
	readJSON(t, conn)

	sendJSON(t, conn, TypeSimStep, nil)
	readUntil(t, conn, TypeSummaryUpdate)

	def, err := sessions.Default()
	require.NoError(t, err)
	assert.Equal(t, 1, def.Engine.State().Hour)
}

func TestHandler_StepOutOfRange(t *testing.T) {
	hub, sessions := testSessions()
	handler := NewHandler(hub, sessions)

	conn, cleanup := dialHandler(t, handler, "")
	defer cleanup()
	readJSON(t, conn)

	sendJSON(t, conn, TypeSimStep, StepPayload{Count: MaxStepCount + 1})
	env := readUntil(t, conn, TypeError)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Contains(t, p.Message, "step count")
}

func TestHandler_Reset(t *testing.T) {
	hub, sessions := testSessions()
	def, err := sessions.Default()
	require.NoError(t, err)
	def.Engine.StepN(5)

	handler := NewHandler(hub, sessions)
	conn, cleanup := dialHandler(t, handler, "")
	defer cleanup()
	readJSON(t, conn)

	sendJSON(t, conn, TypeSimReset, nil)
	env := readUntil(t, conn, TypeSimResetDone)

	var p ResetPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, 0, p.State.Hour)
	assert.Equal(t, model.InitialSnapshot(), p.Snapshot)
	assert.Empty(t, def.Engine.History())
}

func TestHandler_Evaluate(t *testing.T) {
	hub, sessions := testSessions()
	handler := NewHandler(hub, sessions)

	conn, cleanup := dialHandler(t, handler, "")
	defer cleanup()
	readJSON(t, conn)

	sendJSON(t, conn, TypeDecisionEvaluate, EvaluatePayload{Solar: 0, Wind: 0, Demand: 10, BatteryLevel: 15})
	env := readUntil(t, conn, TypeDecisionResult)

	var p DecisionResultPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, model.GridBuy, p.Decision.GridAction)
	assert.Equal(t, model.EVSlow, p.Decision.EVChargingRate)
	assert.Equal(t, "Importing from grid - low battery reserve", p.Decision.Reasoning)
	assert.Equal(t, 15.0, p.Inputs.BatteryLevel)
}

func TestHandler_EvaluateInvalid(t *testing.T) {
	hub, sessions := testSessions()
	handler := NewHandler(hub, sessions)

	conn, cleanup := dialHandler(t, handler, "")
	defer cleanup()
	readJSON(t, conn)

	sendJSON(t, conn, TypeDecisionEvaluate, EvaluatePayload{Solar: 1, Demand: 1, BatteryLevel: 150})
	env := readUntil(t, conn, TypeError)

	var p ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Contains(t, p.Message, "batteryLevel")
}

func TestHandler_UnknownType(t *testing.T) {
	hub, sessions := testSessions()
	handler := NewHandler(hub, sessions)

	conn, cleanup := dialHandler(t, handler, "")
	defer cleanup()
	readJSON(t, conn)

	sendJSON(t, conn, "sim:bogus", nil)
	env := readUntil(t, conn, TypeError)

	var p ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Contains(t, p.Message, "sim:bogus")
}

func TestHandler_InvalidJSON(t *testing.T) {
	hub, sessions := testSessions()
	handler := NewHandler(hub, sessions)

	conn, cleanup := dialHandler(t, handler, "")
	defer cleanup()
	readJSON(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	env := readUntil(t, conn, TypeError)
	assert.Equal(t, TypeError, env.Type)
}

func TestHandler_Disconnect(t *testing.T) {
	hub, sessions := testSessions()
	handler := NewHandler(hub, sessions)

	conn, cleanup := dialHandler(t, handler, "")
	readJSON(t, conn)
	assert.Equal(t, 1, hub.ClientCount())

	cleanup()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHandler_BroadcastReachesOnlySessionClients(t *testing.T) {
	hub, sessions := testSessions()
	other, err := sessions.Create()
	require.NoError(t, err)
	handler := NewHandler(hub, sessions)

	connDef, cleanupDef := dialHandler(t, handler, "")
	defer cleanupDef()
	readJSON(t, connDef)

	connOther, cleanupOther := dialHandler(t, handler, "?session="+other.ID)
	defer cleanupOther()
	readJSON(t, connOther)

	other.Engine.Step()
	readUntil(t, connOther, TypeEnergySnapshot)

	connDef.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = connDef.ReadMessage()
	assert.Error(t, err)
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debugf(string, ...any)         {}
func (l *recordingLogger) Debugw(string, map[string]any) {}
func (l *recordingLogger) Infof(string, ...any)          {}
func (l *recordingLogger) Errorf(string, ...any)         {}
func (l *recordingLogger) Warnf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}

func TestHandler_DeleteSessionDisconnectsClients(t *testing.T) {
	hub, sessions := testSessions()
	sess, err := sessions.Create()
	require.NoError(t, err)
	handler := NewHandler(hub, sessions)

	conn, cleanup := dialHandler(t, handler, "?session="+sess.ID)
	defer cleanup()
	readUntil(t, conn, TypeSessionInit)
	require.Equal(t, 1, hub.SessionClientCount(sess.ID))

	require.NoError(t, sessions.Delete(sess.ID))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 10 && err == nil; i++ {
		_, _, err = conn.ReadMessage()
	}
	require.Error(t, err)
	assert.Eventually(t, func() bool { return hub.SessionClientCount(sess.ID) == 0 }, time.Second, 10*time.Millisecond)

	// The connection is gone; a late step must not reach the engine.
	data, err := NewEnvelope(TypeSimStep, StepPayload{Count: 3})
	require.NoError(t, err)
	_ = conn.WriteMessage(websocket.TextMessage, data)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, sess.Engine.State().Hour)
	assert.False(t, sess.Engine.IsRunning())
}

func TestHandler_CommandForDeletedSessionRejected(t *testing.T) {
	hub, sessions := testSessions()
	sess, err := sessions.Create()
	require.NoError(t, err)
	handler := NewHandler(hub, sessions)
	c := &Client{hub: hub, send: make(chan []byte, 4), session: sess.ID}

	require.NoError(t, sessions.Delete(sess.ID))

	for _, msgType := range []string{TypeSimStep, TypeSimStart} {
		data, err := NewEnvelope(msgType, nil)
		require.NoError(t, err)
		handler.handleMessage(c, data)

		var env Envelope
		require.NoError(t, json.Unmarshal(<-c.send, &env))
		assert.Equal(t, TypeError, env.Type)
		var p ErrorPayload
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		assert.Equal(t, store.ErrNotFound.Error(), p.Message)
	}
	assert.Equal(t, 0, sess.Engine.State().Hour)
	assert.False(t, sess.Engine.IsRunning())
}

func TestHandler_ReplyDropLogsWarning(t *testing.T) {
	log := &recordingLogger{}
	hub := NewHub(log)
	_, sessions := testSessions()
	handler := NewHandler(hub, sessions)
	c := &Client{hub: hub, send: make(chan []byte), session: "s1"}

	handler.reply(c, TypeSimState, SimStatePayload{})

	log.mu.Lock()
	defer log.mu.Unlock()
	require.Len(t, log.warns, 1)
	assert.Contains(t, log.warns[0], "dropping sim:state for session s1")
}
