package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	payload := SimStatePayload{
		Hour:      26,
		HourOfDay: 2,
		Running:   true,
	}

	msg, err := NewEnvelope(TypeSimState, payload)
	require.NoError(t, err)

	var env Envelope
	err = json.Unmarshal(msg, &env)
	require.NoError(t, err)

	assert.Equal(t, TypeSimState, env.Type)

	var parsed SimStatePayload
	err = json.Unmarshal(env.Payload, &parsed)
	require.NoError(t, err)

	assert.Equal(t, 26, parsed.Hour)
	assert.Equal(t, 2, parsed.HourOfDay)
	assert.True(t, parsed.Running)
}

func TestNewEnvelope_NoPayload(t *testing.T) {
	msg, err := NewEnvelope(TypeSimStart, nil)
	require.NoError(t, err)

	var env Envelope
	err = json.Unmarshal(msg, &env)
	require.NoError(t, err)

	assert.Equal(t, TypeSimStart, env.Type)
	assert.Nil(t, env.Payload)
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(nil)

	c := &Client{
		hub:  hub,
		send: make(chan []byte, 16),
	}

	hub.Register(c)
	assert.Equal(t, 1, hub.ClientCount())

	hub.Unregister(c)
	assert.Equal(t, 0, hub.ClientCount())

	_, open := <-c.send
	assert.False(t, open)

	// second unregister is a no-op
	assert.NotPanics(t, func() { hub.Unregister(c) })
}

func TestHub_BroadcastScopedToSession(t *testing.T) {
	hub := NewHub(nil)

	c1 := &Client{hub: hub, send: make(chan []byte, 16), session: "a"}
	c2 := &Client{hub: hub, send: make(chan []byte, 16), session: "a"}
	other := &Client{hub: hub, send: make(chan []byte, 16), session: "b"}

	hub.Register(c1)
	hub.Register(c2)
	hub.Register(other)
	assert.Equal(t, 2, hub.SessionClientCount("a"))

	msg := []byte(`{"type":"test"}`)
	hub.Broadcast("a", msg)

	assert.Equal(t, msg, <-c1.send)
	assert.Equal(t, msg, <-c2.send)
	assert.Empty(t, other.send)
}

func TestHub_BroadcastDropsWhenFull(t *testing.T) {
	hub := NewHub(nil)
	c := &Client{hub: hub, send: make(chan []byte, 1), session: "a"}
	hub.Register(c)

	hub.Broadcast("a", []byte("1"))
	assert.NotPanics(t, func() { hub.Broadcast("a", []byte("2")) })
	assert.Equal(t, []byte("1"), <-c.send)
}

func TestMessageTypes(t *testing.T) {
	assert.Equal(t, "sim:start", TypeSimStart)
	assert.Equal(t, "sim:pause", TypeSimPause)
	assert.Equal(t, "sim:reset", TypeSimReset)
	assert.Equal(t, "sim:step", TypeSimStep)
	assert.Equal(t, "decision:evaluate", TypeDecisionEvaluate)
	assert.Equal(t, "session:init", TypeSessionInit)
	assert.Equal(t, "sim:state", TypeSimState)
	assert.Equal(t, "energy:snapshot", TypeEnergySnapshot)
	assert.Equal(t, "history:record", TypeHistoryRecord)
	assert.Equal(t, "summary:update", TypeSummaryUpdate)
	assert.Equal(t, "decision:result", TypeDecisionResult)
	assert.Equal(t, "error", TypeError)
}
