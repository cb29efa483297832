package ws

import (
	"microgrid_simulator/internal/logger"
	"microgrid_simulator/internal/model"
	"microgrid_simulator/internal/simulator"
)

// Bridge implements simulator.Callback and broadcasts one session's events
// to the WebSocket hub.
type Bridge struct {
	hub     *Hub
	session string
	log     logger.Logger
}

func NewBridge(hub *Hub, session string) *Bridge {
	return &Bridge{hub: hub, session: session, log: hub.log}
}

func (b *Bridge) OnState(s simulator.State) {
	b.broadcast(TypeSimState, SimStateFromEngine(s))
}

func (b *Bridge) OnTick(t simulator.Tick) {
	b.broadcast(TypeEnergySnapshot, SnapshotPayload{Hour: t.Hour, Snapshot: t.Snapshot})
	b.broadcast(TypeHistoryRecord, t.Record)
}

func (b *Bridge) OnSummary(s simulator.Summary) {
	b.broadcast(TypeSummaryUpdate, s)
}

func (b *Bridge) OnReset(s simulator.State, snap model.Snapshot) {
	b.broadcast(TypeSimResetDone, ResetPayload{State: SimStateFromEngine(s), Snapshot: snap})
}

func (b *Bridge) broadcast(msgType string, payload any) {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		b.log.Errorf("marshal %s: %v", msgType, err)
		return
	}
	b.hub.Broadcast(b.session, msg)
}
