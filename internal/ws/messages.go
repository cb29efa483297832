package ws

import (
	"encoding/json"

	"microgrid_simulator/internal/model"
	"microgrid_simulator/internal/simulator"
)

// Envelope wraps all WebSocket messages with a type discriminator.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants
const (
	// Client -> Server
	TypeSimStart         = "sim:start"
	TypeSimPause         = "sim:pause"
	TypeSimReset         = "sim:reset"
	TypeSimStep          = "sim:step"
	TypeDecisionEvaluate = "decision:evaluate"

	// Server -> Client
	TypeSessionInit    = "session:init"
	TypeSimState       = "sim:state"
	TypeEnergySnapshot = "energy:snapshot"
	TypeHistoryRecord  = "history:record"
	TypeSummaryUpdate  = "summary:update"
	TypeSimResetDone   = "sim:reset"
	TypeDecisionResult = "decision:result"
	TypeError          = "error"
)

// Client -> Server messages

type StepPayload struct {
	Count int `json:"count"`
}

// EvaluatePayload carries externally supplied readings.
type EvaluatePayload = simulator.Inputs

// Server -> Client messages

type SimStatePayload struct {
	Hour      int  `json:"hour"`
	HourOfDay int  `json:"hour_of_day"`
	Running   bool `json:"running"`
}

type SessionInitPayload struct {
	SessionID string                `json:"sessionId"`
	Fields    []FieldPayload        `json:"fields"`
	Snapshot  model.Snapshot        `json:"snapshot"`
	History   []model.HistoryRecord `json:"history"`
	State     SimStatePayload       `json:"state"`
}

type FieldPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit"`
}

type SnapshotPayload struct {
	Hour     int            `json:"hour"`
	Snapshot model.Snapshot `json:"snapshot"`
}

type ResetPayload struct {
	State    SimStatePayload `json:"state"`
	Snapshot model.Snapshot  `json:"snapshot"`
}

type DecisionResultPayload struct {
	Inputs   simulator.Inputs `json:"inputs"`
	Decision model.Decision   `json:"decision"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func NewEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

func SimStateFromEngine(s simulator.State) SimStatePayload {
	return SimStatePayload{
		Hour:      s.Hour,
		HourOfDay: s.HourOfDay(),
		Running:   s.Running,
	}
}

func fieldList() []FieldPayload {
	fields := make([]FieldPayload, 0, len(model.FieldOrder))
	for _, f := range model.FieldOrder {
		info := model.FieldCatalog[f]
		fields = append(fields, FieldPayload{ID: string(f), Name: info.Name, Unit: info.Unit})
	}
	return fields
}
