package simulator

import "microgrid_simulator/internal/model"

// NopCallback ignores all events.
type NopCallback struct{}

func (NopCallback) OnState(State)                 {}
func (NopCallback) OnTick(Tick)                   {}
func (NopCallback) OnSummary(Summary)             {}
func (NopCallback) OnReset(State, model.Snapshot) {}

// Multi fans events out to several callbacks in order.
type Multi []Callback

func NewMulti(cbs ...Callback) Multi {
	out := make(Multi, 0, len(cbs))
	for _, cb := range cbs {
		if cb != nil {
			out = append(out, cb)
		}
	}
	return out
}

func (m Multi) OnState(s State) {
	for _, cb := range m {
		cb.OnState(s)
	}
}

func (m Multi) OnTick(t Tick) {
	for _, cb := range m {
		cb.OnTick(t)
	}
}

func (m Multi) OnSummary(s Summary) {
	for _, cb := range m {
		cb.OnSummary(s)
	}
}

func (m Multi) OnReset(s State, snap model.Snapshot) {
	for _, cb := range m {
		cb.OnReset(s, snap)
	}
}
