package simulator

import "microgrid_simulator/internal/model"

const (
	reasonBalance = "Maintaining system balance"
	reasonStore   = "Storing excess renewable energy"
	reasonSupport = "Supporting demand with stored energy"
	reasonFastEV  = "High renewable surplus - maximizing charging"
	reasonSlowEV  = "Low energy availability - reducing charging rate"
	reasonSell    = "Selling excess to grid - battery near full"
	reasonBuy     = "Importing from grid - low battery reserve"
)

// Rule inspects the inputs and, when its condition holds, overrides its own
// decision fields and the shared Reasoning. It reports whether it fired.
type Rule struct {
	Name  string
	Apply func(in Inputs, d *model.Decision) bool
}

// Rules run in this order. Every firing rule overwrites Reasoning, so the
// last one to fire owns the reported justification.
var Rules = []Rule{
	{Name: "battery", Apply: batteryRule},
	{Name: "ev_rate", Apply: evRateRule},
	{Name: "grid", Apply: gridRule},
}

func defaultDecision() model.Decision {
	return model.Decision{
		BatteryAction:  model.BatteryHold,
		GridAction:     model.GridNone,
		EVChargingRate: model.EVNormal,
		Priority:       model.PriorityBalanced,
		Confidence:     0.8,
		Reasoning:      reasonBalance,
	}
}

func batteryRule(in Inputs, d *model.Decision) bool {
	surplus := in.Surplus()
	switch {
	case surplus > 3 && in.BatteryLevel < 90:
		d.BatteryAction = model.BatteryCharge
		d.Priority = model.PriorityStorage
		d.Confidence = 0.95
		d.Reasoning = reasonStore
	case surplus < -3 && in.BatteryLevel > 25:
		d.BatteryAction = model.BatteryDischarge
		d.Priority = model.PriorityDemand
		d.Confidence = 0.9
		d.Reasoning = reasonSupport
	default:
		return false
	}
	return true
}

func evRateRule(in Inputs, d *model.Decision) bool {
	surplus := in.Surplus()
	switch {
	case surplus > 6:
		d.EVChargingRate = model.EVFast
		d.Reasoning = reasonFastEV
	case surplus < -2 && in.BatteryLevel < 30:
		d.EVChargingRate = model.EVSlow
		d.Reasoning = reasonSlowEV
	default:
		return false
	}
	return true
}

func gridRule(in Inputs, d *model.Decision) bool {
	surplus := in.Surplus()
	switch {
	case surplus > 8 && in.BatteryLevel > 80:
		d.GridAction = model.GridSell
		d.Reasoning = reasonSell
	case surplus < -4 && in.BatteryLevel < 20:
		d.GridAction = model.GridBuy
		d.Reasoning = reasonBuy
	default:
		return false
	}
	return true
}

// Decide maps generation, demand and battery level to a control decision.
func Decide(in Inputs) model.Decision {
	d, _ := Trace(in)
	return d
}

// Trace is Decide that also returns the names of the rules that fired, in
// evaluation order.
func Trace(in Inputs) (model.Decision, []string) {
	d := defaultDecision()
	var fired []string
	for _, r := range Rules {
		if r.Apply(in, &d) {
			fired = append(fired, r.Name)
		}
	}
	return d, fired
}
