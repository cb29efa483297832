package generator

import "math"

// demandWindow is an extra-load band applied on top of the base load.
type demandWindow struct {
	hours  map[int]bool
	lo, hi float64
}

var (
	eveningPeak = demandWindow{hours: map[int]bool{17: true, 18: true, 19: true, 20: true}, lo: 8, hi: 12}
	morningRush = demandWindow{hours: map[int]bool{7: true, 8: true, 9: true}, lo: 4, hi: 6}
	offPeak     = demandWindow{lo: 0, hi: 2}
)

// windowFor picks the demand band for an hour of day. Evening takes
// precedence over morning.
func windowFor(hourOfDay int) demandWindow {
	h := HourOfDay(hourOfDay)
	switch {
	case eveningPeak.hours[h]:
		return eveningPeak
	case morningRush.hours[h]:
		return morningRush
	default:
		return offPeak
	}
}

// EVDemand returns the EV charging load in kW for an hour of day.
func EVDemand(p Profile, hourOfDay int, r Rand) float64 {
	w := windowFor(hourOfDay)
	demand := p.BaseLoadKW + Uniform(r, w.lo, w.hi)
	return math.Max(0, demand)
}
