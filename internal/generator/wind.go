package generator

import (
	"math"
	"time"
)

// Oscillator returns the slow wind swing in [-1, 1] for a simulated hour.
type Oscillator func(hour int) float64

// DefaultRadPerHour advances the swing per tick as much as a one-second
// wall-clock driver does (1000 ms / 10000).
const DefaultRadPerHour = 0.1

// SimulatedOscillator derives the swing from the simulated hour, so runs with
// the same seed are reproducible.
func SimulatedOscillator(radPerHour float64) Oscillator {
	return func(hour int) float64 {
		return math.Sin(float64(hour) * radPerHour)
	}
}

// WallClockOscillator derives the swing from real time with a period of
// 2π·10 s, ignoring the simulated hour.
func WallClockOscillator(now func() time.Time) Oscillator {
	if now == nil {
		now = time.Now
	}
	return func(int) float64 {
		ms := float64(now().UnixMilli())
		return math.Sin(ms / 10000)
	}
}

// Wind returns wind output in kW, clamped at zero.
func Wind(p Profile, osc Oscillator, hour int, r Rand) float64 {
	swing := 0.0
	if osc != nil {
		swing = osc(hour) * p.WindSwingKW
	}
	gust := Uniform(r, 0, p.WindGustKW)
	return math.Max(0, p.BaseWindKW+swing+gust)
}
