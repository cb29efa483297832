// Package generator produces hourly solar output, wind output and EV charging
// demand from closed-form curves plus bounded randomness.
package generator

// Rand is the random source used by every generator. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Uniform draws a value uniformly from [lo, hi).
func Uniform(r Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

// Profile holds the installation constants of the micro-grid.
type Profile struct {
	PeakSolarKW float64 `json:"peak_solar_kw"`
	BaseWindKW  float64 `json:"base_wind_kw"`
	WindSwingKW float64 `json:"wind_swing_kw"` // amplitude of the slow oscillation
	WindGustKW  float64 `json:"wind_gust_kw"`  // upper bound of the random term
	BaseLoadKW  float64 `json:"base_load_kw"`
}

func DefaultProfile() Profile {
	return Profile{
		PeakSolarKW: 10,
		BaseWindKW:  3,
		WindSwingKW: 2,
		WindGustKW:  1.5,
		BaseLoadKW:  2,
	}
}

// HourOfDay wraps an absolute simulated hour into [0, 24).
func HourOfDay(hour int) int {
	h := hour % 24
	if h < 0 {
		h += 24
	}
	return h
}
