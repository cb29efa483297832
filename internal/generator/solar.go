package generator

import "math"

const (
	sunrise = 6
	sunset  = 18

	minCloudFactor = 0.7
	maxCloudFactor = 1.0
)

// Daylight reports whether the hour of day lies in the generation window [6, 18).
func Daylight(hour int) bool {
	h := HourOfDay(hour)
	return h >= sunrise && h < sunset
}

// SolarCurve returns the clear-sky capacity factor for the hour in [0, 1].
func SolarCurve(hour int) float64 {
	if !Daylight(hour) {
		return 0
	}
	h := HourOfDay(hour)
	return math.Sin(math.Pi * float64(h-sunrise) / float64(sunset-sunrise))
}

// Solar returns PV output in kW. Outside daylight it returns 0 without
// consuming a random draw; every daylight hour, sunrise included, draws a
// cloud factor from [0.7, 1.0) and scales the curve by it.
func Solar(p Profile, hour int, r Rand) float64 {
	if !Daylight(hour) {
		return 0
	}
	cloud := Uniform(r, minCloudFactor, maxCloudFactor)
	return SolarCurve(hour) * p.PeakSolarKW * cloud
}
