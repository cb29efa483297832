package simulator

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"microgrid_simulator/internal/model"
)

// Stats summarizes the history window for status cards.
type Stats struct {
	Samples        int     `json:"samples"`
	MeanSurplus    float64 `json:"mean_surplus_kw"`
	StdDevSurplus  float64 `json:"stddev_surplus_kw"`
	MeanDemand     float64 `json:"mean_demand_kw"`
	PeakDemand     float64 `json:"peak_demand_kw"`
	MeanBattery    float64 `json:"mean_battery_pct"`
	RenewableShare float64 `json:"renewable_share_pct"` // demand covered by generation
}

// WindowStats computes Stats over the given records.
func WindowStats(records []model.HistoryRecord) Stats {
	n := len(records)
	if n == 0 {
		return Stats{}
	}
	surplus := make([]float64, n)
	demand := make([]float64, n)
	battery := make([]float64, n)
	covered := make([]float64, n)
	for i, r := range records {
		surplus[i] = r.Surplus
		demand[i] = r.Demand
		battery[i] = r.Battery
		gen := r.Solar + r.Wind
		if gen > r.Demand {
			gen = r.Demand
		}
		covered[i] = gen
	}

	s := Stats{
		Samples:     n,
		MeanSurplus: stat.Mean(surplus, nil),
		MeanDemand:  stat.Mean(demand, nil),
		PeakDemand:  floats.Max(demand),
		MeanBattery: stat.Mean(battery, nil),
	}
	if n > 1 {
		s.StdDevSurplus = stat.StdDev(surplus, nil)
	}
	if total := floats.Sum(demand); total > 0 {
		s.RenewableShare = floats.Sum(covered) / total * 100
	}
	return s
}
