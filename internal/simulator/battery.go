package simulator

import (
	"fmt"
	"math"

	"microgrid_simulator/internal/model"
)

// BatteryConfig holds the state-of-charge transition parameters.
type BatteryConfig struct {
	ScalePerKW       float64 `json:"scale_per_kw"`       // percentage points per kW of surplus
	ChargeEfficiency float64 `json:"charge_efficiency"`  // applied on charge only
	MaxChargeStep    float64 `json:"max_charge_step"`    // percentage points per tick
	MaxDischargeStep float64 `json:"max_discharge_step"` // percentage points per tick
}

func DefaultBatteryConfig() BatteryConfig {
	return BatteryConfig{
		ScalePerKW:       0.1,
		ChargeEfficiency: 0.85,
		MaxChargeStep:    5,
		MaxDischargeStep: 8,
	}
}

func (c BatteryConfig) Validate() error {
	if c.ScalePerKW <= 0 {
		return fmt.Errorf("scale_per_kw must be positive, got %g", c.ScalePerKW)
	}
	if c.ChargeEfficiency <= 0 || c.ChargeEfficiency > 1 {
		return fmt.Errorf("charge_efficiency must be within (0, 1], got %g", c.ChargeEfficiency)
	}
	if c.MaxChargeStep <= 0 || c.MaxDischargeStep <= 0 {
		return fmt.Errorf("max charge/discharge steps must be positive, got %g/%g", c.MaxChargeStep, c.MaxDischargeStep)
	}
	return nil
}

// Apply returns the new battery level after one tick. Charging needs a
// positive surplus and loses energy to ChargeEfficiency; discharging needs a
// deficit and is lossless. The result is always within [0, 100].
func (c BatteryConfig) Apply(action model.BatteryAction, surplus, level float64) float64 {
	next := level
	switch {
	case action == model.BatteryCharge && surplus > 0:
		step := math.Min(surplus*c.ScalePerKW*c.ChargeEfficiency, c.MaxChargeStep)
		next = math.Min(100, level+step)
	case action == model.BatteryDischarge && surplus < 0:
		step := math.Min(math.Abs(surplus)*c.ScalePerKW, c.MaxDischargeStep)
		next = math.Max(0, level-step)
	}
	return clampLevel(next)
}

func clampLevel(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Battery applies BatteryConfig transitions and keeps usage statistics.
type Battery struct {
	config BatteryConfig

	ThroughputPct    float64     // sum of absolute level changes
	TimeAtLevelHours map[int]int // 10% buckets
}

func NewBattery(cfg BatteryConfig) *Battery {
	return &Battery{
		config:           cfg,
		TimeAtLevelHours: make(map[int]int),
	}
}

// Step applies the action and records one hour spent at the resulting level.
func (b *Battery) Step(action model.BatteryAction, surplus, level float64) float64 {
	next := b.config.Apply(action, surplus, level)
	b.ThroughputPct += math.Abs(next - level)
	b.TimeAtLevelHours[levelBucket(next)]++
	return next
}

func levelBucket(level float64) int {
	bucket := int(math.Floor(level/10)) * 10
	if bucket < 0 {
		bucket = 0
	}
	if bucket > 100 {
		bucket = 100
	}
	return bucket
}

// Cycles returns the equivalent full cycle count (one cycle = 200 points of throughput).
func (b *Battery) Cycles() float64 {
	return b.ThroughputPct / 200
}

// Reset clears statistics.
func (b *Battery) Reset() {
	b.ThroughputPct = 0
	b.TimeAtLevelHours = make(map[int]int)
}
