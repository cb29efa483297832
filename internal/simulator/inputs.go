package simulator

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput is returned for externally supplied readings that fall
// outside the domain the decision rules are defined on.
var ErrInvalidInput = errors.New("invalid input")

// Inputs are the readings the decision engine consumes for one hour.
// Generation and demand are kW, BatteryLevel is percent.
type Inputs struct {
	Solar        float64 `json:"solar"`
	Wind         float64 `json:"wind"`
	Demand       float64 `json:"demand"`
	BatteryLevel float64 `json:"batteryLevel"`
}

// Surplus is renewable generation minus demand.
func (in Inputs) Surplus() float64 {
	return in.Solar + in.Wind - in.Demand
}

// Validate rejects readings that did not come from the internal generators
// and cannot be fed to the rules as is.
func (in Inputs) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"solar", in.Solar},
		{"wind", in.Wind},
		{"demand", in.Demand},
		{"batteryLevel", in.BatteryLevel},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s is not a finite number", ErrInvalidInput, f.name)
		}
		if f.value < 0 {
			return fmt.Errorf("%w: %s must be non-negative, got %g", ErrInvalidInput, f.name, f.value)
		}
	}
	if in.BatteryLevel > 100 {
		return fmt.Errorf("%w: batteryLevel must be within [0, 100], got %g", ErrInvalidInput, in.BatteryLevel)
	}
	return nil
}
