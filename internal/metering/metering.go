package metering

import (
	"github.com/ecopower/ecopower/internal/apperror"
	"github.com/ecopower/ecopower/internal/model"
)

// DefaultTariffPerKWh is applied when a reading is billed against a house
// with no tariff of its own. Recording never fails for a missing tariff.
const DefaultTariffPerKWh = 0.1740

// Usage is the computed result for one meter reading.
type Usage struct {
	KWh    float64
	Amount float64
}

// ComputeUsage derives billed kWh and amount from two meter index readings.
// currentIndex must be >= previousIndex; both are kept at full float64
// precision with no rounding at any stage.
func ComputeUsage(previousIndex, currentIndex, tariffKWh float64) (Usage, error) {
	if previousIndex < 0 || currentIndex < 0 {
		return Usage{}, apperror.Validation("meter indices must be non-negative")
	}
	if currentIndex < previousIndex {
		return Usage{}, apperror.Validation("index regression: current index %g is below previous index %g", currentIndex, previousIndex)
	}
	kwh := currentIndex - previousIndex
	return Usage{KWh: kwh, Amount: kwh * tariffKWh}, nil
}

// ComputeDirect derives the billed amount from a directly supplied kWh delta.
func ComputeDirect(kwh, tariffKWh float64) (Usage, error) {
	if kwh < 0 {
		return Usage{}, apperror.Validation("kwh must be non-negative")
	}
	return Usage{KWh: kwh, Amount: kwh * tariffKWh}, nil
}

// AnomalyWindow is how many prior readings the anomaly check averages over.
const AnomalyWindow = 3

// CheckAnomaly compares a new reading against the resident's recent history.
// It returns the average of the priors and whether the new reading exceeds
// it. With no history there is no baseline and no anomaly.
func CheckAnomaly(newKWh float64, priors []model.Consumption) (average float64, anomalous bool) {
	if len(priors) == 0 {
		return 0, false
	}
	var sum float64
	for _, c := range priors {
		sum += c.KWh
	}
	average = sum / float64(len(priors))
	return average, newKWh > average
}
