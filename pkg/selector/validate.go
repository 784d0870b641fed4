package selector

import (
	"math"

	"github.com/dougsko/specand/pkg/status"
)

// ValidateRange checks min <= value <= max. The failure names the 1-based
// parameter position and symbolic name exactly as given; callers surface both
// to end users.
func ValidateRange(value, min, max, paramIndex int, paramName string) (int, error) {
	if value < min || value > max {
		return value, status.Range(paramIndex, paramName, "value %d not in [%d, %d]", value, min, max)
	}
	return value, nil
}

// ValidateRangeFloat is ValidateRange for real-valued parameters. NaN is
// outside every range.
func ValidateRangeFloat(value, min, max float64, paramIndex int, paramName string) (float64, error) {
	if math.IsNaN(value) || value < min || value > max {
		return value, status.Range(paramIndex, paramName, "value %g not in [%g, %g]", value, min, max)
	}
	return value, nil
}

// IndexIn validates value and returns it as an indexed component
func IndexIn(prefix string, value, min, max, paramIndex int, paramName string) (Component, error) {
	if _, err := ValidateRange(value, min, max, paramIndex, paramName); err != nil {
		return Component{}, err
	}
	return Index(prefix, value), nil
}
