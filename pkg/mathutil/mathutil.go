// Package mathutil provides common mathematical utility functions.
package mathutil

import (
	"math"
)

// WithinTolerance checks if two values are within a specified tolerance
func WithinTolerance(val1, val2, tolerance float64) bool {
	return math.Abs(val1-val2) <= tolerance
}

// Scale returns the magnitude used to turn a relative tolerance into an absolute one.
// Values below one are treated as one so tolerances never collapse to zero.
func Scale(val float64) float64 {
	return math.Max(1, math.Abs(val))
}

// Clamp limits value to the closed interval [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// PctChange returns the signed fractional change from base to value.
func PctChange(base, value float64) float64 {
	if base == 0 {
		return 0
	}
	return (value - base) / base
}

// IsFinite reports whether val is neither NaN nor infinite.
func IsFinite(val float64) bool {
	return !math.IsNaN(val) && !math.IsInf(val, 0)
}
