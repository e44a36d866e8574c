package core

import (
	"math"
	"strconv"
	"strings"
)

// RoundValue rounds v to two decimals, ties to even.
func RoundValue(v float64) float64 {
	r := math.RoundToEven(v*100) / 100
	if math.IsInf(r, 0) || math.IsNaN(r) {
		// v*100 overflowed; v is far beyond two-decimal precision anyway.
		return v
	}
	return r
}

// FormatValue renders a number the way the dashboard prints values:
// shortest round-trip digits, always with a fractional part ("6.0"),
// exponent form from 1e16 upward.
func FormatValue(v float64) string {
	if math.Abs(v) >= 1e16 {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// FormatLabel builds the on-chart annotation for a value: the value rounded
// to two decimals, a space, and the unit.
//
//	FormatLabel(6, "%")        // "6.0 %"
//	FormatLabel(141008, "万人") // "141008.0 万人"
func FormatLabel(v float64, unit string) string {
	return FormatValue(RoundValue(v)) + " " + unit
}
