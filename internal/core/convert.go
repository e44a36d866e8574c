package core

// convert.go provides the cell conversions used by the normalizer.
//
// These functions handle the messy reality of hand-maintained workbooks:
//   - Year headers with decoration ("2021年", "FY2020", full-width "２０２２")
//   - Numeric cells stored as text, with stray whitespace
//   - Placeholder text in value cells ("N/A", "-", "待补充")
//
// Value parsing is deliberately strict. Anything that is not a plain decimal
// or scientific number is a coercion failure the user gets to see, rather
// than a silently reinterpreted value.

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// numericRegex validates that a trimmed cell is a plain number.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// ErrNotNumeric is returned by ParseValue for non-blank cells that are not numbers.
var ErrNotNumeric = errors.New("invalid number")

// ErrBlank is returned by ParseValue for empty or whitespace-only cells.
var ErrBlank = errors.New("blank cell")

// IsBlank reports whether a cell is empty or only whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ParseValue converts a raw cell to a finite float64.
// Returns ErrBlank for blank cells and ErrNotNumeric for anything that does
// not parse, including values that overflow to infinity.
func ParseValue(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, ErrBlank
	}

	if !numericRegex.MatchString(s) {
		return 0, ErrNotNumeric
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, ErrNotNumeric
	}
	return v, nil
}

// NormalizeYearLabel reduces a column label to the integer formed by its
// decimal digits in any script ("２０２２", "٢٠٢٢"). Compatibility forms are
// folded first.
// Returns false when the label has no digits or the digits overflow int.
//
//	NormalizeYearLabel("2021年")   // 2021, true
//	NormalizeYearLabel("FY 2020")  // 2020, true
//	NormalizeYearLabel("年份说明") // 0, false
func NormalizeYearLabel(label string) (int, bool) {
	folded := norm.NFKC.String(label)

	var b strings.Builder
	for _, r := range folded {
		if d, ok := digitValue(r); ok {
			b.WriteByte(byte('0' + d))
		}
	}
	if b.Len() == 0 {
		return 0, false
	}

	year, err := strconv.Atoi(b.String())
	if err != nil {
		return 0, false
	}
	return year, true
}

// digitValue returns the value of a Unicode decimal digit. Decimal digits
// come in contiguous runs of ten starting at zero, so the value is the
// offset within the run.
func digitValue(r rune) (int, bool) {
	if r >= '0' && r <= '9' {
		return int(r - '0'), true
	}
	if !unicode.IsDigit(r) {
		return 0, false
	}
	n := 0
	for unicode.IsDigit(r - rune(n) - 1) {
		n++
	}
	return n % 10, true
}
