// Package price converts decimal price strings to integer micro-units and back.
// Prices are kept as micros wherever they are summed so that volume totals do
// not accumulate float error.
package price

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// Scale is the number of micro-units in one whole unit.
	Scale  = 1_000_000
	digits = 6

	// MaxWhole caps a single price at one billion units.
	MaxWhole  = 1_000_000_000
	MaxMicros = MaxWhole * Scale
)

var ErrInvalid = errors.New("invalid decimal price")

// ParseMicros parses a non-negative decimal string such as "2.5" into micros.
// Digits beyond the sixth fractional place are rejected rather than rounded,
// as are prices above MaxWhole.
func ParseMicros(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalid
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" && (!hasDot || frac == "") {
		return 0, ErrInvalid
	}
	if hasDot && frac == "" {
		return 0, ErrInvalid
	}
	if len(frac) > digits {
		return 0, fmt.Errorf("%w: more than %d decimal places", ErrInvalid, digits)
	}
	if !allDigits(whole) || !allDigits(frac) {
		return 0, ErrInvalid
	}

	var w int64
	if whole != "" {
		var err error
		w, err = strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	if w > MaxWhole {
		return 0, fmt.Errorf("%w: above %d", ErrInvalid, MaxWhole)
	}

	var f int64
	if frac != "" {
		padded := frac + strings.Repeat("0", digits-len(frac))
		f, _ = strconv.ParseInt(padded, 10, 64)
	}

	m := w*Scale + f
	if m > MaxMicros {
		return 0, fmt.Errorf("%w: above %d", ErrInvalid, MaxWhole)
	}
	return m, nil
}

// Add sums two non-negative micro amounts, saturating at math.MaxInt64.
func Add(a, b int64) int64 {
	if b > math.MaxInt64-a {
		return math.MaxInt64
	}
	return a + b
}

// FromTotal converts a floating point micro sum, as produced by SQL TOTAL(),
// to micros, saturating at math.MaxInt64.
func FromTotal(f float64) int64 {
	switch {
	case f <= 0 || math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	default:
		return int64(math.Round(f))
	}
}

// Valid reports whether s is accepted by ParseMicros.
func Valid(s string) bool {
	_, err := ParseMicros(s)
	return err == nil
}

// FormatMicros renders micros as the shortest decimal string, e.g. 2500000 -> "2.5".
func FormatMicros(m int64) string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	whole := m / Scale
	frac := m % Scale
	if frac == 0 {
		return sign + strconv.FormatInt(whole, 10)
	}
	fs := strings.TrimRight(fmt.Sprintf("%06d", frac), "0")
	return sign + strconv.FormatInt(whole, 10) + "." + fs
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
