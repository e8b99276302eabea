// Package money renders signed integer cents for API responses.
// All arithmetic in the system is performed on int64 cents; this package only
// owns the display format.
package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidFormat occurs when parsing a formatted amount fails.
var ErrInvalidFormat = errors.New("money: invalid format")

// Format renders cents as a decimal string "D.CC" with a leading minus for
// negative amounts.
//
// Examples:
//   - 1050  → "10.50"
//   - -700  → "-7.00"
//   - 5     → "0.05"
func Format(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// Parse converts a "D.CC" string back to cents. The fractional part is
// optional and at most two digits.
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidFormat
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, fmt.Errorf("%w: too many decimal points", ErrInvalidFormat)
	}

	whole, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	var frac int64
	if len(parts) == 2 {
		f := parts[1]
		if len(f) == 0 || len(f) > 2 {
			return 0, fmt.Errorf("%w: fractional part must be 1-2 digits", ErrInvalidFormat)
		}
		frac, err = strconv.ParseInt(f, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
		}
		if len(f) == 1 {
			frac *= 10
		}
	}

	cents := whole*100 + frac
	if negative {
		cents = -cents
	}
	return cents, nil
}
