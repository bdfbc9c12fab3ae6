// Package money holds fixed-point currency helpers. Amounts carry two decimal
// places and percentages are bounded to [0, 100].
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept for currency values.
const Scale int32 = 2

var hundred = decimal.NewFromInt(100)

// Split divides gross into the referrer commission and the retained admin part.
// The commission is rounded half away from zero to two places; admin is the
// remainder so commission + admin == gross exactly.
func Split(gross, percentage decimal.Decimal) (commission, admin decimal.Decimal) {
	commission = gross.Mul(percentage).Div(hundred).Round(Scale)
	admin = gross.Sub(commission)
	return commission, admin
}

// ParseAmount parses a currency string, rejecting more than two decimal places.
func ParseAmount(raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	if err := CheckScale(value); err != nil {
		return decimal.Zero, err
	}
	return value, nil
}

// CheckScale rejects values that cannot be represented at currency precision.
func CheckScale(value decimal.Decimal) error {
	if !value.Equal(value.Round(Scale)) {
		return fmt.Errorf("amount %s has more than %d decimal places", value.String(), Scale)
	}
	return nil
}

// ValidatePercentage checks the rate is within [0, 100] with at most two decimal places.
func ValidatePercentage(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return fmt.Errorf("percentage %s must be within [0, 100]", rate.String())
	}
	if !rate.Equal(rate.Round(Scale)) {
		return fmt.Errorf("percentage %s has more than %d decimal places", rate.String(), Scale)
	}
	return nil
}

// Normalize rounds to currency precision; storage drivers may hand back floats.
func Normalize(value decimal.Decimal) decimal.Decimal {
	return value.Round(Scale)
}

// Format renders a fixed two-decimal string.
func Format(value decimal.Decimal) string {
	return value.StringFixed(Scale)
}
