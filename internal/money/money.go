// Package money converts decimal currency amounts to integer minor units.
// Every component above this one stores and computes on minor units only; no
// floating-point arithmetic touches a balance.
package money

import (
	"errors"
	"fmt"
	"math"
)

// MinorFactor is the number of minor units per major unit (kobo per naira).
const MinorFactor = 100

// DefaultCurrency is applied when a request does not name one.
const DefaultCurrency = "NGN"

// ErrInvalidAmount is returned for non-finite, non-positive or non-integer
// minor-unit values. It is rejected before any write.
var ErrInvalidAmount = errors.New("invalid amount")

// ToMinorUnits converts a decimal amount to minor units, rounding to the
// nearest integer.
func ToMinorUnits(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("%w: amount must be finite", ErrInvalidAmount)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive, got %v", ErrInvalidAmount, amount)
	}
	return int64(math.Round(amount * MinorFactor)), nil
}

// FromMinorUnits converts minor units back to a decimal amount. Display only;
// the result must never feed back into arithmetic.
func FromMinorUnits(minor int64) float64 {
	return float64(minor) / MinorFactor
}

// IsValidAmount reports whether a minor-unit value is a positive integer.
func IsValidAmount(minor int64) bool {
	return minor > 0
}
