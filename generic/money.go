/*
money.go - Currency rounding and residual plugging

PURPOSE:
  Every amount written into a schedule is rounded to the currency's
  precision with the loan's rounding mode. Rounding leaves residue, so
  the last installment of every schedule is "plugged": its value is the
  exact remainder that makes the column sum to its target.

ROUNDING MODES:
  half_up    0.125 -> 0.13, -0.125 -> -0.13 (half away from zero, default)
  half_even  0.125 -> 0.12, 0.135 -> 0.14   (banker's rounding)
  half_down  0.125 -> 0.12, 0.126 -> 0.13   (half toward zero)
  up         away from zero
  down       toward zero
  ceiling    toward +infinity
  floor      toward -infinity

SEE ALSO:
  - types.go: LoanTerms.Round binds digits and mode
  - period.go: Schedule totals
*/
package generic

import (
	"github.com/shopspring/decimal"
)

type RoundingMode string

const (
	RoundHalfUp   RoundingMode = "half_up"
	RoundHalfEven RoundingMode = "half_even"
	RoundHalfDown RoundingMode = "half_down"
	RoundUp       RoundingMode = "up"
	RoundDown     RoundingMode = "down"
	RoundCeiling  RoundingMode = "ceiling"
	RoundFloor    RoundingMode = "floor"
)

// Valid accepts the empty mode as the half_up default.
func (m RoundingMode) Valid() bool {
	switch m {
	case "", RoundHalfUp, RoundHalfEven, RoundHalfDown, RoundUp, RoundDown, RoundCeiling, RoundFloor:
		return true
	}
	return false
}

var half = decimal.NewFromFloat(0.5)

// Round rounds d to digits decimal places.
func Round(d decimal.Decimal, digits int, mode RoundingMode) decimal.Decimal {
	places := int32(digits)
	switch mode {
	case RoundHalfEven:
		return d.RoundBank(places)
	case RoundHalfDown:
		return roundHalfDown(d, places)
	case RoundUp:
		return d.RoundUp(places)
	case RoundDown:
		return d.RoundDown(places)
	case RoundCeiling:
		return d.RoundCeil(places)
	case RoundFloor:
		return d.RoundFloor(places)
	default:
		return d.Round(places)
	}
}

// shopspring has no half-toward-zero mode.
func roundHalfDown(d decimal.Decimal, places int32) decimal.Decimal {
	shifted := d.Shift(places)
	whole := shifted.Truncate(0)
	if shifted.Sub(whole).Abs().GreaterThan(half) {
		if d.IsNegative() {
			whole = whole.Sub(decimal.NewFromInt(1))
		} else {
			whole = whole.Add(decimal.NewFromInt(1))
		}
	}
	return whole.Shift(-places)
}

// PlugResidual returns target minus the sum of parts. The last period of a
// column takes this value instead of its own computed amount.
func PlugResidual(target decimal.Decimal, parts ...decimal.Decimal) decimal.Decimal {
	return target.Sub(decimal.Sum(decimal.Zero, parts...))
}

// SplitEvenly divides total into n rounded shares; the last share absorbs
// the rounding residue.
func SplitEvenly(total decimal.Decimal, n int, round func(decimal.Decimal) decimal.Decimal) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	shares := make([]decimal.Decimal, n)
	share := round(total.Div(decimal.NewFromInt(int64(n))))
	for i := 0; i < n-1; i++ {
		shares[i] = share
	}
	shares[n-1] = PlugResidual(total, shares[:n-1]...)
	return shares
}

// SplitProportionally divides total across weights; the last share absorbs
// the rounding residue. A zero weight sum falls back to an even split.
func SplitProportionally(total decimal.Decimal, weights []decimal.Decimal, round func(decimal.Decimal) decimal.Decimal) []decimal.Decimal {
	n := len(weights)
	if n == 0 {
		return nil
	}
	sum := decimal.Sum(decimal.Zero, weights...)
	if sum.IsZero() {
		return SplitEvenly(total, n, round)
	}
	shares := make([]decimal.Decimal, n)
	for i := 0; i < n-1; i++ {
		shares[i] = round(total.Mul(weights[i]).Div(sum))
	}
	shares[n-1] = PlugResidual(total, shares[:n-1]...)
	return shares
}
