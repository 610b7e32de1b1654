package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// DAY COUNT - Fraction of a year between two dates
// =============================================================================

var (
	hundred = decimal.NewFromInt(100)
	d360    = decimal.NewFromInt(360)
	d365    = decimal.NewFromInt(365)
	d366    = decimal.NewFromInt(366)
)

// YearFraction returns the fraction of a year in [from, to).
//
// The 360 and 365 bases divide the actual day count by a fixed denominator.
// The actual basis splits the span at year boundaries and divides each
// segment by the length of its own calendar year.
func YearFraction(from, to TimePoint, basis DaysInYearBasis) decimal.Decimal {
	if !to.After(from) {
		return decimal.Zero
	}
	switch basis {
	case DaysInYear360:
		return decimal.NewFromInt(int64(DaysBetween(from, to))).Div(d360)
	case DaysInYearActual:
		total := decimal.Zero
		cursor := from
		for cursor.Before(to) {
			next := NewTimePoint(cursor.Year()+1, 1, 1)
			if next.After(to) {
				next = to
			}
			denom := d365
			if IsLeapYear(cursor.Year()) {
				denom = d366
			}
			total = total.Add(decimal.NewFromInt(int64(DaysBetween(cursor, next))).Div(denom))
			cursor = next
		}
		return total
	default:
		return decimal.NewFromInt(int64(DaysBetween(from, to))).Div(d365)
	}
}

// =============================================================================
// PERIOD RATES
// =============================================================================

// AnnualRate is the nominal annual rate as a fraction (12% -> 0.12).
func (t LoanTerms) AnnualRate() decimal.Decimal {
	return t.NominalAnnualRate.Div(hundred)
}

// NominalPeriodRate is the rate for one regular repayment interval.
// Day-based cadences use the fixed basis denominator; the actual basis
// uses 365 for this nominal figure.
func (t LoanTerms) NominalPeriodRate() decimal.Decimal {
	annual := t.AnnualRate()
	every := decimal.NewFromInt(int64(t.RepaymentEvery))
	switch t.RepaymentFrequency {
	case FrequencyDays:
		denom := d365
		if t.DaysInYear == DaysInYear360 {
			denom = d360
		}
		return annual.Mul(every).Div(denom)
	case FrequencyWeeks:
		return annual.Mul(every).Div(decimal.NewFromInt(52))
	case FrequencyYears:
		return annual.Mul(every)
	default:
		return annual.Mul(every).Div(decimal.NewFromInt(12))
	}
}

// PeriodRate returns r_i for the span [from, due).
//
//   - daily: annual rate × year fraction of the span
//   - same_as_repayment_period: the nominal period rate for every whole
//     interval the span covers; irregular spans (a custom first repayment
//     date, a moved due date) are pro-rated by year fraction
func (t LoanTerms) PeriodRate(from, due TimePoint) decimal.Decimal {
	if !due.After(from) {
		return decimal.Zero
	}
	if t.InterestCalculationPeriod == CalculationDaily {
		return t.AnnualRate().Mul(YearFraction(from, due, t.DaysInYear))
	}
	if m := t.RepaymentFrequency.Intervals(from, due, t.RepaymentEvery); m > 0 {
		return t.NominalPeriodRate().Mul(decimal.NewFromInt(int64(m)))
	}
	return t.AnnualRate().Mul(YearFraction(from, due, t.DaysInYear))
}

// =============================================================================
// DUE DATES
// =============================================================================

// DueDates returns the n regular due dates for a loan starting on start.
// Every date is computed from the anchor, never from the previous date.
func (t LoanTerms) DueDates(start TimePoint, n int) []TimePoint {
	anchor, offset := start, 1
	if !t.FirstRepaymentDate.IsZero() {
		anchor, offset = t.FirstRepaymentDate, 0
	}
	dates := make([]TimePoint, n)
	for i := 0; i < n; i++ {
		dates[i] = t.RepaymentFrequency.Advance(anchor, (i+offset)*t.RepaymentEvery)
	}
	return dates
}

// AccruedInterest is the unrounded interest on basis over a period with
// rate r, plus the pro-rated interest on tranches that landed inside it.
func AccruedInterest(basis, rate decimal.Decimal, from, due TimePoint, landed []Disbursement) decimal.Decimal {
	accrued := basis.Mul(rate)
	span := DaysBetween(from, due)
	if span <= 0 {
		return accrued
	}
	for _, d := range landed {
		remaining := DaysBetween(d.Date, due)
		accrued = accrued.Add(d.Amount.Mul(rate).Mul(decimal.NewFromInt(int64(remaining))).Div(decimal.NewFromInt(int64(span))))
	}
	return accrued
}
