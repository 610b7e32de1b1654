package generic

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SCHEDULE PERIOD - One row of a repayment schedule
// =============================================================================

// SchedulePeriod is either an installment row or a disbursement row.
//
// Disbursement rows ("period 0" rows) carry a positive PrincipalDisbursed
// and have PeriodNumber 0 with FromDate == DueDate == the tranche date. A down
// payment is an installment row with IsDownPayment set and the same
// degenerate date range.
type SchedulePeriod struct {
	PeriodNumber int       `json:"periodNumber"`
	FromDate     TimePoint `json:"fromDate"`
	DueDate      TimePoint `json:"dueDate"`

	PrincipalDisbursed        decimal.Decimal `json:"principalDisbursed"`
	PrincipalDue              decimal.Decimal `json:"principalDue"`
	InterestDue               decimal.Decimal `json:"interestDue"`
	FeeChargesDue             decimal.Decimal `json:"feeChargesDue"`
	PenaltyChargesDue         decimal.Decimal `json:"penaltyChargesDue"`
	PrincipalOutstandingAfter decimal.Decimal `json:"principalOutstandingAfter"`

	IsDownPayment            bool `json:"isDownPayment"`
	IsRecomputedFromExisting bool `json:"isRecomputedFromExisting"`
	ObligationsMet           bool `json:"obligationsMet"`
}

// IsDisbursement reports whether the row records a tranche. Tranche
// amounts are always positive, installment rows never disburse.
func (p SchedulePeriod) IsDisbursement() bool {
	return p.PrincipalDisbursed.IsPositive()
}

// TotalDue is principal + interest + fees + penalties.
func (p SchedulePeriod) TotalDue() decimal.Decimal {
	return p.PrincipalDue.Add(p.InterestDue).Add(p.FeeChargesDue).Add(p.PenaltyChargesDue)
}

// IsZeroValue reports whether the installment owes neither principal nor interest.
func (p SchedulePeriod) IsZeroValue() bool {
	return p.PrincipalDue.IsZero() && p.InterestDue.IsZero()
}

// sortRank orders rows sharing a date: installment, disbursement, down payment.
func (p SchedulePeriod) sortRank() int {
	switch {
	case p.IsDownPayment:
		return 2
	case p.IsDisbursement():
		return 1
	default:
		return 0
	}
}

// =============================================================================
// SCHEDULE
// =============================================================================

// Schedule is an ordered sequence of periods.
type Schedule struct {
	Periods []SchedulePeriod `json:"periods"`
}

// Clone returns a deep copy; decimal values are immutable.
func (s Schedule) Clone() Schedule {
	out := make([]SchedulePeriod, len(s.Periods))
	copy(out, s.Periods)
	return Schedule{Periods: out}
}

// Installments returns the installment rows, down payment included.
func (s Schedule) Installments() []SchedulePeriod {
	var out []SchedulePeriod
	for _, p := range s.Periods {
		if !p.IsDisbursement() {
			out = append(out, p)
		}
	}
	return out
}

// Disbursements returns the tranches recorded by period-0 rows.
func (s Schedule) Disbursements() []Disbursement {
	var out []Disbursement
	for _, p := range s.Periods {
		if p.IsDisbursement() {
			out = append(out, Disbursement{Date: p.DueDate, Amount: p.PrincipalDisbursed})
		}
	}
	return out
}

// FindByDueDate returns the index of the installment due on d, or -1.
func (s Schedule) FindByDueDate(d TimePoint) int {
	for i, p := range s.Periods {
		if !p.IsDisbursement() && p.DueDate.Equal(d) {
			return i
		}
	}
	return -1
}

// FindByNumber returns the index of installment number n, or -1.
func (s Schedule) FindByNumber(n int) int {
	for i, p := range s.Periods {
		if !p.IsDisbursement() && p.PeriodNumber == n {
			return i
		}
	}
	return -1
}

// TotalPrincipal sums PrincipalDue over installments.
func (s Schedule) TotalPrincipal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Periods {
		total = total.Add(p.PrincipalDue)
	}
	return total
}

// TotalInterest sums InterestDue over installments.
func (s Schedule) TotalInterest() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Periods {
		total = total.Add(p.InterestDue)
	}
	return total
}

// TotalDisbursed sums PrincipalDisbursed over period-0 rows.
func (s Schedule) TotalDisbursed() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Periods {
		total = total.Add(p.PrincipalDisbursed)
	}
	return total
}

// Sort orders rows by date; ties go installment, disbursement, down payment.
func (s Schedule) Sort() {
	sort.SliceStable(s.Periods, func(i, j int) bool {
		a, b := s.Periods[i], s.Periods[j]
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		return a.sortRank() < b.sortRank()
	})
}

// Renumber assigns installment numbers starting at first, in row order.
func (s Schedule) Renumber(first int) {
	n := first
	for i := range s.Periods {
		if s.Periods[i].IsDisbursement() {
			continue
		}
		s.Periods[i].PeriodNumber = n
		n++
	}
}

// ValidateOrdering checks that installment due dates strictly increase and
// that each installment's range is well formed.
func (s Schedule) ValidateOrdering() error {
	var prev *SchedulePeriod
	for i := range s.Periods {
		p := &s.Periods[i]
		if p.IsDisbursement() {
			continue
		}
		if p.DueDate.Before(p.FromDate) || (!p.IsDownPayment && !p.DueDate.After(p.FromDate)) {
			return &DateOrderingViolation{PeriodNumber: p.PeriodNumber, DueDate: p.DueDate, PreviousDueDate: p.FromDate}
		}
		if prev != nil && !p.DueDate.After(prev.DueDate) {
			return &DateOrderingViolation{PeriodNumber: p.PeriodNumber, DueDate: p.DueDate, PreviousDueDate: prev.DueDate}
		}
		prev = p
	}
	return nil
}

// ValidateConservation checks that principal due sums to principal disbursed.
func (s Schedule) ValidateConservation() error {
	disbursed, due := s.TotalDisbursed(), s.TotalPrincipal()
	if !disbursed.Equal(due) {
		return &ConservationError{Disbursed: disbursed, PrincipalDue: due}
	}
	return nil
}

// MaturityDate is the due date of the last installment.
func (s Schedule) MaturityDate() TimePoint {
	for i := len(s.Periods) - 1; i >= 0; i-- {
		if !s.Periods[i].IsDisbursement() {
			return s.Periods[i].DueDate
		}
	}
	return TimePoint{}
}
