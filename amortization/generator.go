/*
Package amortization generates base repayment schedules from loan terms.

PURPOSE:
  Generate is a pure function: the same terms and tranches always yield
  the same schedule. It lays out due dates from the anchor, derives each
  period's rate, lets the policy split every installment into principal
  and interest, and plugs the last installment so principal due sums to
  principal disbursed.

GENERATION STEPS:
  1. Validate terms and tranches
  2. Lay out n due dates from the anchor (first repayment date or start)
  3. Emit the first tranche (and the down payment, if any)
  4. For every installment:
       a. Land tranches dated inside [from, due), pro-rating their interest
       b. Re-solve the policy when a tranche landed or at the start
       c. Split, apply principal/interest grace, plug the last installment
  5. Sort, number, recompute running balance, check invariants

GRACE:
  Principal grace: the first g installments carry zero principal and the
  policy amortizes over the remaining n − g.
  Interest grace: the first g installments carry zero interest. The
  interest is waived, not deferred. Under equal installments the
  principal is still installment − computed interest.

EXAMPLE:
  100,000 at 12% p.a., 4 monthly installments, declining balance, equal
  installments, first disbursement 2011-09-20:

    #1  2011-10-20  principal 24628.11  interest 1000.00
    #2  2011-11-20  principal 24874.39  interest  753.72
    #3  2011-12-20  principal 25123.13  interest  504.98
    #4  2012-01-20  principal 25374.37  interest  253.74

SEE ALSO:
  - policies.go: The four strategies
  - holiday/adjuster.go: Moves due dates off closed days afterwards
*/
package amortization

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/generic"
)

// Generate builds the base schedule. An empty disbursements slice means a
// single tranche of the full principal on the expected disbursement date.
func Generate(terms generic.LoanTerms, disbursements []generic.Disbursement) (generic.Schedule, error) {
	if err := terms.Validate(); err != nil {
		return generic.Schedule{}, err
	}
	kind, err := terms.Kind()
	if err != nil {
		return generic.Schedule{}, err
	}
	policy, err := For(kind)
	if err != nil {
		return generic.Schedule{}, err
	}

	draws, err := normalizeTranches(terms, disbursements)
	if err != nil {
		return generic.Schedule{}, err
	}

	start := draws[0].Date
	initial := decimal.Zero
	var tranches []generic.Disbursement
	for _, d := range draws {
		if d.Date.Equal(start) {
			initial = initial.Add(d.Amount)
		} else {
			tranches = append(tranches, d)
		}
	}

	n := terms.NumberOfInstallments
	dues := terms.DueDates(start, n)
	if !dues[0].After(start) {
		return generic.Schedule{}, &generic.InvalidTermsError{Field: "firstRepaymentDate", Value: dues[0].String(), Reason: "must be after the first disbursement"}
	}
	if len(tranches) > 0 && !tranches[len(tranches)-1].Date.Before(dues[n-1]) {
		last := tranches[len(tranches)-1]
		return generic.Schedule{}, &generic.InvalidTermsError{Field: "disbursements", Value: last.Date.String(), Reason: "tranche falls on or after maturity " + dues[n-1].String()}
	}

	froms := make([]generic.TimePoint, n)
	rates := make([]decimal.Decimal, n)
	for j := 0; j < n; j++ {
		froms[j] = start
		if j > 0 {
			froms[j] = dues[j-1]
		}
		rates[j] = terms.PeriodRate(froms[j], dues[j])
	}

	periods := []generic.SchedulePeriod{disbursementRow(start, initial)}

	downPayment := decimal.Zero
	if terms.DownPaymentPercentage.IsPositive() {
		downPayment = terms.Round(initial.Mul(terms.DownPaymentPercentage).Div(decimal.NewFromInt(100)))
		periods = append(periods, generic.SchedulePeriod{
			FromDate:      start,
			DueDate:       start,
			PrincipalDue:  downPayment,
			InterestDue:   decimal.Zero,
			IsDownPayment: true,
		})
	}

	balance := initial.Sub(downPayment)
	basis := balance
	st := &State{
		Terms:        terms,
		Rates:        rates,
		AmortizeFrom: terms.GraceOnPrincipalPeriods,
	}

	next := 0
	for j := 0; j < n; j++ {
		from, due := froms[j], dues[j]

		var landed []generic.Disbursement
		for next < len(tranches) && tranches[next].Date.Before(due) {
			landed = append(landed, tranches[next])
			next++
		}

		st.Index = j
		st.AccruedOnBalance = generic.AccruedInterest(balance, rates[j], from, due, landed)
		st.AccruedOnBasis = generic.AccruedInterest(basis, rates[j], from, due, landed)
		for _, d := range landed {
			balance = balance.Add(d.Amount)
			basis = basis.Add(d.Amount)
			periods = append(periods, disbursementRow(d.Date, d.Amount))
		}
		st.Balance = balance
		st.Basis = basis
		if j == 0 || len(landed) > 0 {
			policy.Reset(st)
		}

		principal, interest := policy.Plan(st)
		if j == n-1 {
			principal = balance
			interest = policy.LastInterest(st, interest)
		}
		planned := interest
		if j < terms.GraceOnInterestPeriods {
			interest = decimal.Zero
		}
		if principal.IsNegative() {
			return generic.Schedule{}, &generic.NegativeResidualError{Date: due, Principal: principal}
		}
		if principal.GreaterThan(balance) {
			return generic.Schedule{}, &generic.NegativeResidualError{Date: due, Principal: balance.Sub(principal)}
		}
		balance = balance.Sub(principal)
		st.PlannedInterest = st.PlannedInterest.Add(planned)

		periods = append(periods, generic.SchedulePeriod{
			FromDate:                  from,
			DueDate:                   due,
			PrincipalDue:              principal,
			InterestDue:               interest,
			PrincipalOutstandingAfter: balance,
		})
	}

	schedule := generic.Schedule{Periods: periods}
	if err := finalize(schedule); err != nil {
		return generic.Schedule{}, err
	}
	return schedule, nil
}

// finalize sorts, numbers and checks a freshly built schedule.
func finalize(s generic.Schedule) error {
	s.Sort()
	s.Renumber(1)
	s.RecomputeOutstanding()
	if err := s.ValidateOrdering(); err != nil {
		return err
	}
	return s.ValidateConservation()
}

func normalizeTranches(terms generic.LoanTerms, disbursements []generic.Disbursement) ([]generic.Disbursement, error) {
	if len(disbursements) == 0 {
		return terms.DefaultDisbursements(), nil
	}
	draws := make([]generic.Disbursement, len(disbursements))
	copy(draws, disbursements)
	sort.SliceStable(draws, func(i, j int) bool { return draws[i].Date.Before(draws[j].Date) })

	for _, d := range draws {
		if d.Date.IsZero() {
			return nil, &generic.InvalidTermsError{Field: "disbursements", Reason: "tranche date is required"}
		}
		if !d.Amount.IsPositive() {
			return nil, &generic.InvalidTermsError{Field: "disbursements", Value: d.Amount.String(), Reason: "tranche amount must be positive"}
		}
	}
	if total := generic.TotalDisbursed(draws); !total.Equal(terms.Principal) {
		return nil, &generic.InvalidTermsError{Field: "disbursements", Value: total.String(), Reason: "tranches must sum to the principal " + terms.Principal.String()}
	}
	if !terms.FirstRepaymentDate.IsZero() && !terms.FirstRepaymentDate.After(draws[0].Date) {
		return nil, &generic.InvalidTermsError{Field: "firstRepaymentDate", Value: terms.FirstRepaymentDate.String(), Reason: "must be after the first disbursement"}
	}
	return draws, nil
}

func disbursementRow(date generic.TimePoint, amount decimal.Decimal) generic.SchedulePeriod {
	return generic.SchedulePeriod{
		FromDate:           date,
		DueDate:            date,
		PrincipalDisbursed: amount,
		PrincipalDue:       decimal.Zero,
		InterestDue:        decimal.Zero,
	}
}
