/*
balance.go - Outstanding principal through a schedule

PURPOSE:
  A schedule's running balance is never stored independently of its
  rows. PrincipalOutstandingAfter is derived by walking the rows in
  order: disbursements add, principal due subtracts.

  Variation and reschedule both edit rows and then call
  RecomputeOutstanding so the balance column stays consistent with the
  principal column.

EXAMPLE:
  100,000 disbursed, four installments of ~25,000 principal:

    row         disbursed   principal   outstanding after
    disb        100000.00               100000.00
    #1                      24628.11     75371.89
    #2                      24874.39     50497.50
    #3                      25123.13     25374.37
    #4                      25374.37         0.00

SEE ALSO:
  - period.go: Schedule rows
  - reschedule/planner.go: Uses OutstandingBefore to size the new tail
*/
package generic

import "github.com/shopspring/decimal"

// RecomputeOutstanding rewrites PrincipalOutstandingAfter on every row.
func (s Schedule) RecomputeOutstanding() {
	balance := decimal.Zero
	for i := range s.Periods {
		p := &s.Periods[i]
		balance = balance.Add(p.PrincipalDisbursed).Sub(p.PrincipalDue)
		p.PrincipalOutstandingAfter = balance
	}
}

// OutstandingBefore returns the principal outstanding just before row idx:
// everything disbursed strictly before cutoff minus principal due on the
// installment rows preceding idx.
func (s Schedule) OutstandingBefore(idx int, cutoff TimePoint) decimal.Decimal {
	balance := decimal.Zero
	for i, p := range s.Periods {
		if p.IsDisbursement() {
			if p.DueDate.Before(cutoff) {
				balance = balance.Add(p.PrincipalDisbursed)
			}
			continue
		}
		if i < idx {
			balance = balance.Sub(p.PrincipalDue)
		}
	}
	return balance
}

// LastSettledNumber returns the highest installment number whose
// obligations are met, or 0 when none are.
func (s Schedule) LastSettledNumber() int {
	last := 0
	for _, p := range s.Periods {
		if !p.IsDisbursement() && p.ObligationsMet && p.PeriodNumber > last {
			last = p.PeriodNumber
		}
	}
	return last
}
