/*
projection.go - Schedule summaries

PURPOSE:
  Summarize reduces a schedule to the figures a loan officer looks at
  first: what was lent, what will be repaid, when the loan matures and
  how large the regular installment is.

SEE ALSO:
  - period.go: Column totals
  - api/dto.go: Rendered alongside the periods
*/
package generic

import "github.com/shopspring/decimal"

// ScheduleSummary holds schedule-wide totals.
type ScheduleSummary struct {
	NumberOfInstallments int             `json:"numberOfInstallments"`
	TotalDisbursed       decimal.Decimal `json:"totalDisbursed"`
	TotalPrincipal       decimal.Decimal `json:"totalPrincipal"`
	TotalInterest        decimal.Decimal `json:"totalInterest"`
	TotalFees            decimal.Decimal `json:"totalFees"`
	TotalPenalties       decimal.Decimal `json:"totalPenalties"`
	TotalRepayment       decimal.Decimal `json:"totalRepayment"`
	FirstDueDate         TimePoint       `json:"firstDueDate"`
	MaturityDate         TimePoint       `json:"maturityDate"`

	// LargestInstallment is the maximum TotalDue over installment rows.
	LargestInstallment decimal.Decimal `json:"largestInstallment"`
}

// Summarize computes totals over s.
func Summarize(s Schedule) ScheduleSummary {
	sum := ScheduleSummary{
		TotalDisbursed: s.TotalDisbursed(),
		TotalPrincipal: s.TotalPrincipal(),
		TotalInterest:  s.TotalInterest(),
		TotalFees:      decimal.Zero,
		TotalPenalties: decimal.Zero,
		MaturityDate:   s.MaturityDate(),
	}
	for _, p := range s.Periods {
		if p.IsDisbursement() {
			continue
		}
		if sum.NumberOfInstallments == 0 {
			sum.FirstDueDate = p.DueDate
		}
		sum.NumberOfInstallments++
		sum.TotalFees = sum.TotalFees.Add(p.FeeChargesDue)
		sum.TotalPenalties = sum.TotalPenalties.Add(p.PenaltyChargesDue)
		if due := p.TotalDue(); due.GreaterThan(sum.LargestInstallment) {
			sum.LargestInstallment = due
		}
	}
	sum.TotalRepayment = sum.TotalPrincipal.Add(sum.TotalInterest).Add(sum.TotalFees).Add(sum.TotalPenalties)
	return sum
}
