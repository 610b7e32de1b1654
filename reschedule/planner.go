/*
Package reschedule regenerates the unsettled tail of a committed schedule.

PURPOSE:
  A reschedule request names a pivot installment and asks for new terms
  from there on: principal or interest grace, extra installments, a new
  rate, or a moved first due date. PlanRequest is pure: it takes the loan's
  terms, the committed schedule, the request and the calendar, and
  returns the schedule that approval would commit.

PLANNING STEPS:
  ┌─────────────────────────────────────────────────────────────────────┐
  │ 1. Resolve the pivot by number and/or date                          │
  │ 2. Split: head = rows before the pivot, tail = pivot onward         │
  │ 3. Carry the outstanding balance and future tranches into new terms │
  │ 4. Generate + holiday-adjust the new tail                           │
  │ 5. Carry charges to the covering new row, waive zero-value rows     │
  │ 6. Head (marked recomputed) + renumbered tail, invariants checked   │
  └─────────────────────────────────────────────────────────────────────┘

HEAD AND TAIL:
  The head is never touched. Tranches dated on or after the pivot's
  FromDate belong to the tail: the one on FromDate joins the carried
  balance, later ones land inside the new tail as usual.

CADENCE:
  When the pivot's due date is a holiday-shifted regular date, the new
  tail is anchored on the regular date so later installments keep the
  loan's original rhythm. Otherwise the committed due date anchors it.

SEE ALSO:
  - processor.go: Request lifecycle around PlanRequest
  - amortization/generator.go: Produces the new tail
  - holiday/adjuster.go: Shifts the new tail's dates
*/
package reschedule

import (
	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/amortization"
	"github.com/warp/loan-engine/generic"
	"github.com/warp/loan-engine/holiday"
)

// ChangeKind classifies one row of the old/new tail diff.
type ChangeKind string

const (
	ChangeAdded     ChangeKind = "added"
	ChangeRemoved   ChangeKind = "removed"
	ChangeModified  ChangeKind = "modified"
	ChangeUnchanged ChangeKind = "unchanged"
)

// PeriodChange pairs an old and a new tail row sharing a due date. Old is
// nil for added rows, New is nil for removed ones.
type PeriodChange struct {
	Kind    ChangeKind              `json:"kind"`
	DueDate generic.TimePoint       `json:"dueDate"`
	Old     *generic.SchedulePeriod `json:"old,omitempty"`
	New     *generic.SchedulePeriod `json:"new,omitempty"`
}

// Plan is the outcome of planning a request.
type Plan struct {
	Schedule      generic.Schedule         `json:"schedule"`
	PivotNumber   int                      `json:"pivotNumber"`
	Outstanding   decimal.Decimal          `json:"outstanding"`
	OldTail       []generic.SchedulePeriod `json:"oldTail"`
	NewTail       []generic.SchedulePeriod `json:"newTail"`
	Changes       []PeriodChange           `json:"changes"`
	Waivers       []generic.WaiverNotice   `json:"waivers"`
	AdjustedTerms generic.LoanTerms        `json:"adjustedTerms"`
}

// PlanRequest computes the schedule req would produce against s. Nothing is
// modified and nothing is persisted.
func PlanRequest(loanID generic.LoanID, terms generic.LoanTerms, s generic.Schedule, req generic.RescheduleRequest, cal holiday.Calendar) (*Plan, error) {
	pivotIdx, err := resolvePivot(s, req)
	if err != nil {
		return nil, err
	}
	pivot := s.Periods[pivotIdx]

	var head, oldTail []generic.SchedulePeriod
	var tailTranches []generic.Disbursement
	for i, p := range s.Periods {
		switch {
		case p.IsDisbursement() && !p.DueDate.Before(pivot.FromDate):
			tailTranches = append(tailTranches, generic.Disbursement{Date: p.DueDate, Amount: p.PrincipalDisbursed})
		case p.IsDisbursement() || i < pivotIdx:
			head = append(head, p)
		default:
			oldTail = append(oldTail, p)
		}
	}
	outstanding := s.OutstandingBefore(pivotIdx, pivot.FromDate)

	if !req.AdjustedDueDate.IsZero() && req.AdjustedDueDate.Before(pivot.DueDate) {
		return nil, &generic.InvalidRequestError{Field: "adjustedDueDate", Reason: "must not be before the pivot due date " + pivot.DueDate.String()}
	}

	start, first := anchors(terms, s, pivotIdx, req, cal)
	adjusted := adjustTerms(terms, req, len(oldTail), start, first)

	draws := []generic.Disbursement{{Date: start, Amount: outstanding}}
	for _, t := range tailTranches {
		if t.Date.Equal(pivot.FromDate) {
			draws[0].Amount = draws[0].Amount.Add(t.Amount)
		} else {
			draws = append(draws, t)
		}
	}
	adjusted.Principal = generic.TotalDisbursed(draws)

	generated, err := amortization.Generate(adjusted, draws)
	if err != nil {
		return nil, err
	}
	generated, err = holiday.Adjust(generated, cal)
	if err != nil {
		return nil, err
	}

	newTail := generated.Installments()
	newTail[0].FromDate = pivot.FromDate
	waivers := carryCharges(loanID, oldTail, newTail)

	periods := make([]generic.SchedulePeriod, 0, len(head)+len(newTail)+len(tailTranches))
	for _, p := range head {
		if !p.IsDisbursement() {
			p.IsRecomputedFromExisting = true
		}
		periods = append(periods, p)
	}
	for _, t := range tailTranches {
		periods = append(periods, generic.SchedulePeriod{
			FromDate:           t.Date,
			DueDate:            t.Date,
			PrincipalDisbursed: t.Amount,
			PrincipalDue:       decimal.Zero,
			InterestDue:        decimal.Zero,
		})
	}
	periods = append(periods, newTail...)

	out := generic.Schedule{Periods: periods}
	out.Sort()
	renumberTail(out, pivot.PeriodNumber)
	out.RecomputeOutstanding()
	if err := out.ValidateOrdering(); err != nil {
		return nil, err
	}
	if err := out.ValidateConservation(); err != nil {
		return nil, err
	}

	committedTail := tailOf(out)
	return &Plan{
		Schedule:      out,
		PivotNumber:   pivot.PeriodNumber,
		Outstanding:   outstanding,
		OldTail:       oldTail,
		NewTail:       committedTail,
		Changes:       diff(oldTail, committedTail),
		Waivers:       waivers,
		AdjustedTerms: adjusted,
	}, nil
}

// =============================================================================
// PIVOT
// =============================================================================

func resolvePivot(s generic.Schedule, req generic.RescheduleRequest) (int, error) {
	byNumber, byDate := -1, -1
	if req.RescheduleFromInstallment > 0 {
		byNumber = s.FindByNumber(req.RescheduleFromInstallment)
		if byNumber < 0 {
			return -1, &generic.InvalidRequestError{Field: "rescheduleFromInstallment", Reason: "no such installment"}
		}
	}
	if !req.RescheduleFromDate.IsZero() {
		byDate = s.FindByDueDate(req.RescheduleFromDate)
		if byDate < 0 {
			return -1, &generic.UnknownAnchorError{Date: req.RescheduleFromDate}
		}
	}

	idx := byNumber
	switch {
	case byNumber < 0 && byDate < 0:
		return -1, &generic.InvalidRequestError{Field: "rescheduleFromDate", Reason: "a pivot installment number or due date is required"}
	case byNumber < 0:
		idx = byDate
	case byDate >= 0 && byDate != byNumber:
		return -1, &generic.InvalidRequestError{Field: "rescheduleFromDate", Reason: "does not match installment number"}
	}

	pivot := s.Periods[idx]
	settled := s.LastSettledNumber()
	if pivot.IsDownPayment || pivot.PeriodNumber <= settled {
		return -1, &generic.PivotBeforeHeadError{Pivot: pivot.PeriodNumber, LastSettled: settled}
	}
	return idx, nil
}

// anchors returns the start of the new tail and its first due date.
func anchors(terms generic.LoanTerms, s generic.Schedule, pivotIdx int, req generic.RescheduleRequest, cal holiday.Calendar) (generic.TimePoint, generic.TimePoint) {
	pivot := s.Periods[pivotIdx]
	start, first := pivot.FromDate, pivot.DueDate

	ordinal := 0
	for i := 0; i <= pivotIdx; i++ {
		if p := s.Periods[i]; !p.IsDisbursement() && !p.IsDownPayment {
			ordinal++
		}
	}
	tranches := s.Disbursements()
	if len(tranches) > 0 && ordinal > 0 {
		regular := terms.DueDates(tranches[0].Date, ordinal)
		if r := regular[ordinal-1]; sameAfterAdjust(cal, r, pivot.DueDate) {
			first = r
		}
		if ordinal > 1 {
			if rp := regular[ordinal-2]; rp.Before(pivot.FromDate) && sameAfterAdjust(cal, rp, pivot.FromDate) {
				start = rp
			}
		}
	}
	if !req.AdjustedDueDate.IsZero() {
		first = req.AdjustedDueDate
	}
	if !first.After(start) {
		first = pivot.DueDate
	}
	return start, first
}

func sameAfterAdjust(cal holiday.Calendar, regular, committed generic.TimePoint) bool {
	adjusted, err := cal.AdjustDate(regular)
	return err == nil && adjusted.Equal(committed)
}

func adjustTerms(terms generic.LoanTerms, req generic.RescheduleRequest, tailLen int, start, first generic.TimePoint) generic.LoanTerms {
	out := terms
	out.NumberOfInstallments = tailLen + req.ExtraTerms
	out.GraceOnPrincipalPeriods = req.GraceOnPrincipal
	out.GraceOnInterestPeriods = req.GraceOnInterest
	if req.RecalculateInterest && req.NewInterestRate != nil {
		out.NominalAnnualRate = *req.NewInterestRate
	}
	out.DownPaymentPercentage = decimal.Zero
	out.ExpectedDisbursementDate = start
	out.FirstRepaymentDate = first
	return out
}

// =============================================================================
// TAIL
// =============================================================================

// carryCharges moves fees and penalties from the old tail onto the new
// one. Each old row's charges land on the first new row due on or after its
// date, or on the last new row when the new tail ends earlier, so no charge
// is lost when a due date does not survive. A new row that owes nothing has
// what it received waived.
func carryCharges(loanID generic.LoanID, oldTail, newTail []generic.SchedulePeriod) []generic.WaiverNotice {
	fees := make([]decimal.Decimal, len(newTail))
	penalties := make([]decimal.Decimal, len(newTail))
	for i := range newTail {
		fees[i], penalties[i] = decimal.Zero, decimal.Zero
	}
	for _, p := range oldTail {
		if !p.FeeChargesDue.IsPositive() && !p.PenaltyChargesDue.IsPositive() {
			continue
		}
		j := coveringRow(newTail, p.DueDate)
		fees[j] = fees[j].Add(p.FeeChargesDue)
		penalties[j] = penalties[j].Add(p.PenaltyChargesDue)
	}

	var waivers []generic.WaiverNotice
	for i := range newTail {
		p := &newTail[i]
		if p.IsZeroValue() && (fees[i].IsPositive() || penalties[i].IsPositive()) {
			waivers = append(waivers, generic.WaiverNotice{LoanID: loanID, DueDate: p.DueDate, FeeCharges: fees[i], PenaltyCharges: penalties[i]})
			fees[i], penalties[i] = decimal.Zero, decimal.Zero
		}
		p.FeeChargesDue = fees[i]
		p.PenaltyChargesDue = penalties[i]
	}
	return waivers
}

// coveringRow returns the first row of tail due on or after d, or the last
// row.
func coveringRow(tail []generic.SchedulePeriod, d generic.TimePoint) int {
	for i, p := range tail {
		if !p.DueDate.Before(d) {
			return i
		}
	}
	return len(tail) - 1
}

// renumberTail numbers tail installments from first; head rows keep theirs.
func renumberTail(s generic.Schedule, first int) {
	n := first
	for i := range s.Periods {
		p := &s.Periods[i]
		if p.IsDisbursement() || p.IsRecomputedFromExisting {
			continue
		}
		p.PeriodNumber = n
		n++
	}
}

func tailOf(s generic.Schedule) []generic.SchedulePeriod {
	var out []generic.SchedulePeriod
	for _, p := range s.Periods {
		if !p.IsDisbursement() && !p.IsRecomputedFromExisting {
			out = append(out, p)
		}
	}
	return out
}

func diff(oldTail, newTail []generic.SchedulePeriod) []PeriodChange {
	byDate := make(map[string]int, len(newTail))
	for i, p := range newTail {
		byDate[p.DueDate.String()] = i
	}
	matched := make(map[int]bool)
	var changes []PeriodChange
	for i := range oldTail {
		o := oldTail[i]
		j, ok := byDate[o.DueDate.String()]
		if !ok {
			changes = append(changes, PeriodChange{Kind: ChangeRemoved, DueDate: o.DueDate, Old: &o})
			continue
		}
		matched[j] = true
		n := newTail[j]
		kind := ChangeModified
		if o.PrincipalDue.Equal(n.PrincipalDue) && o.InterestDue.Equal(n.InterestDue) &&
			o.FeeChargesDue.Equal(n.FeeChargesDue) && o.PenaltyChargesDue.Equal(n.PenaltyChargesDue) &&
			o.FromDate.Equal(n.FromDate) {
			kind = ChangeUnchanged
		}
		changes = append(changes, PeriodChange{Kind: kind, DueDate: o.DueDate, Old: &o, New: &n})
	}
	for j := range newTail {
		if !matched[j] {
			n := newTail[j]
			changes = append(changes, PeriodChange{Kind: ChangeAdded, DueDate: n.DueDate, New: &n})
		}
	}
	return changes
}
