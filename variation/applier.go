package variation

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/generic"
)

// Apply returns base reshaped by variations. base is never modified and an
// empty variation set returns a copy of it.
func Apply(terms generic.LoanTerms, base generic.Schedule, variations []Variation) (generic.Schedule, error) {
	if len(variations) == 0 {
		return base.Clone(), nil
	}
	if !terms.VariableInstallments.Allowed {
		return generic.Schedule{}, generic.ErrVariationsNotAllowed
	}
	kind, err := terms.Kind()
	if err != nil {
		return generic.Schedule{}, err
	}
	if err := checkConflicts(variations); err != nil {
		return generic.Schedule{}, err
	}

	w, err := newWorking(terms, kind, base)
	if err != nil {
		return generic.Schedule{}, err
	}
	for _, v := range ordered(variations) {
		if err := w.apply(v); err != nil {
			return generic.Schedule{}, err
		}
	}
	return w.build()
}

// =============================================================================
// VALIDATION
// =============================================================================

func checkConflicts(variations []Variation) error {
	byAnchor := make(map[string][]Kind)
	var anchors []generic.TimePoint
	for _, v := range variations {
		if !v.Kind.Valid() {
			return &generic.InvalidRequestError{Field: "kind", Reason: "unknown variation kind " + string(v.Kind)}
		}
		if v.DueDate.IsZero() {
			return &generic.InvalidRequestError{Field: "dueDate", Reason: "is required"}
		}
		key := v.DueDate.String()
		if _, seen := byAnchor[key]; !seen {
			anchors = append(anchors, v.DueDate)
		}
		byAnchor[key] = append(byAnchor[key], v.Kind)
	}
	for _, anchor := range anchors {
		kinds := byAnchor[anchor.String()]
		if len(kinds) < 2 {
			continue
		}
		if len(kinds) == 2 && isDateAndAmount(kinds[0], kinds[1]) {
			continue
		}
		names := make([]string, len(kinds))
		for i, k := range kinds {
			names[i] = string(k)
		}
		return &generic.ConflictingVariationError{Date: anchor, Kinds: names}
	}
	return nil
}

func isDateAndAmount(a, b Kind) bool {
	return (a == KindModifyDate && b == KindModifyAmount) || (a == KindModifyAmount && b == KindModifyDate)
}

func ordered(variations []Variation) []Variation {
	out := make([]Variation, len(variations))
	copy(out, variations)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind.order() != out[j].Kind.order() {
			return out[i].Kind.order() < out[j].Kind.order()
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out
}

// =============================================================================
// WORKING SCHEDULE
// =============================================================================

type row struct {
	period    generic.SchedulePeriod
	anchor    generic.TimePoint
	principal decimal.Decimal
	fixed     bool

	// requested is the whole installment asked for on a pinned row under
	// equal installments. build re-solves its principal against it.
	requested *decimal.Decimal
}

type working struct {
	terms             generic.LoanTerms
	flat              bool
	equalInstallments bool

	start       generic.TimePoint
	prefix      []generic.SchedulePeriod // disbursement and down-payment rows
	tranches    []generic.Disbursement
	downPayment decimal.Decimal
	rows        []row

	// dirtyFrom is the first row whose interest must be re-derived.
	dirtyFrom int
}

func newWorking(terms generic.LoanTerms, kind generic.PolicyKind, base generic.Schedule) (*working, error) {
	w := &working{
		terms:             terms,
		flat:              kind.IsFlat(),
		equalInstallments: kind.IsEqualInstallments(),
		downPayment:       decimal.Zero,
	}
	for _, p := range base.Periods {
		switch {
		case p.IsDisbursement():
			w.prefix = append(w.prefix, p)
			w.tranches = append(w.tranches, generic.Disbursement{Date: p.DueDate, Amount: p.PrincipalDisbursed})
		case p.IsDownPayment:
			w.prefix = append(w.prefix, p)
			w.downPayment = w.downPayment.Add(p.PrincipalDue)
		default:
			w.rows = append(w.rows, row{period: p, anchor: p.DueDate, principal: p.PrincipalDue})
		}
	}
	if len(w.tranches) == 0 || len(w.rows) == 0 {
		return nil, &generic.InvalidRequestError{Field: "schedule", Reason: "has no disbursement or no installments"}
	}
	sort.SliceStable(w.tranches, func(i, j int) bool { return w.tranches[i].Date.Before(w.tranches[j].Date) })
	w.start = w.tranches[0].Date
	w.dirtyFrom = len(w.rows)
	return w, nil
}

func (w *working) apply(v Variation) error {
	switch v.Kind {
	case KindDelete:
		return w.delete(v)
	case KindModifyDate:
		return w.modifyDate(v)
	case KindModifyAmount:
		return w.modifyAmount(v)
	default:
		return w.add(v)
	}
}

func (w *working) find(anchor generic.TimePoint) int {
	for i, r := range w.rows {
		if r.anchor.Equal(anchor) {
			return i
		}
	}
	return -1
}

func (w *working) findDue(d generic.TimePoint) int {
	for i, r := range w.rows {
		if r.period.DueDate.Equal(d) {
			return i
		}
	}
	return -1
}

func (w *working) fromOf(j int) generic.TimePoint {
	if j == 0 {
		return w.start
	}
	return w.rows[j-1].period.DueDate
}

func (w *working) markDirty(j int) {
	if j < w.dirtyFrom {
		w.dirtyFrom = j
	}
}

// followers returns the unpinned rows after k.
func (w *working) followers(k int) []int {
	var out []int
	for j := k + 1; j < len(w.rows); j++ {
		if !w.rows[j].fixed {
			out = append(out, j)
		}
	}
	return out
}

// distribute adds amount (possibly negative) across rows idx.
func (w *working) distribute(idx []int, amount decimal.Decimal, proportional bool) error {
	var shares []decimal.Decimal
	if proportional {
		weights := make([]decimal.Decimal, len(idx))
		for i, j := range idx {
			weights[i] = w.rows[j].principal
		}
		shares = generic.SplitProportionally(amount, weights, w.terms.Round)
	} else {
		shares = generic.SplitEvenly(amount, len(idx), w.terms.Round)
	}
	for i, j := range idx {
		p := w.rows[j].principal.Add(shares[i])
		if p.IsNegative() {
			return &generic.NegativeResidualError{Date: w.rows[j].period.DueDate, Principal: p}
		}
		w.rows[j].principal = p
	}
	return nil
}

// walk visits every row with its unrounded accrued interest, tracking the
// declining balance and flat basis through tranches and principal.
func (w *working) walk(visit func(j int, accrued decimal.Decimal)) {
	initial := decimal.Zero
	var later []generic.Disbursement
	for _, t := range w.tranches {
		if t.Date.Equal(w.start) {
			initial = initial.Add(t.Amount)
		} else {
			later = append(later, t)
		}
	}
	balance := initial.Sub(w.downPayment)
	basis := balance
	next := 0
	for j := range w.rows {
		from, due := w.fromOf(j), w.rows[j].period.DueDate
		var landed []generic.Disbursement
		inflow := decimal.Zero
		for next < len(later) && later[next].Date.Before(due) {
			landed = append(landed, later[next])
			inflow = inflow.Add(later[next].Amount)
			next++
		}
		rate := w.terms.PeriodRate(from, due)
		on := balance
		if w.flat {
			on = basis
		}
		visit(j, generic.AccruedInterest(on, rate, from, due, landed))
		balance = balance.Add(inflow).Sub(w.rows[j].principal)
		basis = basis.Add(inflow)
	}
}

// interestFor returns the rounded interest row k would carry now.
func (w *working) interestFor(k int) decimal.Decimal {
	if k < w.terms.GraceOnInterestPeriods {
		return decimal.Zero
	}
	var out decimal.Decimal
	w.walk(func(j int, accrued decimal.Decimal) {
		if j == k {
			out = w.terms.Round(accrued)
		}
	})
	return out
}

// principalFor converts a user amount into principal for row k.
func (w *working) principalFor(k int, amount decimal.Decimal) decimal.Decimal {
	if w.equalInstallments {
		return amount.Sub(w.interestFor(k))
	}
	return amount
}

// =============================================================================
// EDITS
// =============================================================================

func (w *working) delete(v Variation) error {
	k := w.find(v.DueDate)
	if k < 0 {
		return &generic.UnknownAnchorError{Date: v.DueDate}
	}
	if len(w.rows) == 1 {
		return &generic.VariationDateError{Date: v.DueDate, Reason: "cannot delete the only installment"}
	}
	pool := w.rows[k].principal
	w.rows = append(w.rows[:k], w.rows[k+1:]...)
	w.markDirty(k)

	// rows from k on are the old followers of the deleted row
	if idx := w.followers(k - 1); len(idx) > 0 {
		return w.distribute(idx, pool, w.equalInstallments)
	}
	return nil
}

func (w *working) modifyDate(v Variation) error {
	k := w.find(v.DueDate)
	if k < 0 {
		return &generic.UnknownAnchorError{Date: v.DueDate}
	}
	target := v.NewDueDate
	if target.IsZero() {
		return &generic.InvalidRequestError{Field: "modifiedDueDate", Reason: "is required"}
	}
	if j := w.findDue(target); j >= 0 && j != k {
		return &generic.DuplicateDueDateError{Date: target}
	}
	lower := w.fromOf(k)
	var upper generic.TimePoint
	if k+1 < len(w.rows) {
		upper = w.rows[k+1].period.DueDate
	}
	if !target.After(lower) || (!upper.IsZero() && !target.Before(upper)) {
		return &generic.VariationDateError{Date: target, Lower: lower, Upper: upper}
	}
	w.rows[k].period.DueDate = target
	w.markDirty(k)
	return nil
}

func (w *working) modifyAmount(v Variation) error {
	k := w.find(v.DueDate)
	if k < 0 {
		return &generic.UnknownAnchorError{Date: v.DueDate}
	}
	if v.Amount.IsNegative() {
		return &generic.InvalidRequestError{Field: "installmentAmount", Reason: "must not be negative"}
	}
	if k == len(w.rows)-1 {
		return &generic.RedistributionError{Date: v.DueDate, Amount: v.Amount}
	}
	principal := w.principalFor(k, v.Amount)
	if principal.IsNegative() {
		return &generic.NegativeResidualError{Date: w.rows[k].period.DueDate, Principal: principal}
	}
	diff := w.rows[k].principal.Sub(principal)
	w.rows[k].principal = principal
	w.rows[k].fixed = true
	w.rows[k].requested = w.requestedAmount(v.Amount)
	w.markDirty(k)

	if diff.IsZero() {
		return nil
	}
	idx := w.followers(k)
	if len(idx) == 0 {
		return &generic.RedistributionError{Date: v.DueDate, Amount: diff}
	}
	return w.distribute(idx, diff, w.equalInstallments)
}

func (w *working) add(v Variation) error {
	if w.findDue(v.DueDate) >= 0 {
		return &generic.DuplicateDueDateError{Date: v.DueDate}
	}
	if !v.DueDate.After(w.start) {
		return &generic.VariationDateError{Date: v.DueDate, Lower: w.start}
	}
	if !v.Amount.IsPositive() {
		return &generic.InvalidRequestError{Field: "installmentAmount", Reason: "must be positive for a new installment"}
	}
	k := sort.Search(len(w.rows), func(i int) bool { return w.rows[i].period.DueDate.After(v.DueDate) })
	if k == len(w.rows) {
		return &generic.RedistributionError{Date: v.DueDate, Amount: v.Amount}
	}

	inserted := row{
		period:    generic.SchedulePeriod{DueDate: v.DueDate},
		anchor:    v.DueDate,
		principal: decimal.Zero,
		fixed:     true,
	}
	w.rows = append(w.rows, row{})
	copy(w.rows[k+1:], w.rows[k:])
	w.rows[k] = inserted
	w.markDirty(k)

	principal := w.principalFor(k, v.Amount)
	if principal.IsNegative() {
		return &generic.NegativeResidualError{Date: v.DueDate, Principal: principal}
	}
	w.rows[k].principal = principal
	w.rows[k].requested = w.requestedAmount(v.Amount)

	idx := w.followers(k)
	if len(idx) == 0 {
		return &generic.RedistributionError{Date: v.DueDate, Amount: principal}
	}
	return w.distribute(idx, principal.Neg(), true)
}

func (w *working) requestedAmount(amount decimal.Decimal) *decimal.Decimal {
	if !w.equalInstallments {
		return nil
	}
	return &amount
}

// resolvePinned re-derives the principal of every row pinned to a whole
// installment against the final balances, pushing the difference onto the
// unpinned rows after it. Rows are visited in order: a change to row k only
// moves the balances of rows after k.
func (w *working) resolvePinned() error {
	for k := range w.rows {
		r := w.rows[k]
		if r.requested == nil {
			continue
		}
		principal := w.principalFor(k, *r.requested)
		if principal.IsNegative() {
			return &generic.NegativeResidualError{Date: r.period.DueDate, Principal: principal}
		}
		diff := r.principal.Sub(principal)
		if diff.IsZero() {
			continue
		}
		w.rows[k].principal = principal
		idx := w.followers(k)
		if len(idx) == 0 {
			return &generic.RedistributionError{Date: r.period.DueDate, Amount: diff}
		}
		if err := w.distribute(idx, diff, true); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// BUILD
// =============================================================================

func (w *working) build() (generic.Schedule, error) {
	if err := w.resolvePinned(); err != nil {
		return generic.Schedule{}, err
	}
	last := len(w.rows) - 1
	target := generic.TotalDisbursed(w.tranches).Sub(w.downPayment)
	others := make([]decimal.Decimal, 0, last)
	for j := 0; j < last; j++ {
		others = append(others, w.rows[j].principal)
	}
	w.rows[last].principal = generic.PlugResidual(target, others...)
	if w.rows[last].principal.IsNegative() {
		return generic.Schedule{}, &generic.NegativeResidualError{Date: w.rows[last].period.DueDate, Principal: w.rows[last].principal}
	}

	maturity := w.rows[last].period.DueDate
	if lt := w.tranches[len(w.tranches)-1]; !lt.Date.Before(maturity) {
		return generic.Schedule{}, &generic.VariationDateError{Date: maturity, Lower: lt.Date, Reason: "maturity must stay after the last tranche " + lt.Date.String()}
	}

	interest := make([]decimal.Decimal, len(w.rows))
	w.walk(func(j int, accrued decimal.Decimal) {
		switch {
		case j < w.dirtyFrom:
			interest[j] = w.rows[j].period.InterestDue
		case j < w.terms.GraceOnInterestPeriods:
			interest[j] = decimal.Zero
		default:
			interest[j] = w.terms.Round(accrued)
		}
	})

	periods := make([]generic.SchedulePeriod, 0, len(w.prefix)+len(w.rows))
	periods = append(periods, w.prefix...)
	for j, r := range w.rows {
		p := r.period
		p.FromDate = w.fromOf(j)
		p.PrincipalDue = r.principal
		p.InterestDue = interest[j]
		p.IsRecomputedFromExisting = false
		periods = append(periods, p)
	}

	out := generic.Schedule{Periods: periods}
	out.Sort()
	out.Renumber(1)
	out.RecomputeOutstanding()
	if err := out.ValidateOrdering(); err != nil {
		return generic.Schedule{}, err
	}
	if err := out.ValidateConservation(); err != nil {
		return generic.Schedule{}, err
	}
	if err := checkGaps(w.terms.VariableInstallments, w.start, out); err != nil {
		return generic.Schedule{}, err
	}
	return out, nil
}

// checkGaps enforces the minimum and maximum days between consecutive
// installments, measured from the first disbursement for the first one.
func checkGaps(cfg generic.VariableInstallments, start generic.TimePoint, s generic.Schedule) error {
	if cfg.MinimumGapDays == 0 && cfg.MaximumGapDays == 0 {
		return nil
	}
	prev := start
	for _, p := range s.Periods {
		if p.IsDisbursement() || p.IsDownPayment {
			continue
		}
		gap := generic.DaysBetween(prev, p.DueDate)
		if (cfg.MinimumGapDays > 0 && gap < cfg.MinimumGapDays) || (cfg.MaximumGapDays > 0 && gap > cfg.MaximumGapDays) {
			return &generic.InstallmentGapError{From: prev, To: p.DueDate, Gap: gap, Min: cfg.MinimumGapDays, Max: cfg.MaximumGapDays}
		}
		prev = p.DueDate
	}
	return nil
}
