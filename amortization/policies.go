package amortization

import (
	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/generic"
)

// =============================================================================
// STATE - Running position shared by the generator and the policies
// =============================================================================

// State is the generator's position at installment Index. The generator
// owns the exported fields; the unexported ones belong to the policy and
// survive between Reset and Plan calls.
type State struct {
	Terms generic.LoanTerms
	Rates []decimal.Decimal // r_j for every installment

	Index   int             // current installment, 0-based, down payment excluded
	Balance decimal.Decimal // outstanding principal after tranches landing this period
	Basis   decimal.Decimal // flat-interest basis: principal disbursed so far

	// Unrounded interest for the current period on Balance / Basis,
	// including pro-rated interest on tranches that landed inside it.
	AccruedOnBalance decimal.Decimal
	AccruedOnBasis   decimal.Decimal

	AmortizeFrom    int             // first installment carrying principal
	PlannedInterest decimal.Decimal // interest planned before Index, waivers ignored

	installment    decimal.Decimal
	fixedPrincipal decimal.Decimal
	remPrincipal   decimal.Decimal
	remTotal       decimal.Decimal
	interestTarget decimal.Decimal
}

func (s *State) round(d decimal.Decimal) decimal.Decimal { return s.Terms.Round(d) }

// InGrace reports whether the current installment is in principal grace.
func (s *State) InGrace() bool { return s.Index < s.AmortizeFrom }

// Amortizing is the number of installments from here on that carry principal.
func (s *State) Amortizing() int {
	from := s.Index
	if s.AmortizeFrom > from {
		from = s.AmortizeFrom
	}
	return len(s.Rates) - from
}

// =============================================================================
// POLICY - Strategy per (interest method, amortization type)
// =============================================================================

// Policy splits each period's due amount into principal and interest.
type Policy interface {
	Kind() generic.PolicyKind

	// Reset re-solves the plan from the current installment onward. The
	// generator calls it at the first installment and whenever a tranche
	// lands.
	Reset(s *State)

	// Plan returns the rounded principal and interest for the current
	// installment before grace waivers and the last-period plug.
	Plan(s *State) (principal, interest decimal.Decimal)

	// LastInterest returns the final installment's interest given the
	// interest Plan computed for it.
	LastInterest(s *State, planned decimal.Decimal) decimal.Decimal
}

// For returns the policy for kind.
func For(kind generic.PolicyKind) (Policy, error) {
	switch kind {
	case generic.PolicyFlatEqualInstallments:
		return flatEqualInstallments{}, nil
	case generic.PolicyFlatEqualPrincipal:
		return flatEqualPrincipal{}, nil
	case generic.PolicyDecliningEqualInstallments:
		return decliningEqualInstallments{}, nil
	case generic.PolicyDecliningEqualPrincipal:
		return decliningEqualPrincipal{}, nil
	}
	return nil, &generic.UnsupportedPolicyError{}
}

// Annuity returns the level payment that amortizes balance over n periods
// at rate r: balance × r(1+r)^n / ((1+r)^n − 1). A zero rate degenerates
// to balance / n.
func Annuity(balance, r decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 {
		return balance
	}
	if r.IsZero() {
		return balance.Div(decimal.NewFromInt(int64(n)))
	}
	growth := decimal.NewFromInt(1).Add(r).Pow(decimal.NewFromInt(int64(n)))
	return balance.Mul(r).Mul(growth).Div(growth.Sub(decimal.NewFromInt(1)))
}

// =============================================================================
// FLAT + EQUAL INSTALLMENTS
// =============================================================================

type flatEqualInstallments struct{}

func (flatEqualInstallments) Kind() generic.PolicyKind { return generic.PolicyFlatEqualInstallments }

func (flatEqualInstallments) Reset(s *State) {
	start := s.Index
	if s.AmortizeFrom > start {
		start = s.AmortizeFrom
	}
	flat := func(j int) decimal.Decimal {
		if j == s.Index {
			return s.AccruedOnBasis
		}
		return s.Basis.Mul(s.Rates[j])
	}

	graceInterest := decimal.Zero
	for j := s.Index; j < start; j++ {
		graceInterest = graceInterest.Add(s.round(flat(j)))
	}
	remInterest := decimal.Zero
	for j := start; j < len(s.Rates); j++ {
		remInterest = remInterest.Add(flat(j))
	}

	s.remPrincipal = s.Balance
	s.remTotal = s.Balance.Add(remInterest)
	s.installment = s.round(s.remTotal.Div(decimal.NewFromInt(int64(s.Amortizing()))))
	s.interestTarget = s.PlannedInterest.Add(graceInterest).Add(s.round(remInterest))
}

func (flatEqualInstallments) Plan(s *State) (decimal.Decimal, decimal.Decimal) {
	if s.InGrace() {
		return decimal.Zero, s.round(s.AccruedOnBasis)
	}
	if s.remTotal.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	principal := s.round(s.installment.Mul(s.remPrincipal).Div(s.remTotal))
	return principal, s.installment.Sub(principal)
}

// LastInterest plugs interest so the column sums to the flat total.
func (flatEqualInstallments) LastInterest(s *State, _ decimal.Decimal) decimal.Decimal {
	return generic.PlugResidual(s.interestTarget, s.PlannedInterest)
}

// =============================================================================
// FLAT + EQUAL PRINCIPAL
// =============================================================================

type flatEqualPrincipal struct{}

func (flatEqualPrincipal) Kind() generic.PolicyKind { return generic.PolicyFlatEqualPrincipal }

func (flatEqualPrincipal) Reset(s *State) {
	s.fixedPrincipal = s.round(s.Balance.Div(decimal.NewFromInt(int64(s.Amortizing()))))
}

func (flatEqualPrincipal) Plan(s *State) (decimal.Decimal, decimal.Decimal) {
	interest := s.round(s.AccruedOnBasis)
	if s.InGrace() {
		return decimal.Zero, interest
	}
	return s.fixedPrincipal, interest
}

func (flatEqualPrincipal) LastInterest(_ *State, planned decimal.Decimal) decimal.Decimal {
	return planned
}

// =============================================================================
// DECLINING BALANCE + EQUAL INSTALLMENTS
// =============================================================================

type decliningEqualInstallments struct{}

func (decliningEqualInstallments) Kind() generic.PolicyKind {
	return generic.PolicyDecliningEqualInstallments
}

func (decliningEqualInstallments) Reset(s *State) {
	s.installment = s.round(Annuity(s.Balance, s.Terms.NominalPeriodRate(), s.Amortizing()))
}

func (decliningEqualInstallments) Plan(s *State) (decimal.Decimal, decimal.Decimal) {
	interest := s.round(s.AccruedOnBalance)
	if s.InGrace() {
		return decimal.Zero, interest
	}
	return s.installment.Sub(interest), interest
}

func (decliningEqualInstallments) LastInterest(_ *State, planned decimal.Decimal) decimal.Decimal {
	return planned
}

// =============================================================================
// DECLINING BALANCE + EQUAL PRINCIPAL
// =============================================================================

type decliningEqualPrincipal struct{}

func (decliningEqualPrincipal) Kind() generic.PolicyKind { return generic.PolicyDecliningEqualPrincipal }

func (decliningEqualPrincipal) Reset(s *State) {
	s.fixedPrincipal = s.round(s.Balance.Div(decimal.NewFromInt(int64(s.Amortizing()))))
}

func (decliningEqualPrincipal) Plan(s *State) (decimal.Decimal, decimal.Decimal) {
	interest := s.round(s.AccruedOnBalance)
	if s.InGrace() {
		return decimal.Zero, interest
	}
	return s.fixedPrincipal, interest
}

func (decliningEqualPrincipal) LastInterest(_ *State, planned decimal.Decimal) decimal.Decimal {
	return planned
}
