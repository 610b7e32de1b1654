/*
Package generic provides the core types of the loan amortization engine.

PURPOSE:
  This package holds the data model every other package speaks: loan
  terms, disbursements, schedule periods, reschedule requests, calendars
  and the error taxonomy. It contains no policy logic beyond validation
  and the small arithmetic helpers (rounding, day counts, period rates)
  that all policies share.

KEY CONCEPTS IN THIS FILE (types.go):
  - LoanTerms: The immutable input that fully determines a base schedule
  - Disbursement: A dated tranche of principal released to the borrower
  - Enumerations: Interest method, amortization type, day-count basis

DESIGN PRINCIPLES:
  1. Precision: All money is decimal.Decimal, never binary floating point
  2. Purity: Terms are values; generating twice yields identical output
  3. Type Safety: Enumerations are typed strings with Valid() checks

USAGE:
  terms := generic.LoanTerms{
      Principal:            decimal.NewFromInt(100000),
      NominalAnnualRate:    decimal.NewFromInt(12),
      NumberOfInstallments: 4,
      RepaymentEvery:       1,
      RepaymentFrequency:   generic.FrequencyMonths,
      InterestMethod:       generic.InterestDeclining,
      AmortizationType:     generic.AmortizationEqualInstallments,
      ...
  }
  if err := terms.Validate(); err != nil { ... }

SEE ALSO:
  - money.go: Rounding and residual plugging
  - accrual.go: Day-count fractions and period rates
  - period.go: Schedule output model
*/
package generic

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type LoanID string
type RequestID string

func MustParseDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// =============================================================================
// ENUMERATIONS
// =============================================================================

type InterestMethod string

const (
	InterestFlat      InterestMethod = "flat"
	InterestDeclining InterestMethod = "declining_balance"
)

type AmortizationType string

const (
	AmortizationEqualInstallments AmortizationType = "equal_installments"
	AmortizationEqualPrincipal    AmortizationType = "equal_principal"
)

// InterestCalculationPeriod controls how a period's rate is derived.
type InterestCalculationPeriod string

const (
	CalculationSameAsRepayment InterestCalculationPeriod = "same_as_repayment_period"
	CalculationDaily           InterestCalculationPeriod = "daily"
)

// DaysInYearBasis is the day-count denominator.
type DaysInYearBasis string

const (
	DaysInYear360    DaysInYearBasis = "360"
	DaysInYear365    DaysInYearBasis = "365"
	DaysInYearActual DaysInYearBasis = "actual"
)

func (m InterestMethod) Valid() bool {
	return m == InterestFlat || m == InterestDeclining
}

func (a AmortizationType) Valid() bool {
	return a == AmortizationEqualInstallments || a == AmortizationEqualPrincipal
}

func (c InterestCalculationPeriod) Valid() bool {
	return c == CalculationSameAsRepayment || c == CalculationDaily
}

func (b DaysInYearBasis) Valid() bool {
	return b == DaysInYear360 || b == DaysInYear365 || b == DaysInYearActual
}

// =============================================================================
// LOAN TERMS
// =============================================================================

// VariableInstallments enables user edits to the generated schedule. The
// gap bounds apply between consecutive installment due dates; zero means
// unbounded.
type VariableInstallments struct {
	Allowed        bool `json:"allowed"`
	MinimumGapDays int  `json:"minimumGapDays"`
	MaximumGapDays int  `json:"maximumGapDays"`
}

// LoanTerms fully determines a base schedule together with the disbursements.
type LoanTerms struct {
	Principal                 decimal.Decimal
	NominalAnnualRate         decimal.Decimal // percent, e.g. 12 for 12%
	NumberOfInstallments      int
	RepaymentEvery            int
	RepaymentFrequency        FrequencyUnit
	InterestMethod            InterestMethod
	AmortizationType          AmortizationType
	InterestCalculationPeriod InterestCalculationPeriod
	DaysInYear                DaysInYearBasis
	CurrencyCode              string
	CurrencyDigits            int
	RoundingMode              RoundingMode

	ExpectedDisbursementDate TimePoint
	FirstRepaymentDate       TimePoint // optional; zero means start + one interval

	GraceOnPrincipalPeriods int
	GraceOnInterestPeriods  int
	DownPaymentPercentage   decimal.Decimal // percent of the first tranche

	VariableInstallments VariableInstallments
}

var currencyCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Kind resolves the (interest method, amortization type) pair.
func (t LoanTerms) Kind() (PolicyKind, error) {
	return PolicyKindOf(t.InterestMethod, t.AmortizationType)
}

// Round rounds an amount to the loan's currency precision.
func (t LoanTerms) Round(d decimal.Decimal) decimal.Decimal {
	return Round(d, t.CurrencyDigits, t.RoundingMode)
}

// Validate checks the terms against the generator's preconditions.
func (t LoanTerms) Validate() error {
	if !t.Principal.IsPositive() {
		return &InvalidTermsError{Field: "principal", Value: t.Principal.String(), Reason: "must be greater than zero"}
	}
	if t.NominalAnnualRate.IsNegative() {
		return &InvalidTermsError{Field: "nominalAnnualRate", Value: t.NominalAnnualRate.String(), Reason: "must not be negative"}
	}
	if t.NumberOfInstallments < 1 {
		return &InvalidTermsError{Field: "numberOfInstallments", Value: fmt.Sprint(t.NumberOfInstallments), Reason: "must be at least 1"}
	}
	if t.RepaymentEvery < 1 {
		return &InvalidTermsError{Field: "repaymentEvery", Value: fmt.Sprint(t.RepaymentEvery), Reason: "must be at least 1"}
	}
	if !t.RepaymentFrequency.Valid() {
		return &InvalidTermsError{Field: "repaymentFrequency", Value: string(t.RepaymentFrequency), Reason: "unknown frequency"}
	}
	if _, err := t.Kind(); err != nil {
		return err
	}
	if !t.InterestCalculationPeriod.Valid() {
		return &InvalidTermsError{Field: "interestCalculationPeriod", Value: string(t.InterestCalculationPeriod), Reason: "unknown calculation period"}
	}
	if !t.DaysInYear.Valid() {
		return &InvalidTermsError{Field: "daysInYear", Value: string(t.DaysInYear), Reason: "must be 360, 365 or actual"}
	}
	if t.CurrencyCode != "" && !currencyCodePattern.MatchString(t.CurrencyCode) {
		return &InvalidTermsError{Field: "currencyCode", Value: t.CurrencyCode, Reason: "must be a 3-letter ISO code"}
	}
	if t.CurrencyDigits < 0 || t.CurrencyDigits > 6 {
		return &InvalidTermsError{Field: "currencyDigits", Value: fmt.Sprint(t.CurrencyDigits), Reason: "must be between 0 and 6"}
	}
	if !t.RoundingMode.Valid() {
		return &InvalidTermsError{Field: "roundingMode", Value: string(t.RoundingMode), Reason: "unknown rounding mode"}
	}
	if t.ExpectedDisbursementDate.IsZero() {
		return &InvalidTermsError{Field: "expectedDisbursementDate", Reason: "is required"}
	}
	if !t.FirstRepaymentDate.IsZero() && !t.FirstRepaymentDate.After(t.ExpectedDisbursementDate) {
		return &InvalidTermsError{Field: "firstRepaymentDate", Value: t.FirstRepaymentDate.String(), Reason: "must be after the disbursement date"}
	}
	if t.GraceOnPrincipalPeriods < 0 || t.GraceOnPrincipalPeriods >= t.NumberOfInstallments {
		return &InvalidTermsError{Field: "graceOnPrincipalPeriods", Value: fmt.Sprint(t.GraceOnPrincipalPeriods), Reason: "must be between 0 and the number of installments minus one"}
	}
	if t.GraceOnInterestPeriods < 0 || t.GraceOnInterestPeriods >= t.NumberOfInstallments {
		return &InvalidTermsError{Field: "graceOnInterestPeriods", Value: fmt.Sprint(t.GraceOnInterestPeriods), Reason: "must be between 0 and the number of installments minus one"}
	}
	if t.DownPaymentPercentage.IsNegative() || t.DownPaymentPercentage.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return &InvalidTermsError{Field: "downPaymentPercentage", Value: t.DownPaymentPercentage.String(), Reason: "must be in [0, 100)"}
	}
	v := t.VariableInstallments
	if v.MinimumGapDays < 0 || v.MaximumGapDays < 0 || (v.MaximumGapDays > 0 && v.MaximumGapDays < v.MinimumGapDays) {
		return &InvalidTermsError{Field: "variableInstallments", Reason: "gap bounds must be non-negative and min <= max"}
	}
	return nil
}

// =============================================================================
// DISBURSEMENTS
// =============================================================================

// Disbursement is one tranche of principal.
type Disbursement struct {
	Date   TimePoint       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// TotalDisbursed sums tranche amounts.
func TotalDisbursed(ds []Disbursement) decimal.Decimal {
	total := decimal.Zero
	for _, d := range ds {
		total = total.Add(d.Amount)
	}
	return total
}

// DefaultDisbursements is the single tranche implied by the terms.
func (t LoanTerms) DefaultDisbursements() []Disbursement {
	return []Disbursement{{Date: t.ExpectedDisbursementDate, Amount: t.Principal}}
}

// =============================================================================
// LOAN
// =============================================================================

// Loan is the persisted account: terms plus the tranches actually planned.
type Loan struct {
	ID            LoanID
	OfficeID      string
	ClientName    string
	Terms         LoanTerms
	Disbursements []Disbursement
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Tranches returns the planned disbursements, defaulting to one tranche
// of the full principal on the expected disbursement date.
func (l Loan) Tranches() []Disbursement {
	if len(l.Disbursements) == 0 {
		return l.Terms.DefaultDisbursements()
	}
	return l.Disbursements
}
