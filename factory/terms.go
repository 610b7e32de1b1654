/*
Package factory converts JSON payloads into engine types.

PURPOSE:
  Loan products are configured, not coded. The factory turns the JSON a
  host receives (loan terms, variation sets, reschedule requests) into
  validated generic types, filling the defaults the engine relies on so
  the core never sees half-specified terms.

JSON SCHEMA (terms):
  {
    "principal": "100000",
    "nominalAnnualRate": "12",
    "numberOfInstallments": 4,
    "repaymentEvery": 1,
    "repaymentFrequency": "months",
    "interestMethod": "declining_balance",
    "amortizationType": "equal_installments",
    "interestCalculationPeriod": "same_as_repayment_period",
    "daysInYear": "actual",
    "currencyCode": "USD",
    "currencyDigits": 2,
    "roundingMode": "half_up",
    "expectedDisbursementDate": "2011-09-20",
    "graceOnPrincipalPeriods": 0,
    "variableInstallments": {"allowed": true, "minimumGapDays": 5, "maximumGapDays": 90}
  }

DEFAULTS:
  repaymentEvery             1
  currencyDigits             2
  roundingMode               half_up
  daysInYear                 actual
  interestCalculationPeriod  same_as_repayment_period

  Enum values accept singular and plural spellings ("month", "months").
  daysInYear accepts a JSON number or string.

SEE ALSO:
  - variations.go: Variation payloads
  - reschedule.go: Reschedule request payloads
  - generic/types.go: LoanTerms.Validate
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// TermsJSON is the wire form of generic.LoanTerms.
type TermsJSON struct {
	Principal                 decimal.Decimal           `json:"principal"`
	NominalAnnualRate         decimal.Decimal           `json:"nominalAnnualRate"`
	NumberOfInstallments      int                       `json:"numberOfInstallments"`
	RepaymentEvery            *int                      `json:"repaymentEvery,omitempty"`
	RepaymentFrequency        string                    `json:"repaymentFrequency"`
	InterestMethod            string                    `json:"interestMethod"`
	AmortizationType          string                    `json:"amortizationType"`
	InterestCalculationPeriod string                    `json:"interestCalculationPeriod,omitempty"`
	DaysInYear                flexString                `json:"daysInYear,omitempty"`
	CurrencyCode              string                    `json:"currencyCode,omitempty"`
	CurrencyDigits            *int                      `json:"currencyDigits,omitempty"`
	RoundingMode              string                    `json:"roundingMode,omitempty"`
	ExpectedDisbursementDate  generic.TimePoint         `json:"expectedDisbursementDate"`
	FirstRepaymentDate        generic.TimePoint         `json:"firstRepaymentDate"`
	GraceOnPrincipalPeriods   int                       `json:"graceOnPrincipalPeriods,omitempty"`
	GraceOnInterestPeriods    int                       `json:"graceOnInterestPeriods,omitempty"`
	DownPaymentPercentage     decimal.NullDecimal       `json:"downPaymentPercentage"`
	VariableInstallments      *VariableInstallmentsJSON `json:"variableInstallments,omitempty"`
}

// VariableInstallmentsJSON configures user edits to the schedule.
type VariableInstallmentsJSON struct {
	Allowed        bool `json:"allowed"`
	MinimumGapDays int  `json:"minimumGapDays,omitempty"`
	MaximumGapDays int  `json:"maximumGapDays,omitempty"`
}

// DisbursementJSON is one tranche.
type DisbursementJSON struct {
	Date   generic.TimePoint `json:"date"`
	Amount decimal.Decimal   `json:"amount"`
}

// LoanJSON is the payload that creates a loan.
type LoanJSON struct {
	ID            string             `json:"id,omitempty"`
	OfficeID      string             `json:"officeId,omitempty"`
	ClientName    string             `json:"clientName,omitempty"`
	Terms         TermsJSON          `json:"terms"`
	Disbursements []DisbursementJSON `json:"disbursements,omitempty"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

// =============================================================================
// TERMS
// =============================================================================

// ParseTerms parses a JSON document into validated LoanTerms.
func ParseTerms(jsonStr string) (generic.LoanTerms, error) {
	var tj TermsJSON
	if err := json.Unmarshal([]byte(jsonStr), &tj); err != nil {
		return generic.LoanTerms{}, fmt.Errorf("failed to parse terms JSON: %w", err)
	}
	return Resolve(tj)
}

// Resolve fills defaults, maps enums and validates.
func Resolve(tj TermsJSON) (generic.LoanTerms, error) {
	freq, err := parseFrequency(tj.RepaymentFrequency)
	if err != nil {
		return generic.LoanTerms{}, err
	}
	method, err := parseInterestMethod(tj.InterestMethod)
	if err != nil {
		return generic.LoanTerms{}, err
	}
	amort, err := parseAmortization(tj.AmortizationType)
	if err != nil {
		return generic.LoanTerms{}, err
	}
	calc, err := parseCalculationPeriod(tj.InterestCalculationPeriod)
	if err != nil {
		return generic.LoanTerms{}, err
	}
	basis, err := parseDaysInYear(string(tj.DaysInYear))
	if err != nil {
		return generic.LoanTerms{}, err
	}

	terms := generic.LoanTerms{
		Principal:                 tj.Principal,
		NominalAnnualRate:         tj.NominalAnnualRate,
		NumberOfInstallments:      tj.NumberOfInstallments,
		RepaymentEvery:            1,
		RepaymentFrequency:        freq,
		InterestMethod:            method,
		AmortizationType:          amort,
		InterestCalculationPeriod: calc,
		DaysInYear:                basis,
		CurrencyCode:              strings.ToUpper(tj.CurrencyCode),
		CurrencyDigits:            2,
		RoundingMode:              generic.RoundingMode(strings.ToLower(tj.RoundingMode)),
		ExpectedDisbursementDate:  tj.ExpectedDisbursementDate,
		FirstRepaymentDate:        tj.FirstRepaymentDate,
		GraceOnPrincipalPeriods:   tj.GraceOnPrincipalPeriods,
		GraceOnInterestPeriods:    tj.GraceOnInterestPeriods,
		DownPaymentPercentage:     decimal.Zero,
	}
	if tj.RepaymentEvery != nil {
		terms.RepaymentEvery = *tj.RepaymentEvery
	}
	if tj.CurrencyDigits != nil {
		terms.CurrencyDigits = *tj.CurrencyDigits
	}
	if terms.RoundingMode == "" {
		terms.RoundingMode = generic.RoundHalfUp
	}
	if tj.DownPaymentPercentage.Valid {
		terms.DownPaymentPercentage = tj.DownPaymentPercentage.Decimal
	}
	if vi := tj.VariableInstallments; vi != nil {
		terms.VariableInstallments = generic.VariableInstallments{
			Allowed:        vi.Allowed,
			MinimumGapDays: vi.MinimumGapDays,
			MaximumGapDays: vi.MaximumGapDays,
		}
	}

	if err := terms.Validate(); err != nil {
		return generic.LoanTerms{}, err
	}
	return terms, nil
}

// ToJSON converts terms back to their wire form.
func ToJSON(t generic.LoanTerms) TermsJSON {
	every, digits := t.RepaymentEvery, t.CurrencyDigits
	tj := TermsJSON{
		Principal:                 t.Principal,
		NominalAnnualRate:         t.NominalAnnualRate,
		NumberOfInstallments:      t.NumberOfInstallments,
		RepaymentEvery:            &every,
		RepaymentFrequency:        string(t.RepaymentFrequency),
		InterestMethod:            string(t.InterestMethod),
		AmortizationType:          string(t.AmortizationType),
		InterestCalculationPeriod: string(t.InterestCalculationPeriod),
		DaysInYear:                flexString(t.DaysInYear),
		CurrencyCode:              t.CurrencyCode,
		CurrencyDigits:            &digits,
		RoundingMode:              string(t.RoundingMode),
		ExpectedDisbursementDate:  t.ExpectedDisbursementDate,
		FirstRepaymentDate:        t.FirstRepaymentDate,
		GraceOnPrincipalPeriods:   t.GraceOnPrincipalPeriods,
		GraceOnInterestPeriods:    t.GraceOnInterestPeriods,
		DownPaymentPercentage:     decimal.NewNullDecimal(t.DownPaymentPercentage),
	}
	if t.VariableInstallments.Allowed {
		tj.VariableInstallments = &VariableInstallmentsJSON{
			Allowed:        true,
			MinimumGapDays: t.VariableInstallments.MinimumGapDays,
			MaximumGapDays: t.VariableInstallments.MaximumGapDays,
		}
	}
	return tj
}

// =============================================================================
// LOANS
// =============================================================================

// ParseLoan parses a create-loan payload. An empty disbursement list means
// one tranche of the full principal on the expected disbursement date.
func ParseLoan(data []byte) (generic.Loan, error) {
	var lj LoanJSON
	if err := json.Unmarshal(data, &lj); err != nil {
		return generic.Loan{}, fmt.Errorf("failed to parse loan JSON: %w", err)
	}
	return LoanFromJSON(lj)
}

func LoanFromJSON(lj LoanJSON) (generic.Loan, error) {
	terms, err := Resolve(lj.Terms)
	if err != nil {
		return generic.Loan{}, err
	}
	loan := generic.Loan{
		ID:         generic.LoanID(lj.ID),
		OfficeID:   lj.OfficeID,
		ClientName: lj.ClientName,
		Terms:      terms,
	}
	for _, d := range lj.Disbursements {
		loan.Disbursements = append(loan.Disbursements, generic.Disbursement{Date: d.Date, Amount: d.Amount})
	}
	if len(loan.Disbursements) > 0 {
		if total := generic.TotalDisbursed(loan.Disbursements); !total.Equal(terms.Principal) {
			return generic.Loan{}, &generic.InvalidTermsError{Field: "disbursements", Value: total.String(), Reason: "tranches must sum to the principal " + terms.Principal.String()}
		}
	}
	return loan, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func norm(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}

func parseFrequency(s string) (generic.FrequencyUnit, error) {
	switch norm(s) {
	case "day", "days", "daily":
		return generic.FrequencyDays, nil
	case "week", "weeks", "weekly":
		return generic.FrequencyWeeks, nil
	case "month", "months", "monthly":
		return generic.FrequencyMonths, nil
	case "year", "years", "yearly":
		return generic.FrequencyYears, nil
	}
	return "", &generic.InvalidTermsError{Field: "repaymentFrequency", Value: s, Reason: "must be days, weeks, months or years"}
}

func parseInterestMethod(s string) (generic.InterestMethod, error) {
	switch norm(s) {
	case "flat":
		return generic.InterestFlat, nil
	case "declining_balance", "declining":
		return generic.InterestDeclining, nil
	}
	return "", &generic.InvalidTermsError{Field: "interestMethod", Value: s, Reason: "must be flat or declining_balance"}
}

func parseAmortization(s string) (generic.AmortizationType, error) {
	switch norm(s) {
	case "equal_installment", "equal_installments":
		return generic.AmortizationEqualInstallments, nil
	case "equal_principal", "equal_principal_payments":
		return generic.AmortizationEqualPrincipal, nil
	}
	return "", &generic.InvalidTermsError{Field: "amortizationType", Value: s, Reason: "must be equal_installments or equal_principal"}
}

func parseCalculationPeriod(s string) (generic.InterestCalculationPeriod, error) {
	switch norm(s) {
	case "", "same_as_repayment_period", "same_as_repayment":
		return generic.CalculationSameAsRepayment, nil
	case "daily":
		return generic.CalculationDaily, nil
	}
	return "", &generic.InvalidTermsError{Field: "interestCalculationPeriod", Value: s, Reason: "must be daily or same_as_repayment_period"}
}

func parseDaysInYear(s string) (generic.DaysInYearBasis, error) {
	switch norm(s) {
	case "", "actual":
		return generic.DaysInYearActual, nil
	case "360":
		return generic.DaysInYear360, nil
	case "365":
		return generic.DaysInYear365, nil
	}
	return "", &generic.InvalidTermsError{Field: "daysInYear", Value: s, Reason: "must be 360, 365 or actual"}
}
