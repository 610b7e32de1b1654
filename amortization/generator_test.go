package amortization_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-engine/amortization"
	"github.com/warp/loan-engine/generic"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y int, m time.Month, day int) generic.TimePoint { return generic.NewTimePoint(y, m, day) }

func assertAmount(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	if !d(want).Equal(got) {
		assert.Fail(t, fmt.Sprintf("amount mismatch: want %s, got %s", want, got), msgAndArgs...)
	}
}

// baseTerms is 100,000 at 12% p.a. over 4 monthly installments from 2011-09-20.
func baseTerms() generic.LoanTerms {
	return generic.LoanTerms{
		Principal:                 d("100000"),
		NominalAnnualRate:         d("12"),
		NumberOfInstallments:      4,
		RepaymentEvery:            1,
		RepaymentFrequency:        generic.FrequencyMonths,
		InterestMethod:            generic.InterestDeclining,
		AmortizationType:          generic.AmortizationEqualInstallments,
		InterestCalculationPeriod: generic.CalculationSameAsRepayment,
		DaysInYear:                generic.DaysInYearActual,
		CurrencyDigits:            2,
		RoundingMode:              generic.RoundHalfUp,
		ExpectedDisbursementDate:  date(2011, time.September, 20),
	}
}

func generate(t *testing.T, terms generic.LoanTerms, tranches ...generic.Disbursement) []generic.SchedulePeriod {
	t.Helper()
	s, err := amortization.Generate(terms, tranches)
	require.NoError(t, err)
	require.NoError(t, s.ValidateConservation())
	require.NoError(t, s.ValidateOrdering())
	return s.Installments()
}

// =============================================================================
// DECLINING BALANCE
// =============================================================================

func TestGenerate_DecliningEqualInstallments_RegressionFixture(t *testing.T) {
	// GIVEN: 100,000 at 1% per month, 4 monthly installments, half-up rounding
	// WHEN: Generating the base schedule
	// THEN: Every row matches the reference figures to the cent

	rows := generate(t, baseTerms())
	require.Len(t, rows, 4)

	want := []struct {
		due                       generic.TimePoint
		principal, interest, left string
	}{
		{date(2011, time.October, 20), "24628.11", "1000.00", "75371.89"},
		{date(2011, time.November, 20), "24874.39", "753.72", "50497.50"},
		{date(2011, time.December, 20), "25123.13", "504.98", "25374.37"},
		{date(2012, time.January, 20), "25374.37", "253.74", "0"},
	}
	for i, w := range want {
		assert.Equal(t, i+1, rows[i].PeriodNumber)
		assert.True(t, w.due.Equal(rows[i].DueDate), "period %d due %s", i+1, rows[i].DueDate)
		assertAmount(t, w.principal, rows[i].PrincipalDue, "period %d principal", i+1)
		assertAmount(t, w.interest, rows[i].InterestDue, "period %d interest", i+1)
		assertAmount(t, w.left, rows[i].PrincipalOutstandingAfter, "period %d outstanding", i+1)
	}
	for i := 0; i < 3; i++ {
		assertAmount(t, "25628.11", rows[i].TotalDue(), "installment %d", i+1)
	}
	assertAmount(t, "25628.11", rows[3].TotalDue())
}

func TestGenerate_DecliningEqualPrincipal(t *testing.T) {
	terms := baseTerms()
	terms.Principal = d("1000")
	terms.AmortizationType = generic.AmortizationEqualPrincipal

	rows := generate(t, terms)

	interest := []string{"10", "7.50", "5", "2.50"}
	for i, r := range rows {
		assertAmount(t, "250", r.PrincipalDue)
		assertAmount(t, interest[i], r.InterestDue)
	}
}

// =============================================================================
// FLAT
// =============================================================================

func TestGenerate_FlatEqualInstallments_EvenSplit(t *testing.T) {
	terms := baseTerms()
	terms.InterestMethod = generic.InterestFlat

	rows := generate(t, terms)

	for _, r := range rows {
		assertAmount(t, "25000", r.PrincipalDue)
		assertAmount(t, "1000", r.InterestDue)
	}
}

func TestGenerate_FlatEqualInstallments_LastPeriodPlugsBothColumns(t *testing.T) {
	// GIVEN: 1,000 at 10% p.a. flat over 3 months (1/120 per month)
	// WHEN: Generating
	// THEN: Installment is round(1025/3) = 341.67, last row absorbs residue
	terms := baseTerms()
	terms.Principal = d("1000")
	terms.NominalAnnualRate = d("10")
	terms.NumberOfInstallments = 3
	terms.InterestMethod = generic.InterestFlat

	rows := generate(t, terms)
	require.Len(t, rows, 3)

	assertAmount(t, "333.34", rows[0].PrincipalDue)
	assertAmount(t, "8.33", rows[0].InterestDue)
	assertAmount(t, "333.34", rows[1].PrincipalDue)
	assertAmount(t, "8.33", rows[1].InterestDue)
	assertAmount(t, "333.32", rows[2].PrincipalDue)
	assertAmount(t, "8.34", rows[2].InterestDue)

	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.InterestDue)
	}
	assertAmount(t, "25.00", total, "interest column sums to flat total")
}

func TestGenerate_FlatEqualPrincipal(t *testing.T) {
	terms := baseTerms()
	terms.Principal = d("1000")
	terms.NumberOfInstallments = 3
	terms.InterestMethod = generic.InterestFlat
	terms.AmortizationType = generic.AmortizationEqualPrincipal

	rows := generate(t, terms)

	assertAmount(t, "333.33", rows[0].PrincipalDue)
	assertAmount(t, "333.33", rows[1].PrincipalDue)
	assertAmount(t, "333.34", rows[2].PrincipalDue)
	for _, r := range rows {
		assertAmount(t, "10", r.InterestDue, "flat interest ignores the declining balance")
	}
}

// =============================================================================
// GRACE AND DOWN PAYMENT
// =============================================================================

func TestGenerate_PrincipalGrace_AmortizesOverRemaining(t *testing.T) {
	terms := baseTerms()
	terms.Principal = d("1000")
	terms.AmortizationType = generic.AmortizationEqualPrincipal
	terms.GraceOnPrincipalPeriods = 1

	rows := generate(t, terms)

	assertAmount(t, "0", rows[0].PrincipalDue)
	assertAmount(t, "10", rows[0].InterestDue)
	assertAmount(t, "333.33", rows[1].PrincipalDue)
	assertAmount(t, "10", rows[1].InterestDue)
	assertAmount(t, "333.33", rows[2].PrincipalDue)
	assertAmount(t, "6.67", rows[2].InterestDue)
	assertAmount(t, "333.34", rows[3].PrincipalDue)
	assertAmount(t, "3.33", rows[3].InterestDue)
}

func TestGenerate_InterestGrace_WaivesInterestKeepsPrincipal(t *testing.T) {
	// GIVEN: The regression fixture with one period of interest grace
	// WHEN: Generating
	// THEN: Period 1 owes no interest but still pays installment − computed interest
	terms := baseTerms()
	terms.GraceOnInterestPeriods = 1

	rows := generate(t, terms)

	assertAmount(t, "0", rows[0].InterestDue)
	assertAmount(t, "24628.11", rows[0].PrincipalDue)
	assertAmount(t, "753.72", rows[1].InterestDue)
	assertAmount(t, "25374.37", rows[3].PrincipalDue)
}

func TestGenerate_DownPayment_FirstRowOnDisbursementDate(t *testing.T) {
	terms := baseTerms()
	terms.Principal = d("1000")
	terms.AmortizationType = generic.AmortizationEqualPrincipal
	terms.DownPaymentPercentage = d("10")

	s, err := amortization.Generate(terms, nil)
	require.NoError(t, err)
	require.NoError(t, s.ValidateConservation())

	require.Len(t, s.Periods, 6)
	assert.True(t, s.Periods[0].IsDisbursement())
	dp := s.Periods[1]
	assert.True(t, dp.IsDownPayment)
	assert.Equal(t, 1, dp.PeriodNumber)
	assert.True(t, dp.FromDate.Equal(terms.ExpectedDisbursementDate))
	assert.True(t, dp.DueDate.Equal(terms.ExpectedDisbursementDate))
	assertAmount(t, "100", dp.PrincipalDue)
	assertAmount(t, "0", dp.InterestDue)

	interest := []string{"9", "6.75", "4.50", "2.25"}
	for i, r := range s.Periods[2:] {
		assert.Equal(t, i+2, r.PeriodNumber)
		assertAmount(t, "225", r.PrincipalDue)
		assertAmount(t, interest[i], r.InterestDue)
	}
}

// =============================================================================
// TRANCHES
// =============================================================================

func TestGenerate_TrancheMidPeriod_ProRatesAndResolves(t *testing.T) {
	// GIVEN: 1,000 on 2011-09-20 and 500 more on 2011-11-05
	// WHEN: Generating declining equal principal
	// THEN: The tranche accrues for its 15 of 31 days and principal is re-solved
	terms := baseTerms()
	terms.Principal = d("1500")
	terms.AmortizationType = generic.AmortizationEqualPrincipal

	s, err := amortization.Generate(terms, []generic.Disbursement{
		{Date: date(2011, time.September, 20), Amount: d("1000")},
		{Date: date(2011, time.November, 5), Amount: d("500")},
	})
	require.NoError(t, err)
	require.NoError(t, s.ValidateConservation())

	require.Len(t, s.Periods, 6)
	assert.True(t, s.Periods[2].IsDisbursement(), "tranche row sits between installments 1 and 2")
	assert.True(t, s.Periods[2].DueDate.Equal(date(2011, time.November, 5)))

	rows := s.Installments()
	assertAmount(t, "250", rows[0].PrincipalDue)
	assertAmount(t, "10", rows[0].InterestDue)
	assertAmount(t, "416.67", rows[1].PrincipalDue)
	assertAmount(t, "9.92", rows[1].InterestDue)
	assertAmount(t, "416.67", rows[2].PrincipalDue)
	assertAmount(t, "8.33", rows[2].InterestDue)
	assertAmount(t, "416.66", rows[3].PrincipalDue)
	assertAmount(t, "4.17", rows[3].InterestDue)
}

func TestGenerate_TrancheAfterMaturity_Rejected(t *testing.T) {
	terms := baseTerms()
	terms.Principal = d("1500")

	_, err := amortization.Generate(terms, []generic.Disbursement{
		{Date: date(2011, time.September, 20), Amount: d("1000")},
		{Date: date(2012, time.February, 1), Amount: d("500")},
	})

	var termsErr *generic.InvalidTermsError
	require.ErrorAs(t, err, &termsErr)
	assert.Equal(t, "disbursements", termsErr.Field)
	assert.ErrorIs(t, err, generic.ErrInvalidTerms)
}

func TestGenerate_TranchesMustSumToPrincipal(t *testing.T) {
	_, err := amortization.Generate(baseTerms(), []generic.Disbursement{
		{Date: date(2011, time.September, 20), Amount: d("1000")},
	})
	assert.ErrorIs(t, err, generic.ErrInvalidTerms)
}

// =============================================================================
// DATES AND RATES
// =============================================================================

func TestGenerate_MonthEndAnchor_Clamps(t *testing.T) {
	terms := baseTerms()
	terms.Principal = d("300")
	terms.NumberOfInstallments = 3
	terms.AmortizationType = generic.AmortizationEqualPrincipal
	terms.ExpectedDisbursementDate = date(2024, time.January, 31)

	rows := generate(t, terms)

	assert.True(t, rows[0].DueDate.Equal(date(2024, time.February, 29)))
	assert.True(t, rows[1].DueDate.Equal(date(2024, time.March, 31)), "dates derive from the anchor, not the clamped February date")
	assert.True(t, rows[2].DueDate.Equal(date(2024, time.April, 30)))
	assertAmount(t, "3", rows[0].InterestDue, "clamped months are still regular periods")
	assertAmount(t, "2", rows[1].InterestDue)
	assertAmount(t, "1", rows[2].InterestDue)
}

func TestGenerate_DailyCalculation_UsesDayCount(t *testing.T) {
	terms := baseTerms()
	terms.Principal = d("36500")
	terms.NominalAnnualRate = d("10")
	terms.NumberOfInstallments = 1
	terms.InterestCalculationPeriod = generic.CalculationDaily
	terms.DaysInYear = generic.DaysInYear365
	terms.ExpectedDisbursementDate = date(2023, time.January, 1)

	rows := generate(t, terms)

	assertAmount(t, "310", rows[0].InterestDue, "36,500 × 10% × 31/365")
	assertAmount(t, "36500", rows[0].PrincipalDue)
}

func TestGenerate_FirstRepaymentDate_AnchorsCadence(t *testing.T) {
	terms := baseTerms()
	terms.FirstRepaymentDate = date(2011, time.November, 1)

	rows := generate(t, terms)

	assert.True(t, rows[0].DueDate.Equal(date(2011, time.November, 1)))
	assert.True(t, rows[3].DueDate.Equal(date(2012, time.February, 1)))
	assert.True(t, rows[0].InterestDue.GreaterThan(d("1000")), "longer first period accrues more")
}

// =============================================================================
// FAILURES AND PURITY
// =============================================================================

func TestGenerate_RoundedPrincipalOvershoots_Rejected(t *testing.T) {
	// GIVEN: 0.09 over 6 equal-principal installments, so each row rounds
	//        up to 0.02
	// WHEN: Generating
	// THEN: The fifth row would repay more than is outstanding and the
	//       schedule is rejected rather than clamped
	terms := baseTerms()
	terms.Principal = d("0.09")
	terms.NominalAnnualRate = decimal.Zero
	terms.NumberOfInstallments = 6
	terms.AmortizationType = generic.AmortizationEqualPrincipal

	_, err := amortization.Generate(terms, nil)

	var residual *generic.NegativeResidualError
	require.ErrorAs(t, err, &residual)
	assertAmount(t, "-0.01", residual.Principal)
	assert.True(t, residual.Date.Equal(date(2012, time.February, 20)))
	assert.True(t, generic.IsInvariantViolation(err))
}

func TestGenerate_UnsupportedPolicy(t *testing.T) {
	terms := baseTerms()
	terms.InterestMethod = "compound"

	_, err := amortization.Generate(terms, nil)

	var polErr *generic.UnsupportedPolicyError
	require.ErrorAs(t, err, &polErr)
	assert.ErrorIs(t, err, generic.ErrUnsupportedPolicyCombination)
	assert.True(t, generic.IsClientError(err))
}

func TestGenerate_InvalidTerms(t *testing.T) {
	cases := map[string]func(*generic.LoanTerms){
		"zero principal":    func(t *generic.LoanTerms) { t.Principal = decimal.Zero },
		"negative rate":     func(t *generic.LoanTerms) { t.NominalAnnualRate = d("-1") },
		"no installments":   func(t *generic.LoanTerms) { t.NumberOfInstallments = 0 },
		"grace covers loan": func(t *generic.LoanTerms) { t.GraceOnPrincipalPeriods = 4 },
		"bad currency":      func(t *generic.LoanTerms) { t.CurrencyCode = "usd" },
		"first repayment":   func(t *generic.LoanTerms) { t.FirstRepaymentDate = date(2011, time.September, 1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			terms := baseTerms()
			mutate(&terms)
			_, err := amortization.Generate(terms, nil)
			assert.ErrorIs(t, err, generic.ErrInvalidTerms)
		})
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a, err := amortization.Generate(baseTerms(), nil)
	require.NoError(t, err)
	b, err := amortization.Generate(baseTerms(), nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAnnuity_ZeroRate(t *testing.T) {
	assertAmount(t, "250", amortization.Annuity(d("1000"), decimal.Zero, 4))
}
