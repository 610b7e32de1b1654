package reschedule_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-engine/amortization"
	"github.com/warp/loan-engine/generic"
	"github.com/warp/loan-engine/holiday"
	"github.com/warp/loan-engine/reschedule"
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

// terms is 1,000 at 1% per month over 4 months from 2011-09-20, equal
// principal: 250 per row, interest 10 / 7.50 / 5 / 2.50.
func terms() generic.LoanTerms {
	return generic.LoanTerms{
		Principal:                 d("1000"),
		NominalAnnualRate:         d("12"),
		NumberOfInstallments:      4,
		RepaymentEvery:            1,
		RepaymentFrequency:        generic.FrequencyMonths,
		InterestMethod:            generic.InterestDeclining,
		AmortizationType:          generic.AmortizationEqualPrincipal,
		InterestCalculationPeriod: generic.CalculationSameAsRepayment,
		DaysInYear:                generic.DaysInYearActual,
		CurrencyDigits:            2,
		ExpectedDisbursementDate:  date(2011, time.September, 20),
	}
}

func committed(t *testing.T, lt generic.LoanTerms, cal holiday.Calendar, tranches ...generic.Disbursement) generic.Schedule {
	t.Helper()
	s, err := amortization.Generate(lt, tranches)
	require.NoError(t, err)
	s, err = holiday.Adjust(s, cal)
	require.NoError(t, err)
	return s
}

func plan(t *testing.T, s generic.Schedule, req generic.RescheduleRequest, cal holiday.Calendar) *reschedule.Plan {
	t.Helper()
	p, err := reschedule.PlanRequest("loan-1", terms(), s, req, cal)
	require.NoError(t, err)
	require.NoError(t, p.Schedule.ValidateConservation())
	require.NoError(t, p.Schedule.ValidateOrdering())
	return p
}

// =============================================================================
// TAIL REGENERATION
// =============================================================================

func TestPlan_ExtraTerms_StretchesOutstandingOverLongerTail(t *testing.T) {
	// GIVEN: 500 outstanding before installment 3
	// WHEN: Rescheduling from installment 3 with two extra installments
	// THEN: The head is kept and the tail is four installments of 125
	s := committed(t, terms(), holiday.Calendar{})

	p := plan(t, s, generic.RescheduleRequest{RescheduleFromInstallment: 3, ExtraTerms: 2}, holiday.Calendar{})

	assertAmount(t, "500", p.Outstanding)
	assert.Equal(t, 3, p.PivotNumber)
	rows := p.Schedule.Installments()
	require.Len(t, rows, 6)

	for i := 0; i < 2; i++ {
		assert.True(t, rows[i].IsRecomputedFromExisting, "head row %d", i+1)
		assertAmount(t, "250", rows[i].PrincipalDue)
	}
	wantDue := []generic.TimePoint{date(2011, time.December, 20), date(2012, time.January, 20), date(2012, time.February, 20), date(2012, time.March, 20)}
	wantInterest := []string{"5", "3.75", "2.50", "1.25"}
	for i, row := range rows[2:] {
		assert.False(t, row.IsRecomputedFromExisting)
		assert.Equal(t, i+3, row.PeriodNumber)
		assert.True(t, row.DueDate.Equal(wantDue[i]), "row %d due %s", i+3, row.DueDate)
		assertAmount(t, "125", row.PrincipalDue)
		assertAmount(t, wantInterest[i], row.InterestDue)
	}
	assert.True(t, rows[2].FromDate.Equal(date(2011, time.November, 20)))
	assertAmount(t, "0", rows[5].PrincipalOutstandingAfter)
	assert.Len(t, p.OldTail, 2)
	assert.Equal(t, 4, p.AdjustedTerms.NumberOfInstallments, "adjusted terms cover the tail only")
	assertAmount(t, "500", p.AdjustedTerms.Principal)
}

func TestPlan_PrincipalGrace(t *testing.T) {
	s := committed(t, terms(), holiday.Calendar{})

	p := plan(t, s, generic.RescheduleRequest{RescheduleFromInstallment: 3, GraceOnPrincipal: 1}, holiday.Calendar{})

	tail := p.NewTail
	require.Len(t, tail, 2)
	assertAmount(t, "0", tail[0].PrincipalDue)
	assertAmount(t, "5", tail[0].InterestDue, "interest keeps accruing on 500")
	assertAmount(t, "500", tail[1].PrincipalDue)
	assertAmount(t, "5", tail[1].InterestDue)
}

func TestPlan_NewRate_OnlyWithRecalculation(t *testing.T) {
	s := committed(t, terms(), holiday.Calendar{})
	rate := d("24")

	recalculated := plan(t, s, generic.RescheduleRequest{RescheduleFromInstallment: 3, NewInterestRate: &rate, RecalculateInterest: true}, holiday.Calendar{})
	assertAmount(t, "10", recalculated.NewTail[0].InterestDue)
	assertAmount(t, "5", recalculated.NewTail[1].InterestDue)

	ignored := plan(t, s, generic.RescheduleRequest{RescheduleFromInstallment: 3, NewInterestRate: &rate, AdjustedDueDate: date(2011, time.December, 20)}, holiday.Calendar{})
	assertAmount(t, "5", ignored.NewTail[0].InterestDue)
}

func TestPlan_AdjustedDueDate_MovesFirstTailInstallment(t *testing.T) {
	s := committed(t, terms(), holiday.Calendar{})

	p := plan(t, s, generic.RescheduleRequest{RescheduleFromDate: date(2011, time.December, 20), AdjustedDueDate: date(2011, time.December, 27)}, holiday.Calendar{})

	tail := p.NewTail
	assert.True(t, tail[0].DueDate.Equal(date(2011, time.December, 27)))
	assert.True(t, tail[1].DueDate.Equal(date(2012, time.January, 27)))
	assertAmount(t, "6.08", tail[0].InterestDue, "500 × 12% × 37/365")
	assertAmount(t, "2.50", tail[1].InterestDue)
}

func TestPlan_AdjustedDueDateBeforePivot_Rejected(t *testing.T) {
	s := committed(t, terms(), holiday.Calendar{})

	_, err := reschedule.PlanRequest("loan-1", terms(), s, generic.RescheduleRequest{RescheduleFromInstallment: 3, AdjustedDueDate: date(2011, time.December, 1)}, holiday.Calendar{})

	assert.ErrorIs(t, err, generic.ErrInvalidRequest)
}

func TestPlan_HolidayShiftedPivot_KeepsOriginalCadence(t *testing.T) {
	// GIVEN: Weekends closed, so 2011-11-20 (Sunday) was committed as 11-21
	// WHEN: Rescheduling from installment 3 with one extra installment
	// THEN: The tail keeps the 20th-of-month rhythm and starts on 11-21
	cal := holiday.Calendar{WorkingDays: generic.StandardWorkingDays()}
	s := committed(t, terms(), cal)
	require.True(t, s.Installments()[1].DueDate.Equal(date(2011, time.November, 21)))

	p := plan(t, s, generic.RescheduleRequest{RescheduleFromInstallment: 3, ExtraTerms: 1}, cal)

	tail := p.NewTail
	require.Len(t, tail, 3)
	assert.True(t, tail[0].FromDate.Equal(date(2011, time.November, 21)))
	assert.True(t, tail[0].DueDate.Equal(date(2011, time.December, 20)))
	assert.True(t, tail[1].DueDate.Equal(date(2012, time.January, 20)))
	assert.True(t, tail[2].DueDate.Equal(date(2012, time.February, 20)))
	for i, want := range []string{"166.67", "166.67", "166.66"} {
		assertAmount(t, want, tail[i].PrincipalDue)
	}
	for i, want := range []string{"5", "3.33", "1.67"} {
		assertAmount(t, want, tail[i].InterestDue)
	}
}

func TestPlan_FutureTrancheStaysInTail(t *testing.T) {
	// GIVEN: 1,500 in two tranches, the second on 2011-11-05
	// WHEN: Rescheduling from installment 2 (2011-10-20 .. 11-20)
	// THEN: The tranche row survives and lands inside the new tail
	lt := terms()
	lt.Principal = d("1500")
	tranches := []generic.Disbursement{
		{Date: date(2011, time.September, 20), Amount: d("1000")},
		{Date: date(2011, time.November, 5), Amount: d("500")},
	}
	s, err := amortization.Generate(lt, tranches)
	require.NoError(t, err)

	p, err := reschedule.PlanRequest("loan-1", lt, s, generic.RescheduleRequest{RescheduleFromInstallment: 2, ExtraTerms: 1}, holiday.Calendar{})
	require.NoError(t, err)
	require.NoError(t, p.Schedule.ValidateConservation())

	assertAmount(t, "750", p.Outstanding)
	assert.Len(t, p.Schedule.Disbursements(), 2)
	tail := p.NewTail
	require.Len(t, tail, 4)
	assertAmount(t, "9.92", tail[0].InterestDue, "7.50 + 500 × 1% × 15/31")
	for _, row := range tail {
		assertAmount(t, "312.50", row.PrincipalDue)
	}
	assertAmount(t, "1500", p.Schedule.TotalPrincipal())
}

// =============================================================================
// CHARGES AND DIFF
// =============================================================================

func TestPlan_CarriesChargesAndWaivesZeroValueRows(t *testing.T) {
	s := committed(t, terms(), holiday.Calendar{})
	for i := range s.Periods {
		switch {
		case s.Periods[i].DueDate.Equal(date(2011, time.December, 20)):
			s.Periods[i].FeeChargesDue = d("15")
		case s.Periods[i].DueDate.Equal(date(2012, time.January, 20)):
			s.Periods[i].PenaltyChargesDue = d("5")
		}
	}

	p := plan(t, s, generic.RescheduleRequest{RescheduleFromInstallment: 3, GraceOnPrincipal: 1, GraceOnInterest: 1}, holiday.Calendar{})

	tail := p.NewTail
	assert.True(t, tail[0].IsZeroValue())
	assertAmount(t, "0", tail[0].FeeChargesDue, "waived")
	assertAmount(t, "5", tail[1].PenaltyChargesDue, "carried")

	require.Len(t, p.Waivers, 1)
	assert.Equal(t, generic.LoanID("loan-1"), p.Waivers[0].LoanID)
	assert.True(t, p.Waivers[0].DueDate.Equal(date(2011, time.December, 20)))
	assertAmount(t, "15", p.Waivers[0].FeeCharges)
}

func TestPlan_MovedDueDates_ChargesFollowToCoveringRow(t *testing.T) {
	// GIVEN: A fee on installment 3 and a penalty on installment 4
	// WHEN: Rescheduling from installment 3 with the first due date moved a
	//       week later, so neither old date survives
	// THEN: Each charge lands on the next new installment and nothing is
	//       waived or lost
	s := committed(t, terms(), holiday.Calendar{})
	s.Periods[s.FindByNumber(3)].FeeChargesDue = d("15")
	s.Periods[s.FindByNumber(4)].PenaltyChargesDue = d("5")

	p := plan(t, s, generic.RescheduleRequest{RescheduleFromInstallment: 3, AdjustedDueDate: date(2011, time.December, 27)}, holiday.Calendar{})

	tail := p.NewTail
	require.Len(t, tail, 2)
	assert.True(t, tail[0].DueDate.Equal(date(2011, time.December, 27)))
	assertAmount(t, "15", tail[0].FeeChargesDue)
	assert.True(t, tail[1].DueDate.Equal(date(2012, time.January, 27)))
	assertAmount(t, "5", tail[1].PenaltyChargesDue)
	assert.Empty(t, p.Waivers)
}

func TestPlan_FirstDueDatePastOldDates_ChargesCollectOnIt(t *testing.T) {
	// GIVEN: Fees on installments 3 and 4
	// WHEN: The first new due date is moved past both old due dates
	// THEN: Both fees land on the first new installment
	s := committed(t, terms(), holiday.Calendar{})
	s.Periods[s.FindByNumber(3)].FeeChargesDue = d("15")
	s.Periods[s.FindByNumber(4)].FeeChargesDue = d("10")

	p := plan(t, s, generic.RescheduleRequest{RescheduleFromInstallment: 3, AdjustedDueDate: date(2012, time.January, 25)}, holiday.Calendar{})

	require.NotEmpty(t, p.NewTail)
	assert.True(t, p.NewTail[0].DueDate.Equal(date(2012, time.January, 25)))
	assertAmount(t, "25", p.NewTail[0].FeeChargesDue)
	assert.Empty(t, p.Waivers)
}

func TestPlan_DiffClassifiesTailRows(t *testing.T) {
	s := committed(t, terms(), holiday.Calendar{})

	p := plan(t, s, generic.RescheduleRequest{RescheduleFromInstallment: 3, ExtraTerms: 1}, holiday.Calendar{})

	kinds := map[reschedule.ChangeKind]int{}
	for _, c := range p.Changes {
		kinds[c.Kind]++
	}
	assert.Equal(t, 2, kinds[reschedule.ChangeModified])
	assert.Equal(t, 1, kinds[reschedule.ChangeAdded])
	assert.Zero(t, kinds[reschedule.ChangeRemoved])
}

// =============================================================================
// PIVOT ERRORS
// =============================================================================

func TestPlan_PivotAtOrBeforeSettled_Rejected(t *testing.T) {
	s := committed(t, terms(), holiday.Calendar{})
	s.Periods[s.FindByNumber(2)].ObligationsMet = true

	_, err := reschedule.PlanRequest("loan-1", terms(), s, generic.RescheduleRequest{RescheduleFromInstallment: 2, ExtraTerms: 1}, holiday.Calendar{})

	var head *generic.PivotBeforeHeadError
	require.ErrorAs(t, err, &head)
	assert.Equal(t, 2, head.LastSettled)
	assert.True(t, generic.IsStateError(err))

	_, err = reschedule.PlanRequest("loan-1", terms(), s, generic.RescheduleRequest{RescheduleFromInstallment: 3, ExtraTerms: 1}, holiday.Calendar{})
	assert.NoError(t, err)
}

func TestPlan_UnknownPivotDate(t *testing.T) {
	s := committed(t, terms(), holiday.Calendar{})

	_, err := reschedule.PlanRequest("loan-1", terms(), s, generic.RescheduleRequest{RescheduleFromDate: date(2011, time.December, 21), ExtraTerms: 1}, holiday.Calendar{})

	assert.ErrorIs(t, err, generic.ErrUnknownAnchorDueDate)
}

func TestPlan_PivotNumberAndDateDisagree(t *testing.T) {
	s := committed(t, terms(), holiday.Calendar{})

	_, err := reschedule.PlanRequest("loan-1", terms(), s, generic.RescheduleRequest{
		RescheduleFromInstallment: 2,
		RescheduleFromDate:        date(2011, time.December, 20),
		ExtraTerms:                1,
	}, holiday.Calendar{})

	var invalid *generic.InvalidRequestError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "rescheduleFromDate", invalid.Field)
}

func TestPlan_DoesNotModifyInput(t *testing.T) {
	s := committed(t, terms(), holiday.Calendar{})
	snapshot := s.Clone()

	_, err := reschedule.PlanRequest("loan-1", terms(), s, generic.RescheduleRequest{RescheduleFromInstallment: 2, ExtraTerms: 2}, holiday.Calendar{})
	require.NoError(t, err)

	assert.Equal(t, snapshot, s)
}
