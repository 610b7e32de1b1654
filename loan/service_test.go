package loan_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-engine/generic"
	"github.com/warp/loan-engine/generic/store"
	"github.com/warp/loan-engine/loan"
	"github.com/warp/loan-engine/variation"
)

func date(y int, m time.Month, day int) generic.TimePoint { return generic.NewTimePoint(y, m, day) }

func terms() generic.LoanTerms {
	return generic.LoanTerms{
		Principal:                 decimal.NewFromInt(1000),
		NominalAnnualRate:         decimal.NewFromInt(12),
		NumberOfInstallments:      4,
		RepaymentEvery:            1,
		RepaymentFrequency:        generic.FrequencyMonths,
		InterestMethod:            generic.InterestDeclining,
		AmortizationType:          generic.AmortizationEqualPrincipal,
		InterestCalculationPeriod: generic.CalculationSameAsRepayment,
		DaysInYear:                generic.DaysInYearActual,
		CurrencyDigits:            2,
		RoundingMode:              generic.RoundHalfUp,
		ExpectedDisbursementDate:  date(2011, time.September, 20),
		VariableInstallments:      generic.VariableInstallments{Allowed: true},
	}
}

type recorder struct{ ops []string }

func (r *recorder) Observe(op string, _ time.Time, err error) {
	r.ops = append(r.ops, op+":"+generic.Class(err))
}

func newService(t *testing.T) (*loan.Service, *store.Memory, *recorder) {
	t.Helper()
	mem := store.NewMemory()
	svc := loan.NewService(loan.Stores{
		Loans:       mem,
		Requests:    mem,
		History:     mem,
		Commits:     mem,
		Holidays:    mem,
		WorkingDays: mem,
		Waiver:      mem,
	}, zerolog.Nop())
	svc.Now = func() time.Time { return time.Date(2011, 10, 1, 12, 0, 0, 0, time.UTC) }
	rec := &recorder{}
	svc.Observer = rec
	return svc, mem, rec
}

func createLoan(t *testing.T, svc *loan.Service) generic.LoanID {
	t.Helper()
	l, err := svc.CreateLoan(context.Background(), generic.Loan{ID: "loan-1", OfficeID: "head", Terms: terms()})
	require.NoError(t, err)
	return l.ID
}

// =============================================================================
// LOANS AND PREVIEW
// =============================================================================

func TestCreateLoan_CommitsBaseSchedule(t *testing.T) {
	svc, mem, rec := newService(t)

	id := createLoan(t, svc)

	committed, err := mem.GetSchedule(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, committed)
	assert.Len(t, committed.Installments(), 4)
	assert.Equal(t, []string{"create_loan:none"}, rec.ops)
}

func TestCreateLoan_AssignsID(t *testing.T) {
	svc, _, _ := newService(t)

	l, err := svc.CreateLoan(context.Background(), generic.Loan{Terms: terms()})
	require.NoError(t, err)

	assert.NotEmpty(t, l.ID)
	assert.False(t, l.CreatedAt.IsZero())
}

func TestCreateLoan_Rejects(t *testing.T) {
	svc, _, rec := newService(t)
	createLoan(t, svc)

	_, err := svc.CreateLoan(context.Background(), generic.Loan{ID: "loan-1", Terms: terms()})
	assert.ErrorIs(t, err, generic.ErrInvalidRequest, "duplicate id")

	bad := terms()
	bad.NumberOfInstallments = 0
	_, err = svc.CreateLoan(context.Background(), generic.Loan{Terms: bad})
	assert.ErrorIs(t, err, generic.ErrInvalidTerms)
	assert.Equal(t, "create_loan:client", rec.ops[len(rec.ops)-1])
}

func TestPreviewSchedule_IsIdempotent(t *testing.T) {
	svc, _, _ := newService(t)
	id := createLoan(t, svc)

	first, err := svc.PreviewSchedule(context.Background(), id)
	require.NoError(t, err)
	second, err := svc.PreviewSchedule(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPreviewSchedule_UnknownLoan(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.PreviewSchedule(context.Background(), "missing")

	assert.True(t, generic.IsNotFound(err))
}

func TestCreateLoan_ShiftsHolidays(t *testing.T) {
	// GIVEN: The office closes over the December due date
	// WHEN: Creating the loan
	// THEN: The committed December installment moves past the closure
	svc, mem, _ := newService(t)
	mem.AddHoliday(generic.Holiday{OfficeID: "head", FromDate: date(2011, time.December, 19), ToDate: date(2011, time.December, 21)})

	id := createLoan(t, svc)

	s, err := svc.PreviewSchedule(context.Background(), id)
	require.NoError(t, err)
	inst := s.Installments()
	assert.True(t, inst[2].DueDate.Equal(date(2011, time.December, 22)))
	assert.True(t, inst[3].FromDate.Equal(date(2011, time.December, 22)))
}

// =============================================================================
// VARIATIONS
// =============================================================================

func TestVariations_PreviewThenSubmit(t *testing.T) {
	svc, mem, _ := newService(t)
	id := createLoan(t, svc)
	edits := []variation.Variation{{Kind: variation.KindDelete, DueDate: date(2011, time.December, 20)}}

	preview, err := svc.ValidateAndPreviewVariations(context.Background(), id, edits)
	require.NoError(t, err)
	assert.Len(t, preview.Installments(), 3)

	unchanged, err := svc.PreviewSchedule(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, unchanged.Installments(), 4, "preview does not write")

	committed, err := svc.SubmitVariations(context.Background(), id, edits)
	require.NoError(t, err)
	assert.Equal(t, preview, committed)
	require.NoError(t, committed.ValidateConservation())

	history, err := mem.History(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, generic.HistoryVariation, history[0].Reason)
	assert.Len(t, history[0].Periods, len(unchanged.Periods))
}

func TestSubmitVariations_FailureWritesNothing(t *testing.T) {
	svc, mem, _ := newService(t)
	id := createLoan(t, svc)

	_, err := svc.SubmitVariations(context.Background(), id, []variation.Variation{
		{Kind: variation.KindDelete, DueDate: date(2011, time.December, 21)},
	})

	assert.ErrorIs(t, err, generic.ErrUnknownAnchorDueDate)
	history, _ := mem.History(context.Background(), id)
	assert.Empty(t, history)
}

// =============================================================================
// RESCHEDULE
// =============================================================================

func TestReschedule_SubmitApprove(t *testing.T) {
	svc, _, _ := newService(t)
	id := createLoan(t, svc)

	req, err := svc.SubmitRescheduleRequest(context.Background(), id, generic.RescheduleRequest{
		RescheduleFromInstallment: 3,
		ExtraTerms:                2,
		SubmittedOn:               date(2011, time.November, 1),
	})
	require.NoError(t, err)

	plan, err := svc.PreviewRescheduleRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Len(t, plan.NewTail, 4)

	approved, _, err := svc.ApproveRescheduleRequest(context.Background(), req.ID, date(2011, time.November, 2))
	require.NoError(t, err)
	assert.Equal(t, generic.RequestApproved, approved.Status)

	s, err := svc.PreviewSchedule(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, s.Installments(), 6)

	history, err := svc.ScheduleHistory(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, generic.HistoryReschedule, history[0].Reason)
	assert.Equal(t, req.ID, history[0].RequestID)

	requests, err := svc.ListRescheduleRequests(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, requests, 1)
}

type failingCommits struct{}

func (failingCommits) CommitSchedule(context.Context, generic.ScheduleChange) error {
	return errors.New("disk full")
}

func TestReschedule_FailedCommit_RetryAppliesOnce(t *testing.T) {
	// GIVEN: A submitted request adding two installments and a store that
	//        fails the commit
	// WHEN: Approving, then approving again once the store recovers
	// THEN: The failed approval changes nothing and the retry applies the
	//       request exactly once
	svc, mem, _ := newService(t)
	id := createLoan(t, svc)
	req, err := svc.SubmitRescheduleRequest(context.Background(), id, generic.RescheduleRequest{
		RescheduleFromInstallment: 3,
		ExtraTerms:                2,
		SubmittedOn:               date(2011, time.November, 1),
	})
	require.NoError(t, err)

	svc.Commits = failingCommits{}
	_, _, err = svc.ApproveRescheduleRequest(context.Background(), req.ID, date(2011, time.November, 2))
	require.Error(t, err)

	stored, err := svc.GetRescheduleRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, generic.RequestSubmitted, stored.Status)
	s, _ := svc.PreviewSchedule(context.Background(), id)
	assert.Len(t, s.Installments(), 4)
	history, _ := mem.History(context.Background(), id)
	assert.Empty(t, history)

	svc.Commits = mem
	approved, _, err := svc.ApproveRescheduleRequest(context.Background(), req.ID, date(2011, time.November, 2))
	require.NoError(t, err)
	assert.Equal(t, generic.RequestApproved, approved.Status)
	s, _ = svc.PreviewSchedule(context.Background(), id)
	assert.Len(t, s.Installments(), 6)
	history, _ = mem.History(context.Background(), id)
	assert.Len(t, history, 1)
}

func TestSubmitVariations_FailedCommit_KeepsSchedule(t *testing.T) {
	svc, mem, _ := newService(t)
	id := createLoan(t, svc)
	svc.Commits = failingCommits{}

	_, err := svc.SubmitVariations(context.Background(), id, []variation.Variation{
		{Kind: variation.KindDelete, DueDate: date(2011, time.December, 20)},
	})

	require.Error(t, err)
	s, _ := svc.PreviewSchedule(context.Background(), id)
	assert.Len(t, s.Installments(), 4)
	history, _ := mem.History(context.Background(), id)
	assert.Empty(t, history)
}

func TestScheduleHistory_UnknownLoan(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.ScheduleHistory(context.Background(), "missing")

	assert.True(t, generic.IsNotFound(err))
}

func TestReschedule_SubmitUnknownLoan(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.SubmitRescheduleRequest(context.Background(), "missing", generic.RescheduleRequest{ExtraTerms: 1})

	assert.True(t, generic.IsNotFound(err))
}

func TestReschedule_Reject(t *testing.T) {
	svc, _, _ := newService(t)
	id := createLoan(t, svc)
	req, err := svc.SubmitRescheduleRequest(context.Background(), id, generic.RescheduleRequest{
		RescheduleFromInstallment: 3,
		ExtraTerms:                1,
		SubmittedOn:               date(2011, time.November, 1),
	})
	require.NoError(t, err)

	rejected, err := svc.RejectRescheduleRequest(context.Background(), req.ID, date(2011, time.November, 2))
	require.NoError(t, err)

	assert.Equal(t, generic.RequestRejected, rejected.Status)
	s, _ := svc.PreviewSchedule(context.Background(), id)
	assert.Len(t, s.Installments(), 4)
}

// =============================================================================
// RECALCULATE
// =============================================================================

func TestRecalculate_ReappliesNewHolidays(t *testing.T) {
	// GIVEN: A committed loan and a holiday declared afterwards
	// WHEN: Recalculating
	// THEN: The affected installment moves and the old periods are archived;
	//       a second run is a no-op
	svc, mem, _ := newService(t)
	id := createLoan(t, svc)
	mem.AddHoliday(generic.Holiday{FromDate: date(2011, time.November, 20), ToDate: date(2011, time.November, 20)})

	changed, err := svc.Recalculate(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, changed)

	s, err := svc.PreviewSchedule(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, s.Installments()[1].DueDate.Equal(date(2011, time.November, 21)))

	history, _ := mem.History(context.Background(), id)
	require.Len(t, history, 1)
	assert.Equal(t, generic.HistoryHolidays, history[0].Reason)

	changed, err = svc.Recalculate(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRecalculate_GeneratesWhenNothingCommitted(t *testing.T) {
	svc, mem, _ := newService(t)
	require.NoError(t, mem.SaveLoan(context.Background(), generic.Loan{ID: "bare", Terms: terms()}))

	changed, err := svc.Recalculate(context.Background(), "bare")
	require.NoError(t, err)

	assert.True(t, changed)
	committed, _ := mem.GetSchedule(context.Background(), "bare")
	require.NotNil(t, committed)
}

// =============================================================================
// SETTLEMENT
// =============================================================================

func TestMarkSettled_BlocksPivotInSettledHead(t *testing.T) {
	// GIVEN: A loan whose first two installments the host marks settled
	// WHEN: Approving a reschedule pivoting on installment 2
	// THEN: The approval fails with ErrPivotBeforeHead and nothing changes
	svc, mem, rec := newService(t)
	id := createLoan(t, svc)

	settled, err := svc.MarkSettled(context.Background(), id, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, settled.LastSettledNumber())
	assert.Contains(t, rec.ops, "mark_settled:none")

	req, err := svc.SubmitRescheduleRequest(context.Background(), id, generic.RescheduleRequest{
		RescheduleFromInstallment: 2,
		ExtraTerms:                1,
		SubmittedOn:               date(2011, time.November, 1),
	})
	require.NoError(t, err)

	_, _, err = svc.ApproveRescheduleRequest(context.Background(), req.ID, date(2011, time.November, 2))
	require.ErrorIs(t, err, generic.ErrPivotBeforeHead)
	history, _ := mem.History(context.Background(), id)
	assert.Empty(t, history)
}

func TestMarkSettled_PivotAfterHeadStillApproves(t *testing.T) {
	svc, _, _ := newService(t)
	id := createLoan(t, svc)
	_, err := svc.MarkSettled(context.Background(), id, 2)
	require.NoError(t, err)

	req, err := svc.SubmitRescheduleRequest(context.Background(), id, generic.RescheduleRequest{
		RescheduleFromInstallment: 3,
		ExtraTerms:                1,
		SubmittedOn:               date(2011, time.November, 1),
	})
	require.NoError(t, err)

	_, _, err = svc.ApproveRescheduleRequest(context.Background(), req.ID, date(2011, time.November, 2))
	require.NoError(t, err)
	s, _ := svc.PreviewSchedule(context.Background(), id)
	assert.Equal(t, 2, s.LastSettledNumber())
}

func TestMarkSettled_RejectsOutOfRange(t *testing.T) {
	svc, _, _ := newService(t)
	id := createLoan(t, svc)

	for _, through := range []int{0, 5} {
		_, err := svc.MarkSettled(context.Background(), id, through)
		assert.ErrorIs(t, err, generic.ErrInvalidRequest, "through %d", through)
	}
	s, _ := svc.PreviewSchedule(context.Background(), id)
	assert.Zero(t, s.LastSettledNumber())
}
