/*
Package loan is the host service in front of the engine.

PURPOSE:
  The engine packages are pure functions over terms and schedules. This
  package owns everything around them: loading the loan and its committed
  schedule, assembling the office calendar, committing results, archiving
  what a commit replaces and serializing writes per loan.

OPERATIONS:
  CreateLoan                     Validate, generate and commit the base schedule
  PreviewSchedule                The committed schedule (or a fresh one)
  ValidateAndPreviewVariations   Apply edits without writing
  SubmitVariations               Apply edits, archive and commit atomically
  SubmitRescheduleRequest        Validate and persist a request
  ApproveRescheduleRequest       Plan, then archive + commit + transition atomically
  RejectRescheduleRequest        Transition only
  Recalculate                    Re-apply holidays to unsettled installments
  MarkSettled                    Flag installments as settled by the host

CONCURRENCY:
  Every write path takes the loan's mutex, so at most one approve or
  variation commit runs per loan. Reads do not lock.

SEE ALSO:
  - reschedule/processor.go: Request lifecycle
  - api/handlers.go: REST surface
  - api/scheduler.go: Periodic Recalculate over all loans
*/
package loan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/loan-engine/amortization"
	"github.com/warp/loan-engine/generic"
	"github.com/warp/loan-engine/holiday"
	"github.com/warp/loan-engine/reschedule"
	"github.com/warp/loan-engine/variation"
)

// Observer is told about every operation. api.Metrics implements it.
type Observer interface {
	Observe(operation string, started time.Time, err error)
}

// Stores bundles the collaborators. Holidays, WorkingDays and Waiver may be nil.
type Stores struct {
	Loans       generic.LoanStore
	Requests    generic.RequestStore
	History     generic.ScheduleHistoryStore
	Commits     generic.ScheduleCommitter
	Holidays    generic.HolidayCalendar
	WorkingDays generic.WorkingDaySource
	Waiver      generic.ChargeWaiver
}

// Service exposes the loan operations over a set of stores.
type Service struct {
	Loans       generic.LoanStore
	History     generic.ScheduleHistoryStore
	Commits     generic.ScheduleCommitter
	Holidays    generic.HolidayCalendar
	WorkingDays generic.WorkingDaySource
	Reschedules *reschedule.Processor
	Observer    Observer
	Logger      zerolog.Logger

	// Now stamps loans and history entries. Defaults to time.Now.
	Now func() time.Time

	mu    sync.Mutex
	locks map[generic.LoanID]*sync.Mutex
}

func NewService(stores Stores, logger zerolog.Logger) *Service {
	return &Service{
		Loans:       stores.Loans,
		History:     stores.History,
		Commits:     stores.Commits,
		Holidays:    stores.Holidays,
		WorkingDays: stores.WorkingDays,
		Reschedules: reschedule.NewProcessor(stores.Requests, stores.Waiver, logger),
		Logger:      logger.With().Str("component", "loan").Logger(),
		Now:         time.Now,
		locks:       make(map[generic.LoanID]*sync.Mutex),
	}
}

// =============================================================================
// LOANS
// =============================================================================

// CreateLoan validates the loan, assigns an ID when missing, and commits
// its base schedule.
func (s *Service) CreateLoan(ctx context.Context, loan generic.Loan) (_ *generic.Loan, err error) {
	defer s.observe("create_loan", time.Now(), &err)

	if err := loan.Terms.Validate(); err != nil {
		return nil, err
	}
	if loan.ID == "" {
		loan.ID = generic.LoanID(uuid.NewString())
	}
	if _, err := s.Loans.GetLoan(ctx, loan.ID); err == nil {
		return nil, &generic.InvalidRequestError{Field: "id", Reason: fmt.Sprintf("loan %s already exists", loan.ID)}
	} else if !generic.IsNotFound(err) {
		return nil, err
	}

	schedule, err := s.generate(ctx, loan)
	if err != nil {
		return nil, err
	}

	now := s.now()
	loan.CreatedAt, loan.UpdatedAt = now, now
	if err := s.Loans.SaveLoan(ctx, loan); err != nil {
		return nil, fmt.Errorf("save loan: %w", err)
	}
	if err := s.Loans.SaveSchedule(ctx, loan.ID, schedule); err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}
	s.Logger.Info().
		Str("loan_id", string(loan.ID)).
		Int("installments", len(schedule.Installments())).
		Msg("loan created")
	return &loan, nil
}

func (s *Service) GetLoan(ctx context.Context, id generic.LoanID) (*generic.Loan, error) {
	return s.Loans.GetLoan(ctx, id)
}

func (s *Service) ListLoans(ctx context.Context) ([]generic.Loan, error) {
	return s.Loans.ListLoans(ctx)
}

// ScheduleHistory returns the archived periods of a loan, oldest first.
func (s *Service) ScheduleHistory(ctx context.Context, id generic.LoanID) ([]generic.HistoryEntry, error) {
	if _, err := s.Loans.GetLoan(ctx, id); err != nil {
		return nil, err
	}
	return s.History.History(ctx, id)
}

// =============================================================================
// SCHEDULES
// =============================================================================

// PreviewSchedule returns the committed schedule. A loan with nothing
// committed gets a freshly generated one; nothing is written.
func (s *Service) PreviewSchedule(ctx context.Context, id generic.LoanID) (_ generic.Schedule, err error) {
	defer s.observe("preview_schedule", time.Now(), &err)

	loan, err := s.Loans.GetLoan(ctx, id)
	if err != nil {
		return generic.Schedule{}, err
	}
	return s.current(ctx, *loan)
}

// ValidateAndPreviewVariations applies edits to the current schedule
// without writing anything.
func (s *Service) ValidateAndPreviewVariations(ctx context.Context, id generic.LoanID, vs []variation.Variation) (_ generic.Schedule, err error) {
	defer s.observe("preview_variations", time.Now(), &err)

	loan, err := s.Loans.GetLoan(ctx, id)
	if err != nil {
		return generic.Schedule{}, err
	}
	base, err := s.current(ctx, *loan)
	if err != nil {
		return generic.Schedule{}, err
	}
	return variation.Apply(loan.Terms, base, vs)
}

// SubmitVariations applies edits, archives the replaced schedule and
// commits the result.
func (s *Service) SubmitVariations(ctx context.Context, id generic.LoanID, vs []variation.Variation) (_ generic.Schedule, err error) {
	defer s.observe("submit_variations", time.Now(), &err)
	unlock := s.lock(id)
	defer unlock()

	loan, err := s.Loans.GetLoan(ctx, id)
	if err != nil {
		return generic.Schedule{}, err
	}
	base, err := s.current(ctx, *loan)
	if err != nil {
		return generic.Schedule{}, err
	}
	out, err := variation.Apply(loan.Terms, base, vs)
	if err != nil {
		return generic.Schedule{}, err
	}
	if err := s.replace(ctx, id, base, out, generic.HistoryVariation); err != nil {
		return generic.Schedule{}, err
	}
	s.Logger.Info().Str("loan_id", string(id)).Int("variations", len(vs)).Msg("variations committed")
	return out, nil
}

// Recalculate re-applies the office calendar to installments due from
// today that are still open. Returns whether anything moved.
func (s *Service) Recalculate(ctx context.Context, id generic.LoanID) (changed bool, err error) {
	defer s.observe("recalculate", time.Now(), &err)
	unlock := s.lock(id)
	defer unlock()

	loan, err := s.Loans.GetLoan(ctx, id)
	if err != nil {
		return false, err
	}
	committed, err := s.Loans.GetSchedule(ctx, id)
	if err != nil {
		return false, fmt.Errorf("load schedule: %w", err)
	}
	if committed == nil {
		schedule, err := s.generate(ctx, *loan)
		if err != nil {
			return false, err
		}
		if err := s.Loans.SaveSchedule(ctx, id, schedule); err != nil {
			return false, fmt.Errorf("save schedule: %w", err)
		}
		return true, nil
	}

	today := generic.FromTime(s.now())
	cal, err := holiday.Load(ctx, s.Holidays, s.WorkingDays, loan.OfficeID, today)
	if err != nil {
		return false, err
	}
	adjusted, err := holiday.AdjustFrom(*committed, cal, today)
	if err != nil {
		return false, err
	}
	if sameDates(*committed, adjusted) {
		return false, nil
	}
	if err := s.replace(ctx, id, *committed, adjusted, generic.HistoryHolidays); err != nil {
		return false, err
	}
	s.Logger.Info().Str("loan_id", string(id)).Msg("holidays re-applied")
	return true, nil
}

// MarkSettled flags every installment numbered through as settled. Settled
// installments are never moved by Recalculate and bound a reschedule pivot.
func (s *Service) MarkSettled(ctx context.Context, id generic.LoanID, through int) (_ generic.Schedule, err error) {
	defer s.observe("mark_settled", time.Now(), &err)
	unlock := s.lock(id)
	defer unlock()

	loan, err := s.Loans.GetLoan(ctx, id)
	if err != nil {
		return generic.Schedule{}, err
	}
	schedule, err := s.current(ctx, *loan)
	if err != nil {
		return generic.Schedule{}, err
	}
	last := 0
	for _, p := range schedule.Installments() {
		if p.PeriodNumber > last {
			last = p.PeriodNumber
		}
	}
	if through < 1 || through > last {
		return generic.Schedule{}, &generic.InvalidRequestError{
			Field:  "throughInstallment",
			Reason: fmt.Sprintf("must be between 1 and %d", last),
		}
	}
	for i, p := range schedule.Periods {
		if !p.IsDisbursement() && p.PeriodNumber <= through {
			schedule.Periods[i].ObligationsMet = true
		}
	}
	if err := s.Loans.SaveSchedule(ctx, id, schedule); err != nil {
		return generic.Schedule{}, fmt.Errorf("save schedule: %w", err)
	}
	s.Logger.Info().Str("loan_id", string(id)).Int("through", through).Msg("installments settled")
	return schedule, nil
}

// =============================================================================
// RESCHEDULE REQUESTS
// =============================================================================

// SubmitRescheduleRequest validates req against the loan and stores it.
func (s *Service) SubmitRescheduleRequest(ctx context.Context, id generic.LoanID, req generic.RescheduleRequest) (_ *generic.RescheduleRequest, err error) {
	defer s.observe("submit_reschedule", time.Now(), &err)

	loan, err := s.Loans.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	req.LoanID = id
	return s.Reschedules.Submit(ctx, req, loan.Tranches()[0].Date)
}

func (s *Service) GetRescheduleRequest(ctx context.Context, id generic.RequestID) (*generic.RescheduleRequest, error) {
	return s.Reschedules.Requests.GetRequest(ctx, id)
}

func (s *Service) ListRescheduleRequests(ctx context.Context, id generic.LoanID) ([]generic.RescheduleRequest, error) {
	return s.Reschedules.Requests.ListRequests(ctx, id)
}

// PreviewRescheduleRequest plans a stored request against the current
// schedule without writing.
func (s *Service) PreviewRescheduleRequest(ctx context.Context, id generic.RequestID) (_ *reschedule.Plan, err error) {
	defer s.observe("preview_reschedule", time.Now(), &err)

	req, err := s.Reschedules.Requests.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	target, err := s.target(ctx, req.LoanID)
	if err != nil {
		return nil, err
	}
	_, plan, err := s.Reschedules.Preview(ctx, id, target)
	return plan, err
}

// ApproveRescheduleRequest applies the request under the loan's lock.
func (s *Service) ApproveRescheduleRequest(ctx context.Context, id generic.RequestID, asOf generic.TimePoint) (_ *generic.RescheduleRequest, _ *reschedule.Plan, err error) {
	defer s.observe("approve_reschedule", time.Now(), &err)

	req, err := s.Reschedules.Requests.GetRequest(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	unlock := s.lock(req.LoanID)
	defer unlock()

	target, err := s.target(ctx, req.LoanID)
	if err != nil {
		return nil, nil, err
	}
	return s.Reschedules.Approve(ctx, id, asOf, target)
}

func (s *Service) RejectRescheduleRequest(ctx context.Context, id generic.RequestID, asOf generic.TimePoint) (_ *generic.RescheduleRequest, err error) {
	defer s.observe("reject_reschedule", time.Now(), &err)
	return s.Reschedules.Reject(ctx, id, asOf)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) target(ctx context.Context, id generic.LoanID) (reschedule.Target, error) {
	loan, err := s.Loans.GetLoan(ctx, id)
	if err != nil {
		return reschedule.Target{}, err
	}
	schedule, err := s.current(ctx, *loan)
	if err != nil {
		return reschedule.Target{}, err
	}
	cal, err := holiday.Load(ctx, s.Holidays, s.WorkingDays, loan.OfficeID, loan.Tranches()[0].Date)
	if err != nil {
		return reschedule.Target{}, err
	}
	return reschedule.Target{
		Terms:    loan.Terms,
		Schedule: schedule,
		Calendar: cal,
		Commit:   s.Commits.CommitSchedule,
	}, nil
}

func (s *Service) current(ctx context.Context, loan generic.Loan) (generic.Schedule, error) {
	committed, err := s.Loans.GetSchedule(ctx, loan.ID)
	if err != nil {
		return generic.Schedule{}, fmt.Errorf("load schedule: %w", err)
	}
	if committed != nil {
		return *committed, nil
	}
	return s.generate(ctx, loan)
}

func (s *Service) generate(ctx context.Context, loan generic.Loan) (generic.Schedule, error) {
	tranches := loan.Tranches()
	base, err := amortization.Generate(loan.Terms, tranches)
	if err != nil {
		return generic.Schedule{}, err
	}
	cal, err := holiday.Load(ctx, s.Holidays, s.WorkingDays, loan.OfficeID, tranches[0].Date)
	if err != nil {
		return generic.Schedule{}, err
	}
	return holiday.Adjust(base, cal)
}

// replace archives old and commits next in one atomic change.
func (s *Service) replace(ctx context.Context, id generic.LoanID, old, next generic.Schedule, reason generic.HistoryReason) error {
	now := s.now()
	change := generic.ScheduleChange{
		LoanID:   id,
		Schedule: next,
		Archive: &generic.HistoryEntry{
			ID:         uuid.NewString(),
			LoanID:     id,
			Reason:     reason,
			Periods:    old.Periods,
			ArchivedOn: generic.FromTime(now),
			CreatedAt:  now,
		},
	}
	if err := s.Commits.CommitSchedule(ctx, change); err != nil {
		return fmt.Errorf("commit schedule: %w", err)
	}
	return nil
}

func (s *Service) lock(id generic.LoanID) func() {
	s.mu.Lock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (s *Service) observe(op string, started time.Time, err *error) {
	if s.Observer != nil {
		s.Observer.Observe(op, started, *err)
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func sameDates(a, b generic.Schedule) bool {
	if len(a.Periods) != len(b.Periods) {
		return false
	}
	for i := range a.Periods {
		if !a.Periods[i].DueDate.Equal(b.Periods[i].DueDate) || !a.Periods[i].FromDate.Equal(b.Periods[i].FromDate) {
			return false
		}
	}
	return true
}
