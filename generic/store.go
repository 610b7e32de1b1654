/*
store.go - Collaborator interfaces the engine depends on

PURPOSE:
  The amortization core is pure. Everything with state lives behind the
  small interfaces in this file so hosts can back them with SQLite, an
  in-memory map, or a remote service.

KEY INTERFACES:
  RequestStore:      Persist and load reschedule requests
  HolidayCalendar:   Holidays for an office on or after a date
  WorkingDaySource:  The office's current working-day configuration
  LoanStore:         Loans and their committed schedules
  ScheduleCommitter: Archive, schedule and request state in one write
  ChargeWaiver:      Fire-and-forget notice that a zero-value installment's
                     charges should be waived

  The append-only schedule history lives in ledger.go.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: ScheduleHistoryStore
  - reschedule/processor.go: Main consumer
*/
package generic

import (
	"context"

	"github.com/shopspring/decimal"
)

// RequestStore persists reschedule requests.
type RequestStore interface {
	// SaveRequest inserts or replaces the request with the same ID.
	SaveRequest(ctx context.Context, req RescheduleRequest) error

	// GetRequest returns ErrRequestNotFound (wrapped) for unknown IDs.
	GetRequest(ctx context.Context, id RequestID) (*RescheduleRequest, error)

	// ListRequests returns every request for a loan ordered by submission.
	ListRequests(ctx context.Context, loanID LoanID) ([]RescheduleRequest, error)
}

// HolidayCalendar supplies holidays for an office.
type HolidayCalendar interface {
	// HolidaysAfter returns holidays ending on or after date.
	HolidaysAfter(ctx context.Context, officeID string, date TimePoint) ([]Holiday, error)
}

// WorkingDaySource supplies the working-day configuration.
type WorkingDaySource interface {
	CurrentWorkingDays(ctx context.Context) (WorkingDaySet, error)
}

// WaiverNotice names an installment whose charges should be waived.
type WaiverNotice struct {
	LoanID         LoanID          `json:"loanId"`
	DueDate        TimePoint       `json:"dueDate"`
	FeeCharges     decimal.Decimal `json:"feeCharges"`
	PenaltyCharges decimal.Decimal `json:"penaltyCharges"`
}

// ChargeWaiver receives waiver notices. Failures are reported but never
// undo the reschedule that produced the notice.
type ChargeWaiver interface {
	WaiveCharges(ctx context.Context, notice WaiverNotice) error
}

// LoanStore persists loans and their committed schedules.
type LoanStore interface {
	SaveLoan(ctx context.Context, loan Loan) error

	// GetLoan returns ErrLoanNotFound (wrapped) for unknown IDs.
	GetLoan(ctx context.Context, id LoanID) (*Loan, error)
	ListLoans(ctx context.Context) ([]Loan, error)

	// SaveSchedule replaces the committed schedule.
	SaveSchedule(ctx context.Context, id LoanID, schedule Schedule) error

	// GetSchedule returns nil when no schedule has been committed yet.
	GetSchedule(ctx context.Context, id LoanID) (*Schedule, error)
}

// ScheduleChange is one schedule replacement. Archive holds the periods it
// replaces; Request, when set, is the request state the change completes.
type ScheduleChange struct {
	LoanID   LoanID
	Schedule Schedule
	Archive  *HistoryEntry
	Request  *RescheduleRequest
}

// ScheduleCommitter applies a ScheduleChange all-or-nothing: on error none
// of the archive, the schedule or the request has changed.
type ScheduleCommitter interface {
	CommitSchedule(ctx context.Context, change ScheduleChange) error
}
