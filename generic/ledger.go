/*
ledger.go - Append-only schedule history

PURPOSE:
  Whenever a committed schedule is replaced (a reschedule approval, a
  variation commit, a holiday re-application) the periods being replaced
  are archived first. The history is the audit trail that explains how a
  loan's current schedule came to be.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. ARCHIVE FIRST: The old periods are written before the new schedule
     is committed, so a crash never loses the prior state
  3. ORDERED: History is returned oldest first

SEE ALSO:
  - store.go: Other collaborator interfaces
  - reschedule/processor.go: Archives the tail before replacing it
*/
package generic

import (
	"context"
	"time"
)

// HistoryReason says why periods were archived.
type HistoryReason string

const (
	HistoryReschedule HistoryReason = "reschedule"
	HistoryVariation  HistoryReason = "variation"
	HistoryHolidays   HistoryReason = "holiday_reapplication"
)

// HistoryEntry is one archived set of periods.
type HistoryEntry struct {
	ID         string           `json:"id"`
	LoanID     LoanID           `json:"loanId"`
	RequestID  RequestID        `json:"requestId,omitempty"`
	Reason     HistoryReason    `json:"reason"`
	Periods    []SchedulePeriod `json:"periods"`
	ArchivedOn TimePoint        `json:"archivedOn"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// ScheduleHistoryStore is the append-only archive.
// IMPORTANT: There is no Update or Delete. Ever.
type ScheduleHistoryStore interface {
	// Archive appends an entry.
	Archive(ctx context.Context, entry HistoryEntry) error

	// History returns all entries for a loan, oldest first.
	History(ctx context.Context, loanID LoanID) ([]HistoryEntry, error)
}
