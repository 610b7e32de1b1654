/*
request.go - Reschedule request lifecycle

PURPOSE:
  A reschedule request asks to regenerate the unsettled tail of a
  committed schedule with new terms. It is persisted on submission and
  moves exactly once to a terminal state.

REQUEST FLOW:
  ┌──────────────────────────────────────────────────────────────────┐
  │                                                                  │
  │   submit ──▶ ┌───────────┐  approve  ┌──────────┐                │
  │              │ submitted │ ────────▶ │ approved │ (schedule      │
  │              └───────────┘           └──────────┘  replaced)     │
  │                    │                                             │
  │                    │ reject          ┌──────────┐                │
  │                    └───────────────▶ │ rejected │ (no effect)    │
  │                                      └──────────┘                │
  │                                                                  │
  └──────────────────────────────────────────────────────────────────┘

  Terminal states never transition again. Approval and rejection dates
  may not precede the submission date.

PIVOT:
  The pivot is the first installment to regenerate. It can be given by
  installment number, by due date, or both (they must agree). Everything
  before the pivot is the head and is kept verbatim.

SEE ALSO:
  - reschedule/processor.go: Plans and commits approved requests
  - store.go: RequestStore persistence contract
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// REQUEST
// =============================================================================

type RequestStatus string

const (
	RequestSubmitted RequestStatus = "submitted"
	RequestApproved  RequestStatus = "approved"
	RequestRejected  RequestStatus = "rejected"
)

func (s RequestStatus) IsTerminal() bool {
	return s == RequestApproved || s == RequestRejected
}

type RescheduleRequest struct {
	ID     RequestID     `json:"id"`
	LoanID LoanID        `json:"loanId"`
	Status RequestStatus `json:"status"`

	// Pivot: by number, by date, or both
	RescheduleFromInstallment int       `json:"rescheduleFromInstallment,omitempty"`
	RescheduleFromDate        TimePoint `json:"rescheduleFromDate"`

	// Incoming changes
	GraceOnPrincipal    int              `json:"graceOnPrincipal"`
	GraceOnInterest     int              `json:"graceOnInterest"`
	ExtraTerms          int              `json:"extraTerms"`
	NewInterestRate     *decimal.Decimal `json:"newInterestRate,omitempty"`
	RecalculateInterest bool             `json:"recalculateInterest"`
	AdjustedDueDate     TimePoint        `json:"adjustedDueDate"`

	ReasonCode    string `json:"reasonCode,omitempty"`
	ReasonComment string `json:"reasonComment,omitempty"`

	SubmittedOn TimePoint `json:"submittedOn"`
	ApprovedOn  TimePoint `json:"approvedOn"`
	RejectedOn  TimePoint `json:"rejectedOn"`
}

// HasChanges reports whether the request asks for anything at all.
func (r *RescheduleRequest) HasChanges() bool {
	return r.GraceOnPrincipal > 0 ||
		r.GraceOnInterest > 0 ||
		r.ExtraTerms > 0 ||
		(r.RecalculateInterest && r.NewInterestRate != nil) ||
		!r.AdjustedDueDate.IsZero()
}

// Approve moves a submitted request to approved.
func (r *RescheduleRequest) Approve(on TimePoint) error {
	if err := r.checkTransition("approve", on); err != nil {
		return err
	}
	r.Status = RequestApproved
	r.ApprovedOn = on
	return nil
}

// Reject moves a submitted request to rejected.
func (r *RescheduleRequest) Reject(on TimePoint) error {
	if err := r.checkTransition("reject", on); err != nil {
		return err
	}
	r.Status = RequestRejected
	r.RejectedOn = on
	return nil
}

// CheckTransition validates an approve or reject without mutating r.
func (r *RescheduleRequest) CheckTransition(action string, on TimePoint) error {
	return r.checkTransition(action, on)
}

func (r *RescheduleRequest) checkTransition(action string, on TimePoint) error {
	if r.Status != RequestSubmitted {
		return &InvalidStateTransitionError{RequestID: r.ID, From: r.Status, Action: action}
	}
	field := "approvedOnDate"
	if action == "reject" {
		field = "rejectedOnDate"
	}
	if on.IsZero() {
		return &InvalidRequestError{Field: field, Reason: "is required"}
	}
	if on.Before(r.SubmittedOn) {
		return &InvalidRequestError{Field: field, Reason: "must not be before the submission date " + r.SubmittedOn.String()}
	}
	return nil
}
