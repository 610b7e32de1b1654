/*
errors.go - Centralized error types for the loan engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every error carries enough context to tell the caller which input or
  which period caused it. None of them is ever silently corrected.

ERROR CATEGORIES:
  1. Client errors - Invalid terms, variations or reschedule requests
  2. Invariant violations - A computed schedule broke a schedule rule
  3. State errors - A request was asked to move where it cannot go
  4. Not found - Unknown loan or request

USAGE:
  Callers classify with the helpers at the bottom of this file, or match
  a specific cause with errors.Is / errors.As:

    if errors.Is(err, generic.ErrNegativeResidual) { ... }

    var gap *generic.InstallmentGapError
    if errors.As(err, &gap) { ... gap.Gap ... }

SEE ALSO:
  - api/handlers.go: Maps categories to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidTerms is returned when loan terms fail validation.
	ErrInvalidTerms = errors.New("invalid loan terms")

	// ErrUnsupportedPolicyCombination is returned for an unknown
	// (interest method, amortization type) pair.
	ErrUnsupportedPolicyCombination = errors.New("unsupported policy combination")

	// ErrVariationsNotAllowed is returned when a loan without variable
	// installments receives schedule edits.
	ErrVariationsNotAllowed = errors.New("variable installments not allowed for this loan")

	// ErrUnknownAnchorDueDate is returned when a variation names a due date
	// that is not in the schedule.
	ErrUnknownAnchorDueDate = errors.New("unknown anchor due date")

	ErrDuplicateDueDate = errors.New("duplicate due date")

	// ErrNegativeResidual is returned when redistribution or plugging
	// drives a period's principal below zero.
	ErrNegativeResidual = errors.New("negative residual principal")

	ErrConflictingVariations = errors.New("conflicting variations")

	// ErrVariationDateOutOfRange is returned when a moved or added due date
	// does not fit between its neighbours.
	ErrVariationDateOutOfRange = errors.New("variation date out of range")

	ErrInstallmentGap = errors.New("installment gap out of bounds")

	// ErrNoRedistributionTarget is returned when an amount change has no
	// following installment to absorb the difference.
	ErrNoRedistributionTarget = errors.New("no installment to absorb the difference")

	// ErrDateOrderingViolation is returned when due dates stop strictly increasing.
	ErrDateOrderingViolation = errors.New("due date ordering violation")

	// ErrPrincipalConservation is returned when principal due no longer
	// sums to principal disbursed.
	ErrPrincipalConservation = errors.New("principal conservation violated")

	// ErrHolidayShiftCycle is returned when working-day and holiday rules
	// keep moving a date without settling.
	ErrHolidayShiftCycle = errors.New("holiday shift did not settle")

	ErrInvalidRequest = errors.New("invalid reschedule request")

	// ErrInvalidStateTransition is returned when a request is not in a
	// state that allows the requested action.
	ErrInvalidStateTransition = errors.New("invalid request state transition")

	// ErrPivotBeforeHead is returned when the reschedule pivot is at or
	// before an installment whose obligations are already met.
	ErrPivotBeforeHead = errors.New("reschedule pivot before settled head")

	ErrRequestNotFound = errors.New("reschedule request not found")
	ErrLoanNotFound    = errors.New("loan not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type InvalidTermsError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidTermsError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid loan terms: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid loan terms: %s=%s %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidTermsError) Unwrap() error { return ErrInvalidTerms }

type UnsupportedPolicyError struct {
	Method       InterestMethod
	Amortization AmortizationType
}

func (e *UnsupportedPolicyError) Error() string {
	return fmt.Sprintf("unsupported policy combination: interest method %q with amortization %q", e.Method, e.Amortization)
}

func (e *UnsupportedPolicyError) Unwrap() error { return ErrUnsupportedPolicyCombination }

type UnknownAnchorError struct {
	Date TimePoint
}

func (e *UnknownAnchorError) Error() string {
	return fmt.Sprintf("no installment due on %s", e.Date)
}

func (e *UnknownAnchorError) Unwrap() error { return ErrUnknownAnchorDueDate }

type DuplicateDueDateError struct {
	Date TimePoint
}

func (e *DuplicateDueDateError) Error() string {
	return fmt.Sprintf("an installment is already due on %s", e.Date)
}

func (e *DuplicateDueDateError) Unwrap() error { return ErrDuplicateDueDate }

// NegativeResidualError names the period whose principal went negative.
type NegativeResidualError struct {
	Date      TimePoint
	Principal decimal.Decimal
}

func (e *NegativeResidualError) Error() string {
	return fmt.Sprintf("principal for installment due %s would be %s", e.Date, e.Principal)
}

func (e *NegativeResidualError) Unwrap() error { return ErrNegativeResidual }

type ConflictingVariationError struct {
	Date  TimePoint
	Kinds []string
}

func (e *ConflictingVariationError) Error() string {
	return fmt.Sprintf("conflicting variations on %s: %s", e.Date, strings.Join(e.Kinds, ", "))
}

func (e *ConflictingVariationError) Unwrap() error { return ErrConflictingVariations }

// VariationDateError reports a due date that must lie inside (Lower, Upper).
// A zero Upper means no upper neighbour.
type VariationDateError struct {
	Date   TimePoint
	Lower  TimePoint
	Upper  TimePoint
	Reason string
}

func (e *VariationDateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("due date %s: %s", e.Date, e.Reason)
	}
	if e.Upper.IsZero() {
		return fmt.Sprintf("due date %s must be after %s", e.Date, e.Lower)
	}
	return fmt.Sprintf("due date %s must be between %s and %s", e.Date, e.Lower, e.Upper)
}

func (e *VariationDateError) Unwrap() error { return ErrVariationDateOutOfRange }

type InstallmentGapError struct {
	From TimePoint
	To   TimePoint
	Gap  int
	Min  int
	Max  int
}

func (e *InstallmentGapError) Error() string {
	return fmt.Sprintf("gap of %d days between %s and %s outside [%d, %d]", e.Gap, e.From, e.To, e.Min, e.Max)
}

func (e *InstallmentGapError) Unwrap() error { return ErrInstallmentGap }

type RedistributionError struct {
	Date   TimePoint
	Amount decimal.Decimal
}

func (e *RedistributionError) Error() string {
	return fmt.Sprintf("change of %s at %s has no following installment to absorb it", e.Amount, e.Date)
}

func (e *RedistributionError) Unwrap() error { return ErrNoRedistributionTarget }

type DateOrderingViolation struct {
	PeriodNumber    int
	DueDate         TimePoint
	PreviousDueDate TimePoint
}

func (e *DateOrderingViolation) Error() string {
	return fmt.Sprintf("period %d due %s does not follow %s", e.PeriodNumber, e.DueDate, e.PreviousDueDate)
}

func (e *DateOrderingViolation) Unwrap() error { return ErrDateOrderingViolation }

type ConservationError struct {
	Disbursed    decimal.Decimal
	PrincipalDue decimal.Decimal
}

func (e *ConservationError) Error() string {
	return fmt.Sprintf("principal due %s does not match disbursed %s", e.PrincipalDue, e.Disbursed)
}

func (e *ConservationError) Unwrap() error { return ErrPrincipalConservation }

type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

func (e *InvalidRequestError) Unwrap() error { return ErrInvalidRequest }

type InvalidStateTransitionError struct {
	RequestID RequestID
	From      RequestStatus
	Action    string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s request %s in status %s", e.Action, e.RequestID, e.From)
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidStateTransition }

type PivotBeforeHeadError struct {
	Pivot       int
	LastSettled int
}

func (e *PivotBeforeHeadError) Error() string {
	return fmt.Sprintf("cannot reschedule from installment %d: installment %d is already settled", e.Pivot, e.LastSettled)
}

func (e *PivotBeforeHeadError) Unwrap() error { return ErrPivotBeforeHead }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTerms) ||
		errors.Is(err, ErrUnsupportedPolicyCombination) ||
		errors.Is(err, ErrVariationsNotAllowed) ||
		errors.Is(err, ErrUnknownAnchorDueDate) ||
		errors.Is(err, ErrDuplicateDueDate) ||
		errors.Is(err, ErrConflictingVariations) ||
		errors.Is(err, ErrVariationDateOutOfRange) ||
		errors.Is(err, ErrNoRedistributionTarget) ||
		errors.Is(err, ErrInvalidRequest)
}

// IsInvariantViolation returns true if a computed schedule broke a rule.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrNegativeResidual) ||
		errors.Is(err, ErrInstallmentGap) ||
		errors.Is(err, ErrDateOrderingViolation) ||
		errors.Is(err, ErrPrincipalConservation) ||
		errors.Is(err, ErrHolidayShiftCycle)
}

// IsStateError returns true if the request lifecycle rejected the action.
func IsStateError(err error) bool {
	return errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrPivotBeforeHead)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrLoanNotFound)
}

// Class names the category for metrics labels.
func Class(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsClientError(err):
		return "client"
	case IsInvariantViolation(err):
		return "invariant"
	case IsStateError(err):
		return "state"
	case IsNotFound(err):
		return "not_found"
	default:
		return "internal"
	}
}
