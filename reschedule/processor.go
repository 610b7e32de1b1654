package reschedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/loan-engine/generic"
	"github.com/warp/loan-engine/holiday"
)

// =============================================================================
// PROCESSOR - Request lifecycle
// =============================================================================

// Processor owns the submit / approve / reject lifecycle. Submit and Reject
// write the request directly. Approve hands its whole outcome to
// Target.Commit as one ScheduleChange so the caller can hold its own
// per-loan lock around a single atomic write.
//
// At most one Approve per loan may run at a time. Callers serialize.
type Processor struct {
	Requests generic.RequestStore
	Waiver   generic.ChargeWaiver
	Logger   zerolog.Logger

	// Now stamps history entries. Defaults to time.Now.
	Now func() time.Time
}

func NewProcessor(requests generic.RequestStore, waiver generic.ChargeWaiver, logger zerolog.Logger) *Processor {
	return &Processor{
		Requests: requests,
		Waiver:   waiver,
		Logger:   logger.With().Str("component", "reschedule").Logger(),
		Now:      time.Now,
	}
}

// Target is the loan an approval applies to. Commit must apply the change
// all-or-nothing, usually through a generic.ScheduleCommitter.
type Target struct {
	Terms    generic.LoanTerms
	Schedule generic.Schedule
	Calendar holiday.Calendar
	Commit   func(ctx context.Context, change generic.ScheduleChange) error
}

// Validate checks a request before submission. firstDisbursement is the
// loan's first tranche date.
func Validate(req generic.RescheduleRequest, firstDisbursement generic.TimePoint) error {
	switch {
	case req.LoanID == "":
		return &generic.InvalidRequestError{Field: "loanId", Reason: "is required"}
	case req.RescheduleFromInstallment <= 0 && req.RescheduleFromDate.IsZero():
		return &generic.InvalidRequestError{Field: "rescheduleFromDate", Reason: "a pivot installment number or due date is required"}
	case req.RescheduleFromInstallment < 0:
		return &generic.InvalidRequestError{Field: "rescheduleFromInstallment", Reason: "must not be negative"}
	case req.GraceOnPrincipal < 0:
		return &generic.InvalidRequestError{Field: "graceOnPrincipal", Reason: "must not be negative"}
	case req.GraceOnInterest < 0:
		return &generic.InvalidRequestError{Field: "graceOnInterest", Reason: "must not be negative"}
	case req.ExtraTerms < 0:
		return &generic.InvalidRequestError{Field: "extraTerms", Reason: "must not be negative"}
	case req.NewInterestRate != nil && req.NewInterestRate.IsNegative():
		return &generic.InvalidRequestError{Field: "newInterestRate", Reason: "must not be negative"}
	case req.NewInterestRate != nil && !req.RecalculateInterest:
		return &generic.InvalidRequestError{Field: "newInterestRate", Reason: "is only applied with recalculateInterest"}
	case !req.HasChanges():
		return &generic.InvalidRequestError{Field: "request", Reason: "asks for no change"}
	case req.SubmittedOn.IsZero():
		return &generic.InvalidRequestError{Field: "submittedOnDate", Reason: "is required"}
	case !firstDisbursement.IsZero() && req.SubmittedOn.Before(firstDisbursement):
		return &generic.InvalidRequestError{Field: "submittedOnDate", Reason: "must not be before the disbursement date " + firstDisbursement.String()}
	case !req.AdjustedDueDate.IsZero() && !req.RescheduleFromDate.IsZero() && req.AdjustedDueDate.Before(req.RescheduleFromDate):
		return &generic.InvalidRequestError{Field: "adjustedDueDate", Reason: "must not be before the reschedule-from date"}
	}
	return nil
}

// Submit validates req, assigns it an ID and persists it as submitted.
func (p *Processor) Submit(ctx context.Context, req generic.RescheduleRequest, firstDisbursement generic.TimePoint) (*generic.RescheduleRequest, error) {
	if err := Validate(req, firstDisbursement); err != nil {
		return nil, err
	}
	req.ID = generic.RequestID(uuid.NewString())
	req.Status = generic.RequestSubmitted
	req.ApprovedOn, req.RejectedOn = generic.TimePoint{}, generic.TimePoint{}
	if err := p.Requests.SaveRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("save reschedule request: %w", err)
	}
	p.Logger.Info().
		Str("request_id", string(req.ID)).
		Str("loan_id", string(req.LoanID)).
		Msg("reschedule request submitted")
	return &req, nil
}

// Preview plans a stored request without changing anything.
func (p *Processor) Preview(ctx context.Context, id generic.RequestID, target Target) (*generic.RescheduleRequest, *Plan, error) {
	req, err := p.Requests.GetRequest(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	plan, err := PlanRequest(req.LoanID, target.Terms, target.Schedule, *req, target.Calendar)
	if err != nil {
		return nil, nil, err
	}
	return req, plan, nil
}

// Approve plans the request and commits the archived tail, the new schedule
// and the approved request as one change. Waiver notices go out only after
// that commit. A failed commit leaves the request submitted and the
// schedule untouched, so the request can be approved again safely.
func (p *Processor) Approve(ctx context.Context, id generic.RequestID, asOf generic.TimePoint, target Target) (*generic.RescheduleRequest, *Plan, error) {
	req, err := p.Requests.GetRequest(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := req.CheckTransition("approve", asOf); err != nil {
		return nil, nil, err
	}

	plan, err := PlanRequest(req.LoanID, target.Terms, target.Schedule, *req, target.Calendar)
	if err != nil {
		p.Logger.Warn().Err(err).Str("request_id", string(id)).Msg("reschedule plan failed")
		return nil, nil, err
	}

	approved := *req
	if err := approved.Approve(asOf); err != nil {
		return nil, nil, err
	}
	change := generic.ScheduleChange{
		LoanID:   req.LoanID,
		Schedule: plan.Schedule,
		Archive: &generic.HistoryEntry{
			ID:         uuid.NewString(),
			LoanID:     req.LoanID,
			RequestID:  req.ID,
			Reason:     generic.HistoryReschedule,
			Periods:    plan.OldTail,
			ArchivedOn: asOf,
			CreatedAt:  p.now(),
		},
		Request: &approved,
	}
	if err := target.Commit(ctx, change); err != nil {
		return nil, nil, fmt.Errorf("commit rescheduled schedule: %w", err)
	}

	p.sendWaivers(ctx, plan.Waivers)

	p.Logger.Info().
		Str("request_id", string(approved.ID)).
		Str("loan_id", string(approved.LoanID)).
		Int("pivot", plan.PivotNumber).
		Int("old_tail", len(plan.OldTail)).
		Int("new_tail", len(plan.NewTail)).
		Msg("reschedule request approved")
	return &approved, plan, nil
}

// Reject marks the request rejected. The schedule is not touched.
func (p *Processor) Reject(ctx context.Context, id generic.RequestID, asOf generic.TimePoint) (*generic.RescheduleRequest, error) {
	req, err := p.Requests.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := req.Reject(asOf); err != nil {
		return nil, err
	}
	if err := p.Requests.SaveRequest(ctx, *req); err != nil {
		return nil, fmt.Errorf("save rejected request: %w", err)
	}
	p.Logger.Info().Str("request_id", string(req.ID)).Msg("reschedule request rejected")
	return req, nil
}

// sendWaivers is fire-and-forget: a failed notice is logged, never returned.
func (p *Processor) sendWaivers(ctx context.Context, waivers []generic.WaiverNotice) {
	if p.Waiver == nil {
		return
	}
	for _, w := range waivers {
		if err := p.Waiver.WaiveCharges(ctx, w); err != nil {
			p.Logger.Error().Err(err).
				Str("loan_id", string(w.LoanID)).
				Str("due_date", w.DueDate.String()).
				Msg("charge waiver failed")
		}
	}
}

func (p *Processor) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}
