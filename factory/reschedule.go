package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/generic"
)

// RescheduleJSON is the body of a reschedule submission.
type RescheduleJSON struct {
	RescheduleFromInstallment int                 `json:"rescheduleFromInstallment,omitempty"`
	RescheduleFromDate        generic.TimePoint   `json:"rescheduleFromDate"`
	GraceOnPrincipal          int                 `json:"graceOnPrincipal,omitempty"`
	GraceOnInterest           int                 `json:"graceOnInterest,omitempty"`
	ExtraTerms                int                 `json:"extraTerms,omitempty"`
	NewInterestRate           decimal.NullDecimal `json:"newInterestRate"`
	RecalculateInterest       bool                `json:"recalculateInterest,omitempty"`
	AdjustedDueDate           generic.TimePoint   `json:"adjustedDueDate"`
	ReasonCode                string              `json:"reasonCode,omitempty"`
	ReasonComment             string              `json:"reasonComment,omitempty"`
	SubmittedOnDate           generic.TimePoint   `json:"submittedOnDate"`
}

// DecisionJSON is the body of approve and reject.
type DecisionJSON struct {
	Date generic.TimePoint `json:"date"`
}

// ParseReschedule decodes a submission into an unsaved request for loanID.
// Defaults the submission date to today.
func ParseReschedule(loanID generic.LoanID, data []byte) (generic.RescheduleRequest, error) {
	var rj RescheduleJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return generic.RescheduleRequest{}, fmt.Errorf("failed to parse reschedule JSON: %w", err)
	}
	return RescheduleFromJSON(loanID, rj), nil
}

func RescheduleFromJSON(loanID generic.LoanID, rj RescheduleJSON) generic.RescheduleRequest {
	req := generic.RescheduleRequest{
		LoanID:                    loanID,
		RescheduleFromInstallment: rj.RescheduleFromInstallment,
		RescheduleFromDate:        rj.RescheduleFromDate,
		GraceOnPrincipal:          rj.GraceOnPrincipal,
		GraceOnInterest:           rj.GraceOnInterest,
		ExtraTerms:                rj.ExtraTerms,
		RecalculateInterest:       rj.RecalculateInterest,
		AdjustedDueDate:           rj.AdjustedDueDate,
		ReasonCode:                rj.ReasonCode,
		ReasonComment:             rj.ReasonComment,
		SubmittedOn:               rj.SubmittedOnDate,
	}
	if rj.NewInterestRate.Valid {
		rate := rj.NewInterestRate.Decimal
		req.NewInterestRate = &rate
	}
	if req.SubmittedOn.IsZero() {
		req.SubmittedOn = generic.Today()
	}
	return req
}

// ParseDecision decodes an approve/reject body, defaulting to today.
func ParseDecision(data []byte) (generic.TimePoint, error) {
	var dj DecisionJSON
	if len(data) > 0 {
		if err := json.Unmarshal(data, &dj); err != nil {
			return generic.TimePoint{}, fmt.Errorf("failed to parse decision JSON: %w", err)
		}
	}
	if dj.Date.IsZero() {
		return generic.Today(), nil
	}
	return dj.Date, nil
}
