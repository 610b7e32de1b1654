/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - Amounts fixed to the loan's currency digits
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Loans:
    LoanDTO (request bodies are factory.LoanJSON)

  Schedules:
    PeriodDTO, ScheduleDTO, HistoryEntryDTO, SettleRequest

  Reschedule:
    RescheduleRequestDTO, PlanDTO, PeriodChangeDTO

  Calendar:
    WorkingDaysDTO (holidays use generic.Holiday directly)

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done in factory and the engine, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/terms.go: TermsJSON, LoanJSON
*/
package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/factory"
	"github.com/warp/loan-engine/generic"
	"github.com/warp/loan-engine/reschedule"
)

// =============================================================================
// LOANS
// =============================================================================

// LoanDTO represents a loan in API responses.
type LoanDTO struct {
	ID            string                     `json:"id"`
	OfficeID      string                     `json:"officeId"`
	ClientName    string                     `json:"clientName,omitempty"`
	Terms         factory.TermsJSON          `json:"terms"`
	Disbursements []factory.DisbursementJSON `json:"disbursements"`
	CreatedAt     time.Time                  `json:"createdAt"`
	UpdatedAt     time.Time                  `json:"updatedAt"`
}

func toLoanDTO(l generic.Loan) LoanDTO {
	dto := LoanDTO{
		ID:            string(l.ID),
		OfficeID:      l.OfficeID,
		ClientName:    l.ClientName,
		Terms:         factory.ToJSON(l.Terms),
		Disbursements: []factory.DisbursementJSON{},
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
	for _, d := range l.Tranches() {
		dto.Disbursements = append(dto.Disbursements, factory.DisbursementJSON{Date: d.Date, Amount: d.Amount})
	}
	return dto
}

// =============================================================================
// SCHEDULES
// =============================================================================

// PeriodDTO is one schedule row. Amounts are strings fixed to the loan's
// currency digits.
type PeriodDTO struct {
	PeriodNumber              int               `json:"periodNumber"`
	FromDate                  generic.TimePoint `json:"fromDate"`
	DueDate                   generic.TimePoint `json:"dueDate"`
	PrincipalDisbursed        string            `json:"principalDisbursed,omitempty"`
	PrincipalDue              string            `json:"principalDue"`
	InterestDue               string            `json:"interestDue"`
	FeeChargesDue             string            `json:"feeChargesDue"`
	PenaltyChargesDue         string            `json:"penaltyChargesDue"`
	TotalOutstandingForPeriod string            `json:"totalOutstandingForPeriod"`
	PrincipalOutstanding      string            `json:"principalOutstanding"`
	IsDownPayment             bool              `json:"isDownPayment,omitempty"`
	IsRecomputedFromExisting  bool              `json:"isRecomputedFromExisting,omitempty"`
	ObligationsMet            bool              `json:"obligationsMet,omitempty"`
}

// SummaryDTO renders generic.ScheduleSummary with fixed amounts.
type SummaryDTO struct {
	NumberOfInstallments int               `json:"numberOfInstallments"`
	TotalDisbursed       string            `json:"totalDisbursed"`
	TotalPrincipal       string            `json:"totalPrincipal"`
	TotalInterest        string            `json:"totalInterest"`
	TotalRepayment       string            `json:"totalRepayment"`
	LargestInstallment   string            `json:"largestInstallment"`
	FirstDueDate         generic.TimePoint `json:"firstDueDate"`
	MaturityDate         generic.TimePoint `json:"maturityDate"`
}

// ScheduleDTO is a full schedule response.
type ScheduleDTO struct {
	LoanID       string      `json:"loanId"`
	CurrencyCode string      `json:"currencyCode,omitempty"`
	Periods      []PeriodDTO `json:"periods"`
	Summary      SummaryDTO  `json:"summary"`
}

func toPeriodDTO(p generic.SchedulePeriod, digits int32) PeriodDTO {
	dto := PeriodDTO{
		PeriodNumber:              p.PeriodNumber,
		FromDate:                  p.FromDate,
		DueDate:                   p.DueDate,
		PrincipalDue:              p.PrincipalDue.StringFixed(digits),
		InterestDue:               p.InterestDue.StringFixed(digits),
		FeeChargesDue:             p.FeeChargesDue.StringFixed(digits),
		PenaltyChargesDue:         p.PenaltyChargesDue.StringFixed(digits),
		TotalOutstandingForPeriod: p.TotalDue().StringFixed(digits),
		PrincipalOutstanding:      p.PrincipalOutstandingAfter.StringFixed(digits),
		IsDownPayment:             p.IsDownPayment,
		IsRecomputedFromExisting:  p.IsRecomputedFromExisting,
		ObligationsMet:            p.ObligationsMet,
	}
	if p.IsDisbursement() {
		dto.PrincipalDisbursed = p.PrincipalDisbursed.StringFixed(digits)
	}
	return dto
}

func toPeriodDTOs(periods []generic.SchedulePeriod, terms generic.LoanTerms) []PeriodDTO {
	digits := int32(terms.CurrencyDigits)
	out := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		out[i] = toPeriodDTO(p, digits)
	}
	return out
}

func toScheduleDTO(id generic.LoanID, terms generic.LoanTerms, s generic.Schedule) ScheduleDTO {
	digits := int32(terms.CurrencyDigits)
	sum := generic.Summarize(s)
	return ScheduleDTO{
		LoanID:       string(id),
		CurrencyCode: terms.CurrencyCode,
		Periods:      toPeriodDTOs(s.Periods, terms),
		Summary: SummaryDTO{
			NumberOfInstallments: sum.NumberOfInstallments,
			TotalDisbursed:       sum.TotalDisbursed.StringFixed(digits),
			TotalPrincipal:       sum.TotalPrincipal.StringFixed(digits),
			TotalInterest:        sum.TotalInterest.StringFixed(digits),
			TotalRepayment:       sum.TotalRepayment.StringFixed(digits),
			LargestInstallment:   sum.LargestInstallment.StringFixed(digits),
			FirstDueDate:         sum.FirstDueDate,
			MaturityDate:         sum.MaturityDate,
		},
	}
}

// HistoryEntryDTO is one archived set of periods.
type HistoryEntryDTO struct {
	ID         string            `json:"id"`
	RequestID  string            `json:"requestId,omitempty"`
	Reason     string            `json:"reason"`
	ArchivedOn generic.TimePoint `json:"archivedOn"`
	CreatedAt  time.Time         `json:"createdAt"`
	Periods    []PeriodDTO       `json:"periods"`
}

// =============================================================================
// RESCHEDULE
// =============================================================================

// RescheduleRequestDTO represents a reschedule request in API responses.
type RescheduleRequestDTO struct {
	ID                        string            `json:"id"`
	LoanID                    string            `json:"loanId"`
	Status                    string            `json:"status"`
	RescheduleFromInstallment int               `json:"rescheduleFromInstallment,omitempty"`
	RescheduleFromDate        generic.TimePoint `json:"rescheduleFromDate"`
	GraceOnPrincipal          int               `json:"graceOnPrincipal"`
	GraceOnInterest           int               `json:"graceOnInterest"`
	ExtraTerms                int               `json:"extraTerms"`
	NewInterestRate           *decimal.Decimal  `json:"newInterestRate,omitempty"`
	RecalculateInterest       bool              `json:"recalculateInterest"`
	AdjustedDueDate           generic.TimePoint `json:"adjustedDueDate"`
	ReasonCode                string            `json:"reasonCode,omitempty"`
	ReasonComment             string            `json:"reasonComment,omitempty"`
	SubmittedOnDate           generic.TimePoint `json:"submittedOnDate"`
	ApprovedOnDate            generic.TimePoint `json:"approvedOnDate"`
	RejectedOnDate            generic.TimePoint `json:"rejectedOnDate"`
}

func toRequestDTO(r generic.RescheduleRequest) RescheduleRequestDTO {
	return RescheduleRequestDTO{
		ID:                        string(r.ID),
		LoanID:                    string(r.LoanID),
		Status:                    string(r.Status),
		RescheduleFromInstallment: r.RescheduleFromInstallment,
		RescheduleFromDate:        r.RescheduleFromDate,
		GraceOnPrincipal:          r.GraceOnPrincipal,
		GraceOnInterest:           r.GraceOnInterest,
		ExtraTerms:                r.ExtraTerms,
		NewInterestRate:           r.NewInterestRate,
		RecalculateInterest:       r.RecalculateInterest,
		AdjustedDueDate:           r.AdjustedDueDate,
		ReasonCode:                r.ReasonCode,
		ReasonComment:             r.ReasonComment,
		SubmittedOnDate:           r.SubmittedOn,
		ApprovedOnDate:            r.ApprovedOn,
		RejectedOnDate:            r.RejectedOn,
	}
}

// PeriodChangeDTO is one line of an old/new tail diff.
type PeriodChangeDTO struct {
	Kind    string     `json:"kind"`
	DueDate string     `json:"dueDate"`
	Old     *PeriodDTO `json:"old,omitempty"`
	New     *PeriodDTO `json:"new,omitempty"`
}

// PlanDTO is the result of previewing or approving a request.
type PlanDTO struct {
	Request     RescheduleRequestDTO   `json:"request"`
	PivotNumber int                    `json:"pivotNumber"`
	Outstanding string                 `json:"outstanding"`
	Changes     []PeriodChangeDTO      `json:"changes"`
	Waivers     []generic.WaiverNotice `json:"waivers"`
	Schedule    ScheduleDTO            `json:"schedule"`
}

func toPlanDTO(req generic.RescheduleRequest, terms generic.LoanTerms, p *reschedule.Plan) PlanDTO {
	digits := int32(terms.CurrencyDigits)
	dto := PlanDTO{
		Request:     toRequestDTO(req),
		PivotNumber: p.PivotNumber,
		Outstanding: p.Outstanding.StringFixed(digits),
		Changes:     make([]PeriodChangeDTO, 0, len(p.Changes)),
		Waivers:     p.Waivers,
		Schedule:    toScheduleDTO(req.LoanID, terms, p.Schedule),
	}
	if dto.Waivers == nil {
		dto.Waivers = []generic.WaiverNotice{}
	}
	for _, c := range p.Changes {
		line := PeriodChangeDTO{Kind: string(c.Kind), DueDate: c.DueDate.String()}
		if c.Old != nil {
			old := toPeriodDTO(*c.Old, digits)
			line.Old = &old
		}
		if c.New != nil {
			n := toPeriodDTO(*c.New, digits)
			line.New = &n
		}
		dto.Changes = append(dto.Changes, line)
	}
	return dto
}

// =============================================================================
// CALENDAR
// =============================================================================

// WorkingDaysDTO names weekdays in lowercase English.
type WorkingDaysDTO struct {
	Days []string `json:"days"`
	Rule string   `json:"rule"`
}

func toWorkingDaysDTO(w generic.WorkingDaySet) WorkingDaysDTO {
	dto := WorkingDaysDTO{Days: []string{}, Rule: string(w.Rule)}
	for _, d := range w.Days {
		dto.Days = append(dto.Days, strings.ToLower(d.String()))
	}
	return dto
}

func (dto WorkingDaysDTO) toDomain() (generic.WorkingDaySet, error) {
	w := generic.WorkingDaySet{Rule: generic.NonWorkingDayRule(dto.Rule)}
	if w.Rule == "" {
		w.Rule = generic.NonWorkingNextWorkingDay
	}
	if !w.Rule.Valid() {
		return w, &generic.InvalidRequestError{Field: "rule", Reason: fmt.Sprintf("unknown non-working day rule %q", dto.Rule)}
	}
	for _, name := range dto.Days {
		day, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return w, &generic.InvalidRequestError{Field: "days", Reason: fmt.Sprintf("unknown weekday %q", name)}
		}
		w.Days = append(w.Days, day)
	}
	return w, nil
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SettleRequest is the body of POST /api/loans/{id}/settle.
type SettleRequest struct {
	ThroughInstallment int `json:"throughInstallment"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenarioId"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
