/*
handlers.go - HTTP API handlers for the loan engine

PURPOSE:
  Exposes the loan service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to loan.Service.

ENDPOINTS:
  Loans:
    GET    /api/loans                          List all loans
    POST   /api/loans                          Create loan (commits base schedule)
    GET    /api/loans/{id}                     Get loan details
    GET    /api/loans/{id}/schedule            Current schedule
    GET    /api/loans/{id}/schedule/history    Archived periods
    POST   /api/loans/{id}/recalculate         Re-apply holidays now
    POST   /api/loans/{id}/settle              Mark installments settled

  Variations:
    POST   /api/loans/{id}/variations/preview  Apply edits without writing
    POST   /api/loans/{id}/variations          Apply and commit edits

  Reschedule:
    GET    /api/loans/{id}/reschedule-requests List a loan's requests
    POST   /api/loans/{id}/reschedule-requests Submit request
    GET    /api/reschedule-requests/{id}       Get request
    GET    /api/reschedule-requests/{id}/preview  Plan without writing
    POST   /api/reschedule-requests/{id}/approve  Approve and commit
    POST   /api/reschedule-requests/{id}/reject   Reject

  Calendar:
    GET    /api/holidays, POST /api/holidays, DELETE /api/holidays/{id}
    GET    /api/working-days, PUT /api/working-days

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Service: Loan operations (engine + persistence)
  - Store: Calendar administration and database reset

ERROR HANDLING:
  Errors are returned as JSON {"error", "details"} with HTTP status:
  - 400: Validation errors, invalid input, malformed JSON
  - 404: Loan or request not found
  - 409: Request lifecycle conflict, pivot inside the settled head
  - 422: A computed schedule broke an invariant
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/loan-engine/factory"
	"github.com/warp/loan-engine/generic"
	"github.com/warp/loan-engine/loan"
	"github.com/warp/loan-engine/store/sqlite"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *loan.Service
	Store   *sqlite.Store
	Logger  zerolog.Logger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler wires a loan service over store. metrics may be nil.
func NewHandler(store *sqlite.Store, metrics *Metrics, logger zerolog.Logger) *Handler {
	svc := loan.NewService(loan.Stores{
		Loans:       store,
		Requests:    store,
		History:     store,
		Commits:     store,
		Holidays:    store,
		WorkingDays: store,
		Waiver:      store,
	}, logger)
	if metrics != nil {
		svc.Observer = metrics
	}
	return &Handler{
		Service: svc,
		Store:   store,
		Logger:  logger.With().Str("component", "api").Logger(),
	}
}

// =============================================================================
// LOAN HANDLERS
// =============================================================================

// ListLoans returns all loans.
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.Service.ListLoans(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list loans", err)
		return
	}
	dtos := make([]LoanDTO, len(loans))
	for i, l := range loans {
		dtos[i] = toLoanDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateLoan parses a factory.LoanJSON body and commits its base schedule.
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	l, err := factory.ParseLoan(body)
	if err != nil {
		h.writeDecodeError(w, "Invalid loan", err)
		return
	}
	created, err := h.Service.CreateLoan(r.Context(), l)
	if err != nil {
		h.writeDomainError(w, "Failed to create loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanDTO(*created))
}

// GetLoan returns a single loan.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	l, err := h.Service.GetLoan(r.Context(), loanID(r))
	if err != nil {
		h.writeDomainError(w, "Failed to get loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(*l))
}

// GetSchedule returns the loan's current schedule.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id := loanID(r)
	l, err := h.Service.GetLoan(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get loan", err)
		return
	}
	s, err := h.Service.PreviewSchedule(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to build schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(id, l.Terms, s))
}

// GetScheduleHistory returns every archived set of periods, oldest first.
func (h *Handler) GetScheduleHistory(w http.ResponseWriter, r *http.Request) {
	id := loanID(r)
	l, err := h.Service.GetLoan(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get loan", err)
		return
	}
	entries, err := h.Service.ScheduleHistory(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to load history", err)
		return
	}
	dtos := make([]HistoryEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = HistoryEntryDTO{
			ID:         e.ID,
			RequestID:  string(e.RequestID),
			Reason:     string(e.Reason),
			ArchivedOn: e.ArchivedOn,
			CreatedAt:  e.CreatedAt,
			Periods:    toPeriodDTOs(e.Periods, l.Terms),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Recalculate re-applies holidays to one loan.
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	changed, err := h.Service.Recalculate(r.Context(), loanID(r))
	if err != nil {
		h.writeDomainError(w, "Failed to recalculate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

// SettleInstallments marks installments 1..throughInstallment as settled.
func (h *Handler) SettleInstallments(w http.ResponseWriter, r *http.Request) {
	id := loanID(r)
	l, err := h.Service.GetLoan(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get loan", err)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req SettleRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid settlement", err)
		return
	}
	s, err := h.Service.MarkSettled(r.Context(), id, req.ThroughInstallment)
	if err != nil {
		h.writeDomainError(w, "Settlement rejected", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(id, l.Terms, s))
}

// =============================================================================
// VARIATION HANDLERS
// =============================================================================

// PreviewVariations applies edits and returns the result without writing.
func (h *Handler) PreviewVariations(w http.ResponseWriter, r *http.Request) {
	h.variations(w, r, false)
}

// SubmitVariations applies edits and commits the result.
func (h *Handler) SubmitVariations(w http.ResponseWriter, r *http.Request) {
	h.variations(w, r, true)
}

func (h *Handler) variations(w http.ResponseWriter, r *http.Request, commit bool) {
	id := loanID(r)
	l, err := h.Service.GetLoan(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get loan", err)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	vs, err := factory.ParseVariations(l.Terms, body)
	if err != nil {
		h.writeDecodeError(w, "Invalid variations", err)
		return
	}

	apply := h.Service.ValidateAndPreviewVariations
	if commit {
		apply = h.Service.SubmitVariations
	}
	s, err := apply(r.Context(), id, vs)
	if err != nil {
		h.writeDomainError(w, "Variations rejected", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(id, l.Terms, s))
}

// =============================================================================
// RESCHEDULE HANDLERS
// =============================================================================

// SubmitRescheduleRequest validates and stores a request for the loan.
func (h *Handler) SubmitRescheduleRequest(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	id := loanID(r)
	req, err := factory.ParseReschedule(id, body)
	if err != nil {
		h.writeDecodeError(w, "Invalid reschedule request", err)
		return
	}
	saved, err := h.Service.SubmitRescheduleRequest(r.Context(), id, req)
	if err != nil {
		h.writeDomainError(w, "Reschedule request rejected", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(*saved))
}

// ListRescheduleRequests returns a loan's requests in submission order.
func (h *Handler) ListRescheduleRequests(w http.ResponseWriter, r *http.Request) {
	id := loanID(r)
	if _, err := h.Service.GetLoan(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to get loan", err)
		return
	}
	reqs, err := h.Service.ListRescheduleRequests(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to list requests", err)
		return
	}
	dtos := make([]RescheduleRequestDTO, len(reqs))
	for i, req := range reqs {
		dtos[i] = toRequestDTO(req)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRescheduleRequest returns a single request.
func (h *Handler) GetRescheduleRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Service.GetRescheduleRequest(r.Context(), requestID(r))
	if err != nil {
		h.writeDomainError(w, "Failed to get request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*req))
}

// PreviewRescheduleRequest plans a request against the current schedule.
func (h *Handler) PreviewRescheduleRequest(w http.ResponseWriter, r *http.Request) {
	id := requestID(r)
	req, err := h.Service.GetRescheduleRequest(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get request", err)
		return
	}
	l, err := h.Service.GetLoan(r.Context(), req.LoanID)
	if err != nil {
		h.writeDomainError(w, "Failed to get loan", err)
		return
	}
	plan, err := h.Service.PreviewRescheduleRequest(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to plan request", err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanDTO(*req, l.Terms, plan))
}

// ApproveRescheduleRequest commits the request. Body: {"date": "YYYY-MM-DD"}.
func (h *Handler) ApproveRescheduleRequest(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	asOf, err := factory.ParseDecision(body)
	if err != nil {
		h.writeDecodeError(w, "Invalid approval", err)
		return
	}
	req, plan, err := h.Service.ApproveRescheduleRequest(r.Context(), requestID(r), asOf)
	if err != nil {
		h.writeDomainError(w, "Approval failed", err)
		return
	}
	l, err := h.Service.GetLoan(r.Context(), req.LoanID)
	if err != nil {
		h.writeDomainError(w, "Failed to get loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanDTO(*req, l.Terms, plan))
}

// RejectRescheduleRequest rejects the request. Body: {"date": "YYYY-MM-DD"}.
func (h *Handler) RejectRescheduleRequest(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	asOf, err := factory.ParseDecision(body)
	if err != nil {
		h.writeDecodeError(w, "Invalid rejection", err)
		return
	}
	req, err := h.Service.RejectRescheduleRequest(r.Context(), requestID(r), asOf)
	if err != nil {
		h.writeDomainError(w, "Rejection failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*req))
}

// =============================================================================
// CALENDAR HANDLERS
// =============================================================================

// ListHolidays returns every holiday.
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.Store.ListHolidays(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list holidays", err)
		return
	}
	if holidays == nil {
		holidays = []generic.Holiday{}
	}
	writeJSON(w, http.StatusOK, holidays)
}

// CreateHoliday stores a holiday. Future schedules pick it up on the next
// recalculation.
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var hol generic.Holiday
	if err := json.Unmarshal(body, &hol); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid holiday", err)
		return
	}
	if hol.ShiftPolicy == "" {
		hol.ShiftPolicy = generic.HolidayShiftNextWorkingDay
	}
	if err := hol.Validate(); err != nil {
		h.writeDomainError(w, "Invalid holiday", err)
		return
	}
	if hol.ID == "" {
		hol.ID = uuid.NewString()
	}
	if err := h.Store.SaveHoliday(r.Context(), hol); err != nil {
		h.writeDomainError(w, "Failed to save holiday", err)
		return
	}
	writeJSON(w, http.StatusCreated, hol)
}

// DeleteHoliday removes a holiday by ID.
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, "Failed to delete holiday", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetWorkingDays returns the working-day configuration.
func (h *Handler) GetWorkingDays(w http.ResponseWriter, r *http.Request) {
	wd, err := h.Store.CurrentWorkingDays(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to load working days", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkingDaysDTO(wd))
}

// PutWorkingDays replaces the working-day configuration.
func (h *Handler) PutWorkingDays(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var dto WorkingDaysDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid working days", err)
		return
	}
	wd, err := dto.toDomain()
	if err != nil {
		h.writeDomainError(w, "Invalid working days", err)
		return
	}
	if err := h.Store.SetWorkingDays(r.Context(), wd); err != nil {
		h.writeDomainError(w, "Failed to save working days", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkingDaysDTO(wd))
}

// Healthz pings the database.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func loanID(r *http.Request) generic.LoanID {
	return generic.LoanID(chi.URLParam(r, "id"))
}

func requestID(r *http.Request) generic.RequestID {
	return generic.RequestID(chi.URLParam(r, "id"))
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large", err)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "Failed to read request body", err)
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps the engine's error taxonomy to HTTP.
func statusFor(err error) int {
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsStateError(err):
		return http.StatusConflict
	case generic.IsInvariantViolation(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error().Err(err).Msg(message)
	}
	writeError(w, status, message, err)
}

// writeDecodeError treats anything outside the taxonomy as malformed input.
func (h *Handler) writeDecodeError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		status = http.StatusBadRequest
	}
	writeError(w, status, message, err)
}
