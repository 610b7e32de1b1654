/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
	Provides pre-built scenarios that populate the database with loans,
	holidays and working days that demonstrate specific engine features.

AVAILABLE SCENARIOS:
	regression:       100,000 at 12%, 4 monthly equal installments
	equal-principal:  Declining balance with equal principal
	flat:             Flat interest, 12 monthly installments
	tranches:         Two tranches, interest on disbursed principal only
	weekly-holidays:  Weekly loan with a holiday moving a due date
	reschedule:       Regression loan with a submitted reschedule request

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Configure working days and holidays
 3. Create loans via factory.LoanJSON (commits base schedules)
 4. Optionally submit reschedule requests

USAGE VIA API:
	POST /api/scenarios/load
	{"scenarioId": "tranches"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add it to the loaders map

NOTE:
	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Loan and calendar handlers
  - factory/terms.go: Loan JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/factory"
	"github.com/warp/loan-engine/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "regression",
		Name:        "Monthly Equal Installments",
		Description: "100,000 at 12% over 4 monthly installments, every day a working day",
	},
	{
		ID:          "equal-principal",
		Name:        "Equal Principal",
		Description: "Declining balance with the same principal each month",
	},
	{
		ID:          "flat",
		Name:        "Flat Interest",
		Description: "Interest charged on the original principal for every period",
	},
	{
		ID:          "tranches",
		Name:        "Multi-Tranche",
		Description: "Second tranche released after the first installment",
	},
	{
		ID:          "weekly-holidays",
		Name:        "Weekly With Holidays",
		Description: "Weekly loan, Monday to Friday, with a holiday moving a due date",
	},
	{
		ID:          "reschedule",
		Name:        "Pending Reschedule",
		Description: "Monthly loan with a submitted request adding two installments",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	load, ok := h.loaders()[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("no scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		h.Logger.Error().Err(err).Str("scenario", req.ScenarioID).Msg("scenario load failed")
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.Logger.Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) loaders() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"regression":      h.loadRegressionScenario,
		"equal-principal": h.loadEqualPrincipalScenario,
		"flat":            h.loadFlatScenario,
		"tranches":        h.loadTranchesScenario,
		"weekly-holidays": h.loadWeeklyHolidaysScenario,
		"reschedule":      h.loadRescheduleScenario,
	}
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

var everyDay = generic.WorkingDaySet{
	Days: []time.Weekday{
		time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
		time.Thursday, time.Friday, time.Saturday,
	},
	Rule: generic.NonWorkingNextWorkingDay,
}

func monthlyTerms(principal, rate string, n int, amortization, method string) factory.TermsJSON {
	return factory.TermsJSON{
		Principal:                amount(principal),
		NominalAnnualRate:        amount(rate),
		NumberOfInstallments:     n,
		RepaymentFrequency:       "monthly",
		InterestMethod:           method,
		AmortizationType:         amortization,
		ExpectedDisbursementDate: generic.MustParseDate("2011-09-20"),
		FirstRepaymentDate:       generic.MustParseDate("2011-10-20"),
	}
}

func (h *Handler) loadRegressionScenario(ctx context.Context) error {
	if err := h.Store.SetWorkingDays(ctx, everyDay); err != nil {
		return err
	}
	return h.createLoan(ctx, factory.LoanJSON{
		ID:         "loan-regression",
		ClientName: "Grace Wanjiru",
		Terms:      monthlyTerms("100000", "12", 4, "equal_installments", "declining_balance"),
	})
}

func (h *Handler) loadEqualPrincipalScenario(ctx context.Context) error {
	if err := h.Store.SetWorkingDays(ctx, everyDay); err != nil {
		return err
	}
	return h.createLoan(ctx, factory.LoanJSON{
		ID:         "loan-equal-principal",
		ClientName: "Samuel Otieno",
		Terms:      monthlyTerms("12000", "10", 6, "equal_principal", "declining_balance"),
	})
}

func (h *Handler) loadFlatScenario(ctx context.Context) error {
	if err := h.Store.SetWorkingDays(ctx, everyDay); err != nil {
		return err
	}
	return h.createLoan(ctx, factory.LoanJSON{
		ID:         "loan-flat",
		ClientName: "Amina Hassan",
		Terms:      monthlyTerms("10000", "18", 12, "equal_installments", "flat"),
	})
}

func (h *Handler) loadTranchesScenario(ctx context.Context) error {
	if err := h.Store.SetWorkingDays(ctx, everyDay); err != nil {
		return err
	}
	return h.createLoan(ctx, factory.LoanJSON{
		ID:         "loan-tranches",
		ClientName: "Peter Mwangi",
		Terms:      monthlyTerms("50000", "12", 6, "equal_installments", "declining_balance"),
		Disbursements: []factory.DisbursementJSON{
			{Date: generic.MustParseDate("2011-09-20"), Amount: amount("30000")},
			{Date: generic.MustParseDate("2011-11-05"), Amount: amount("20000")},
		},
	})
}

func (h *Handler) loadWeeklyHolidaysScenario(ctx context.Context) error {
	if err := h.Store.SetWorkingDays(ctx, generic.StandardWorkingDays()); err != nil {
		return err
	}
	retreat := generic.Holiday{
		ID:          "holiday-retreat",
		Name:        "Staff Retreat",
		FromDate:    generic.MustParseDate("2024-01-22"),
		ToDate:      generic.MustParseDate("2024-01-23"),
		ShiftPolicy: generic.HolidayShiftNextWorkingDay,
	}
	if err := h.Store.SaveHoliday(ctx, retreat); err != nil {
		return err
	}
	return h.createLoan(ctx, factory.LoanJSON{
		ID:         "loan-weekly",
		ClientName: "Joseph Kamau",
		Terms: factory.TermsJSON{
			Principal:                amount("8000"),
			NominalAnnualRate:        amount("20"),
			NumberOfInstallments:     8,
			RepaymentFrequency:       "weekly",
			InterestMethod:           "declining_balance",
			AmortizationType:         "equal_installments",
			ExpectedDisbursementDate: generic.MustParseDate("2024-01-01"),
			FirstRepaymentDate:       generic.MustParseDate("2024-01-08"),
		},
	})
}

func (h *Handler) loadRescheduleScenario(ctx context.Context) error {
	if err := h.loadRegressionScenario(ctx); err != nil {
		return err
	}
	_, err := h.Service.SubmitRescheduleRequest(ctx, "loan-regression", generic.RescheduleRequest{
		RescheduleFromInstallment: 3,
		ExtraTerms:                2,
		ReasonCode:                "harvest_delay",
		ReasonComment:             "Crop sale moved to January",
		SubmittedOn:               generic.MustParseDate("2011-11-01"),
	})
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) createLoan(ctx context.Context, lj factory.LoanJSON) error {
	l, err := factory.LoanFromJSON(lj)
	if err != nil {
		return fmt.Errorf("loan %s: %w", lj.ID, err)
	}
	if _, err := h.Service.CreateLoan(ctx, l); err != nil {
		return fmt.Errorf("loan %s: %w", lj.ID, err)
	}
	return nil
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
