package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_EveryScenarioLoads(t *testing.T) {
	for _, sc := range scenarios {
		t.Run(sc.ID, func(t *testing.T) {
			// GIVEN: A fresh server
			ts := newTestServer(t)

			// WHEN: Loading the scenario
			rec := ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenarioId": "`+sc.ID+`"}`)

			// THEN: It loads, becomes current, and every loan has a schedule
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			rec = ts.do(t, http.MethodGet, "/api/scenarios/current", "")
			assert.Equal(t, sc, decode[ScenarioDTO](t, rec))

			loans := decode[[]LoanDTO](t, ts.do(t, http.MethodGet, "/api/loans", ""))
			require.NotEmpty(t, loans)
			for _, l := range loans {
				s := ts.schedule(t, l.ID)
				assert.Equal(t, l.Terms.NumberOfInstallments, len(installments(s)))
				assert.Equal(t, s.Summary.TotalDisbursed, s.Summary.TotalPrincipal)
			}
		})
	}
}

func TestScenarios_RegressionNumbers(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenarioId": "regression"}`).Code)

	rows := installments(ts.schedule(t, "loan-regression"))

	require.Len(t, rows, 4)
	assert.Equal(t, "2011-11-20", rows[1].DueDate.String(), "every day is a working day")
	for _, r := range rows {
		assert.Equal(t, "25628.11", r.TotalOutstandingForPeriod)
	}
}

func TestScenarios_WeeklyHolidayShiftsDueDate(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenarioId": "weekly-holidays"}`).Code)

	rows := installments(ts.schedule(t, "loan-weekly"))

	require.Len(t, rows, 8)
	assert.Equal(t, "2024-01-15", rows[1].DueDate.String())
	assert.Equal(t, "2024-01-24", rows[2].DueDate.String(), "retreat covers the 22nd and 23rd")
	assert.Equal(t, "2024-01-29", rows[3].DueDate.String())
}

func TestScenarios_ReschedulePending(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenarioId": "reschedule"}`).Code)

	rec := ts.do(t, http.MethodGet, "/api/loans/loan-regression/reschedule-requests", "")

	requests := decode[[]RescheduleRequestDTO](t, rec)
	require.Len(t, requests, 1)
	assert.Equal(t, "submitted", requests[0].Status)
	assert.Equal(t, 2, requests[0].ExtraTerms)
}

func TestScenarios_ReloadResets(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/loans", regressionLoan)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenarioId": "flat"}`).Code)

	loans := decode[[]LoanDTO](t, ts.do(t, http.MethodGet, "/api/loans", ""))
	require.Len(t, loans, 1)
	assert.Equal(t, "loan-flat", loans[0].ID)
}

func TestScenarios_UnknownAndMalformed(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenarioId": "nope"}`).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/scenarios/load", `{`).Code)

	rec := ts.do(t, http.MethodGet, "/api/scenarios/current", "")
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}

func TestScenarios_ListAndReset(t *testing.T) {
	ts := newTestServer(t)

	listed := decode[[]ScenarioDTO](t, ts.do(t, http.MethodGet, "/api/scenarios", ""))
	assert.Len(t, listed, len(scenarios))

	ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenarioId": "tranches"}`)
	rec := ts.do(t, http.MethodPost, "/api/scenarios/reset", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]LoanDTO](t, ts.do(t, http.MethodGet, "/api/loans", "")))
	assert.Empty(t, ts.handler.currentScenario)
}
