package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time { return time.Date(2011, 10, 1, 9, 0, 0, 0, time.UTC) }

func TestRecalculationScheduler_RunOnce(t *testing.T) {
	// GIVEN: Two loans and a holiday on one of the first loan's due dates
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/loans", regressionLoan).Code)
	other := `{"id": "loan-2", "terms": {"principal": "1200", "nominalAnnualRate": "0", "numberOfInstallments": 3,
		"repaymentFrequency": "monthly", "interestMethod": "declining_balance", "amortizationType": "equal_principal",
		"expectedDisbursementDate": "2011-09-05", "firstRepaymentDate": "2011-10-05"}}`
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/loans", other).Code)
	ts.handler.Service.Now = fixedNow
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/holidays",
		`{"name": "Closure", "fromDate": "2011-12-20", "toDate": "2011-12-20"}`).Code)

	rs := NewRecalculationScheduler(ts.handler.Service, ts.metrics, zerolog.Nop())
	rs.Workers = 2

	// WHEN: Running a pass
	res, err := rs.RunOnce(context.Background())

	// THEN: Both loans were checked and only the first moved
	require.NoError(t, err)
	assert.Equal(t, RecalculationResult{Checked: 2, Changed: 1}, res)
	assert.Equal(t, "2011-12-21", installments(ts.schedule(t, "loan-1"))[2].DueDate.String())

	// WHEN: Running again
	res, err = rs.RunOnce(context.Background())

	// THEN: Nothing is left to move
	require.NoError(t, err)
	assert.Equal(t, RecalculationResult{Checked: 2}, res)
}

func TestRecalculationScheduler_StartStop(t *testing.T) {
	ts := newTestServer(t)
	rs := NewRecalculationScheduler(ts.handler.Service, nil, zerolog.Nop())
	rs.Interval = time.Hour

	rs.Start()
	rs.Start()
	rs.Stop()
	rs.Stop()
}

func TestRecalculationScheduler_DisabledInterval(t *testing.T) {
	ts := newTestServer(t)
	rs := NewRecalculationScheduler(ts.handler.Service, nil, zerolog.Nop())
	rs.Interval = 0

	rs.Start()

	assert.Nil(t, rs.ticker)
	rs.Stop()
}
