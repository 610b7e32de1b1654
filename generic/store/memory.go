// Package store provides in-memory implementations of the engine's
// collaborator interfaces.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/loan-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements LoanStore, RequestStore, ScheduleHistoryStore,
// ScheduleCommitter, HolidayCalendar, WorkingDaySource and ChargeWaiver.
type Memory struct {
	mu          sync.RWMutex
	loans       map[generic.LoanID]generic.Loan
	schedules   map[generic.LoanID]generic.Schedule
	requests    map[generic.RequestID]generic.RescheduleRequest
	history     map[generic.LoanID][]generic.HistoryEntry
	holidays    []generic.Holiday
	workingDays *generic.WorkingDaySet
	waivers     []generic.WaiverNotice
}

func NewMemory() *Memory {
	return &Memory{
		loans:     make(map[generic.LoanID]generic.Loan),
		schedules: make(map[generic.LoanID]generic.Schedule),
		requests:  make(map[generic.RequestID]generic.RescheduleRequest),
		history:   make(map[generic.LoanID][]generic.HistoryEntry),
	}
}

// Loans

func (m *Memory) SaveLoan(_ context.Context, loan generic.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loans[loan.ID] = loan
	return nil
}

func (m *Memory) GetLoan(_ context.Context, id generic.LoanID) (*generic.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loan, ok := m.loans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrLoanNotFound, id)
	}
	return &loan, nil
}

func (m *Memory) ListLoans(_ context.Context) ([]generic.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]generic.Loan, 0, len(m.loans))
	for _, l := range m.loans {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveSchedule(_ context.Context, id generic.LoanID, schedule generic.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[id] = schedule.Clone()
	return nil
}

func (m *Memory) GetSchedule(_ context.Context, id generic.LoanID) (*generic.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, nil
	}
	clone := s.Clone()
	return &clone, nil
}

// Requests

func (m *Memory) SaveRequest(_ context.Context, req generic.RescheduleRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = req
	return nil
}

func (m *Memory) GetRequest(_ context.Context, id generic.RequestID) (*generic.RescheduleRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrRequestNotFound, id)
	}
	return &req, nil
}

func (m *Memory) ListRequests(_ context.Context, loanID generic.LoanID) ([]generic.RescheduleRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []generic.RescheduleRequest
	for _, r := range m.requests {
		if r.LoanID == loanID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedOn.Equal(out[j].SubmittedOn) {
			return out[i].SubmittedOn.Before(out[j].SubmittedOn)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// History. Append-only.

func (m *Memory) Archive(_ context.Context, entry generic.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archive(entry)
	return nil
}

func (m *Memory) archive(entry generic.HistoryEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	periods := make([]generic.SchedulePeriod, len(entry.Periods))
	copy(periods, entry.Periods)
	entry.Periods = periods
	m.history[entry.LoanID] = append(m.history[entry.LoanID], entry)
}

func (m *Memory) History(_ context.Context, loanID generic.LoanID) ([]generic.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]generic.HistoryEntry, len(m.history[loanID]))
	copy(out, m.history[loanID])
	return out, nil
}

// CommitSchedule applies the change under one lock.
func (m *Memory) CommitSchedule(_ context.Context, change generic.ScheduleChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if change.Archive != nil {
		m.archive(*change.Archive)
	}
	m.schedules[change.LoanID] = change.Schedule.Clone()
	if change.Request != nil {
		m.requests[change.Request.ID] = *change.Request
	}
	return nil
}

// Calendars

func (m *Memory) AddHoliday(h generic.Holiday) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays = append(m.holidays, h)
}

func (m *Memory) HolidaysAfter(_ context.Context, officeID string, date generic.TimePoint) ([]generic.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []generic.Holiday
	for _, h := range m.holidays {
		if h.OfficeID != "" && h.OfficeID != officeID {
			continue
		}
		if h.ToDate.Before(date) {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FromDate.Before(out[j].FromDate) })
	return out, nil
}

func (m *Memory) SetWorkingDays(w generic.WorkingDaySet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workingDays = &w
}

// CurrentWorkingDays returns every-day-open when nothing was configured.
func (m *Memory) CurrentWorkingDays(_ context.Context) (generic.WorkingDaySet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.workingDays == nil {
		return generic.WorkingDaySet{Rule: generic.NonWorkingSameDay}, nil
	}
	return *m.workingDays, nil
}

// Waivers

func (m *Memory) WaiveCharges(_ context.Context, notice generic.WaiverNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waivers = append(m.waivers, notice)
	return nil
}

// Waivers returns every notice received, in arrival order.
func (m *Memory) Waivers() []generic.WaiverNotice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]generic.WaiverNotice, len(m.waivers))
	copy(out, m.waivers)
	return out
}

var (
	_ generic.LoanStore            = (*Memory)(nil)
	_ generic.RequestStore         = (*Memory)(nil)
	_ generic.ScheduleHistoryStore = (*Memory)(nil)
	_ generic.ScheduleCommitter    = (*Memory)(nil)
	_ generic.HolidayCalendar      = (*Memory)(nil)
	_ generic.WorkingDaySource     = (*Memory)(nil)
	_ generic.ChargeWaiver         = (*Memory)(nil)
)
