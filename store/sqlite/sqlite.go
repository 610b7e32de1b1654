/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every collaborator the loan service needs using SQLite. In
  production the same patterns apply to PostgreSQL with minor dialect
  differences.

INTERFACES IMPLEMENTED:
  generic.LoanStore:            Loans and committed schedules
  generic.RequestStore:         Reschedule requests
  generic.ScheduleHistoryStore: Archived periods (append-only)
  generic.ScheduleCommitter:    Archive + schedule + request in one transaction
  generic.HolidayCalendar:      Office holidays
  generic.WorkingDaySource:     Working-day configuration
  generic.ChargeWaiver:         Waiver notice log

APPEND-ONLY ENFORCEMENT:
  schedule_history has no UPDATE or DELETE path. CommitSchedule archives
  the replaced periods in the same transaction that writes the new schedule.

KEY TABLES:
  loans:               Terms (factory JSON), tranches, office
  schedules:           The committed periods of each loan, as JSON
  schedule_history:    Archived periods with the reason they were replaced
  reschedule_requests: Request lifecycle
  holidays:            Closed date ranges per office ('' = all offices)
  working_days:        Single-row working-day configuration
  charge_waivers:      Every waiver notice received

STORAGE FORMATS:
  Dates are YYYY-MM-DD text, amounts are decimal strings, timestamps are
  RFC3339. Periods are stored as the same JSON the API returns.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. ":memory:" databases are pinned to
  one connection so every query sees the same database.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/loans.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/ledger.go: ScheduleHistoryStore
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/factory"
	"github.com/warp/loan-engine/generic"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	inMemory := dbPath == ":memory:"
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL"
	if inMemory {
		dsn = dbPath + "?_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection for the health check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		office_id TEXT NOT NULL DEFAULT '',
		client_name TEXT NOT NULL DEFAULT '',
		terms_json TEXT NOT NULL,
		disbursements_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS schedules (
		loan_id TEXT PRIMARY KEY REFERENCES loans(id),
		periods_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Append-only: no UPDATE or DELETE is ever issued against this table
	CREATE TABLE IF NOT EXISTS schedule_history (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		request_id TEXT,
		reason TEXT NOT NULL,
		periods_json TEXT NOT NULL,
		archived_on TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_loan
		ON schedule_history(loan_id, created_at);

	CREATE TABLE IF NOT EXISTS reschedule_requests (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		status TEXT NOT NULL,
		from_installment INTEGER NOT NULL DEFAULT 0,
		from_date TEXT,
		grace_on_principal INTEGER NOT NULL DEFAULT 0,
		grace_on_interest INTEGER NOT NULL DEFAULT 0,
		extra_terms INTEGER NOT NULL DEFAULT 0,
		new_interest_rate TEXT,
		recalculate_interest BOOLEAN NOT NULL DEFAULT FALSE,
		adjusted_due_date TEXT,
		reason_code TEXT,
		reason_comment TEXT,
		submitted_on TEXT NOT NULL,
		approved_on TEXT,
		rejected_on TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_requests_loan
		ON reschedule_requests(loan_id, submitted_on);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON reschedule_requests(status);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		office_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		from_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		shift_policy TEXT NOT NULL,
		rescheduled_to TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_office_to
		ON holidays(office_id, to_date);

	CREATE TABLE IF NOT EXISTS working_days (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		days_json TEXT NOT NULL,
		rule TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS charge_waivers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		loan_id TEXT NOT NULL,
		due_date TEXT NOT NULL,
		fee_charges TEXT NOT NULL,
		penalty_charges TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOAN STORE (generic.LoanStore interface)
// =============================================================================

// SaveLoan inserts or replaces a loan.
func (s *Store) SaveLoan(ctx context.Context, loan generic.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	termsJSON, err := json.Marshal(factory.ToJSON(loan.Terms))
	if err != nil {
		return fmt.Errorf("failed to encode terms: %w", err)
	}
	disbursementsJSON, err := json.Marshal(loan.Disbursements)
	if err != nil {
		return fmt.Errorf("failed to encode disbursements: %w", err)
	}

	now := time.Now().UTC()
	created, updated := loan.CreatedAt, loan.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = now
	}

	query := `
		INSERT INTO loans (id, office_id, client_name, terms_json, disbursements_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			office_id = excluded.office_id,
			client_name = excluded.client_name,
			terms_json = excluded.terms_json,
			disbursements_json = excluded.disbursements_json,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		loan.ID, loan.OfficeID, loan.ClientName,
		string(termsJSON), string(disbursementsJSON),
		created.Format(time.RFC3339), updated.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by ID.
func (s *Store) GetLoan(ctx context.Context, id generic.LoanID) (*generic.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, office_id, client_name, terms_json, disbursements_json, created_at, updated_at
		FROM loans WHERE id = ?
	`, id)
	loan, err := scanLoan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", generic.ErrLoanNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// ListLoans returns all loans ordered by ID.
func (s *Store) ListLoans(ctx context.Context) ([]generic.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, office_id, client_name, terms_json, disbursements_json, created_at, updated_at
		FROM loans ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()

	var loans []generic.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLoan(row scanner) (generic.Loan, error) {
	var (
		loan              generic.Loan
		termsJSON         string
		disbursementsJSON string
		createdAt         string
		updatedAt         string
	)
	if err := row.Scan(&loan.ID, &loan.OfficeID, &loan.ClientName, &termsJSON, &disbursementsJSON, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return loan, err
		}
		return loan, fmt.Errorf("failed to scan loan: %w", err)
	}

	var tj factory.TermsJSON
	if err := json.Unmarshal([]byte(termsJSON), &tj); err != nil {
		return loan, fmt.Errorf("failed to decode terms of loan %s: %w", loan.ID, err)
	}
	terms, err := factory.Resolve(tj)
	if err != nil {
		return loan, fmt.Errorf("stored terms of loan %s: %w", loan.ID, err)
	}
	loan.Terms = terms
	if err := json.Unmarshal([]byte(disbursementsJSON), &loan.Disbursements); err != nil {
		return loan, fmt.Errorf("failed to decode disbursements of loan %s: %w", loan.ID, err)
	}
	loan.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	loan.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return loan, nil
}

// SaveSchedule replaces the committed schedule of a loan.
func (s *Store) SaveSchedule(ctx context.Context, id generic.LoanID, schedule generic.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveSchedule(ctx, s.db, id, schedule)
}

func saveSchedule(ctx context.Context, db execer, id generic.LoanID, schedule generic.Schedule) error {
	periodsJSON, err := json.Marshal(schedule.Periods)
	if err != nil {
		return fmt.Errorf("failed to encode schedule: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO schedules (loan_id, periods_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(loan_id) DO UPDATE SET
			periods_json = excluded.periods_json,
			updated_at = excluded.updated_at
	`, id, string(periodsJSON), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

// GetSchedule returns nil when nothing has been committed.
func (s *Store) GetSchedule(ctx context.Context, id generic.LoanID) (*generic.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var periodsJSON string
	err := s.db.QueryRowContext(ctx, "SELECT periods_json FROM schedules WHERE loan_id = ?", id).Scan(&periodsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}

	var schedule generic.Schedule
	if err := json.Unmarshal([]byte(periodsJSON), &schedule.Periods); err != nil {
		return nil, fmt.Errorf("failed to decode schedule of loan %s: %w", id, err)
	}
	return &schedule, nil
}

// =============================================================================
// SCHEDULE HISTORY (generic.ScheduleHistoryStore interface)
// =============================================================================

// Archive appends an entry. Duplicate IDs are rejected, never overwritten.
func (s *Store) Archive(ctx context.Context, entry generic.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return archive(ctx, s.db, entry)
}

func archive(ctx context.Context, db execer, entry generic.HistoryEntry) error {
	periodsJSON, err := json.Marshal(entry.Periods)
	if err != nil {
		return fmt.Errorf("failed to encode archived periods: %w", err)
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO schedule_history (id, loan_id, request_id, reason, periods_json, archived_on, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.LoanID, nullString(string(entry.RequestID)), entry.Reason,
		string(periodsJSON), entry.ArchivedOn.String(), created.Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("history entry %s already archived", entry.ID)
		}
		return fmt.Errorf("failed to archive schedule: %w", err)
	}
	return nil
}

// History returns every archived entry of a loan, oldest first.
func (s *Store) History(ctx context.Context, loanID generic.LoanID) ([]generic.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, loan_id, request_id, reason, periods_json, archived_on, created_at
		FROM schedule_history
		WHERE loan_id = ?
		ORDER BY rowid ASC
	`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []generic.HistoryEntry
	for rows.Next() {
		var (
			e           generic.HistoryEntry
			requestID   sql.NullString
			periodsJSON string
			archivedOn  string
			createdAt   string
		)
		if err := rows.Scan(&e.ID, &e.LoanID, &requestID, &e.Reason, &periodsJSON, &archivedOn, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.RequestID = generic.RequestID(requestID.String)
		if err := json.Unmarshal([]byte(periodsJSON), &e.Periods); err != nil {
			return nil, fmt.Errorf("failed to decode history entry %s: %w", e.ID, err)
		}
		e.ArchivedOn = parseDate(archivedOn)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SCHEDULE COMMITS (generic.ScheduleCommitter interface)
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CommitSchedule writes the new schedule, the request transition and the
// archive entry in one transaction.
func (s *Store) CommitSchedule(ctx context.Context, change generic.ScheduleChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveSchedule(ctx, tx, change.LoanID, change.Schedule); err != nil {
		return err
	}
	if change.Request != nil {
		if err := saveRequest(ctx, tx, *change.Request); err != nil {
			return err
		}
	}
	if change.Archive != nil {
		if err := archive(ctx, tx, *change.Archive); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// =============================================================================
// REQUEST STORE (generic.RequestStore interface)
// =============================================================================

// SaveRequest inserts or replaces a reschedule request.
func (s *Store) SaveRequest(ctx context.Context, r generic.RescheduleRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRequest(ctx, s.db, r)
}

func saveRequest(ctx context.Context, db execer, r generic.RescheduleRequest) error {
	var rate sql.NullString
	if r.NewInterestRate != nil {
		rate = sql.NullString{String: r.NewInterestRate.String(), Valid: true}
	}

	query := `
		INSERT INTO reschedule_requests (id, loan_id, status, from_installment, from_date,
			grace_on_principal, grace_on_interest, extra_terms, new_interest_rate,
			recalculate_interest, adjusted_due_date, reason_code, reason_comment,
			submitted_on, approved_on, rejected_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			approved_on = excluded.approved_on,
			rejected_on = excluded.rejected_on
	`
	_, err := db.ExecContext(ctx, query,
		r.ID, r.LoanID, r.Status,
		r.RescheduleFromInstallment, nullDate(r.RescheduleFromDate),
		r.GraceOnPrincipal, r.GraceOnInterest, r.ExtraTerms, rate,
		r.RecalculateInterest, nullDate(r.AdjustedDueDate),
		nullString(r.ReasonCode), nullString(r.ReasonComment),
		r.SubmittedOn.String(), nullDate(r.ApprovedOn), nullDate(r.RejectedOn),
	)
	if err != nil {
		return fmt.Errorf("failed to save request: %w", err)
	}
	return nil
}

const requestColumns = `id, loan_id, status, from_installment, from_date,
	grace_on_principal, grace_on_interest, extra_terms, new_interest_rate,
	recalculate_interest, adjusted_due_date, reason_code, reason_comment,
	submitted_on, approved_on, rejected_on`

// GetRequest retrieves a request by ID.
func (s *Store) GetRequest(ctx context.Context, id generic.RequestID) (*generic.RescheduleRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM reschedule_requests WHERE id = ?", id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", generic.ErrRequestNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRequests returns a loan's requests in submission order.
func (s *Store) ListRequests(ctx context.Context, loanID generic.LoanID) ([]generic.RescheduleRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+requestColumns+" FROM reschedule_requests WHERE loan_id = ? ORDER BY submitted_on ASC, rowid ASC",
		loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var requests []generic.RescheduleRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func scanRequest(row scanner) (generic.RescheduleRequest, error) {
	var (
		r           generic.RescheduleRequest
		fromDate    sql.NullString
		rate        sql.NullString
		adjusted    sql.NullString
		code        sql.NullString
		comment     sql.NullString
		submittedOn string
		approvedOn  sql.NullString
		rejectedOn  sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.LoanID, &r.Status, &r.RescheduleFromInstallment, &fromDate,
		&r.GraceOnPrincipal, &r.GraceOnInterest, &r.ExtraTerms, &rate,
		&r.RecalculateInterest, &adjusted, &code, &comment,
		&submittedOn, &approvedOn, &rejectedOn,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("failed to scan request: %w", err)
	}

	r.RescheduleFromDate = parseDate(fromDate.String)
	if rate.Valid {
		d, err := decimal.NewFromString(rate.String)
		if err != nil {
			return r, fmt.Errorf("stored rate of request %s: %w", r.ID, err)
		}
		r.NewInterestRate = &d
	}
	r.AdjustedDueDate = parseDate(adjusted.String)
	r.ReasonCode = code.String
	r.ReasonComment = comment.String
	r.SubmittedOn = parseDate(submittedOn)
	r.ApprovedOn = parseDate(approvedOn.String)
	r.RejectedOn = parseDate(rejectedOn.String)
	return r, nil
}

// =============================================================================
// HOLIDAY CALENDAR (generic.HolidayCalendar interface)
// =============================================================================

// SaveHoliday inserts or replaces a holiday.
func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO holidays (id, office_id, name, from_date, to_date, shift_policy, rescheduled_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			office_id = excluded.office_id,
			name = excluded.name,
			from_date = excluded.from_date,
			to_date = excluded.to_date,
			shift_policy = excluded.shift_policy,
			rescheduled_to = excluded.rescheduled_to
	`
	_, err := s.db.ExecContext(ctx, query,
		h.ID, h.OfficeID, h.Name,
		h.FromDate.String(), h.ToDate.String(),
		h.ShiftPolicy, nullDate(h.RescheduledTo),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}
	return nil
}

// DeleteHoliday deletes a holiday by ID.
func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
	return err
}

// HolidaysAfter returns holidays of an office (and global ones) ending on
// or after date, ordered by start.
func (s *Store) HolidaysAfter(ctx context.Context, officeID string, date generic.TimePoint) ([]generic.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryHolidays(ctx, `
		SELECT id, office_id, name, from_date, to_date, shift_policy, rescheduled_to
		FROM holidays
		WHERE (office_id = ? OR office_id = '') AND to_date >= ?
		ORDER BY from_date ASC
	`, officeID, date.String())
}

// ListHolidays returns every holiday (for admin UI).
func (s *Store) ListHolidays(ctx context.Context) ([]generic.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryHolidays(ctx, `
		SELECT id, office_id, name, from_date, to_date, shift_policy, rescheduled_to
		FROM holidays ORDER BY from_date ASC
	`)
}

func (s *Store) queryHolidays(ctx context.Context, query string, args ...any) ([]generic.Holiday, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var holidays []generic.Holiday
	for rows.Next() {
		var (
			h             generic.Holiday
			from, to      string
			rescheduledTo sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.OfficeID, &h.Name, &from, &to, &h.ShiftPolicy, &rescheduledTo); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		h.FromDate, h.ToDate = parseDate(from), parseDate(to)
		h.RescheduledTo = parseDate(rescheduledTo.String)
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// =============================================================================
// WORKING DAYS (generic.WorkingDaySource interface)
// =============================================================================

// SetWorkingDays replaces the working-day configuration.
func (s *Store) SetWorkingDays(ctx context.Context, w generic.WorkingDaySet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	daysJSON, err := json.Marshal(w.Days)
	if err != nil {
		return fmt.Errorf("failed to encode working days: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO working_days (id, days_json, rule, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			days_json = excluded.days_json,
			rule = excluded.rule,
			updated_at = excluded.updated_at
	`, string(daysJSON), w.Rule, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save working days: %w", err)
	}
	return nil
}

// CurrentWorkingDays returns Monday to Friday until configured.
func (s *Store) CurrentWorkingDays(ctx context.Context) (generic.WorkingDaySet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var daysJSON, rule string
	err := s.db.QueryRowContext(ctx, "SELECT days_json, rule FROM working_days WHERE id = 1").Scan(&daysJSON, &rule)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.StandardWorkingDays(), nil
	}
	if err != nil {
		return generic.WorkingDaySet{}, fmt.Errorf("failed to load working days: %w", err)
	}

	w := generic.WorkingDaySet{Rule: generic.NonWorkingDayRule(rule)}
	if err := json.Unmarshal([]byte(daysJSON), &w.Days); err != nil {
		return generic.WorkingDaySet{}, fmt.Errorf("failed to decode working days: %w", err)
	}
	return w, nil
}

// =============================================================================
// CHARGE WAIVERS (generic.ChargeWaiver interface)
// =============================================================================

// WaiveCharges records the notice. Downstream charge systems read the log.
func (s *Store) WaiveCharges(ctx context.Context, n generic.WaiverNotice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO charge_waivers (loan_id, due_date, fee_charges, penalty_charges, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, n.LoanID, n.DueDate.String(), n.FeeCharges.String(), n.PenaltyCharges.String(),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record waiver: %w", err)
	}
	return nil
}

// Waivers returns every notice recorded for a loan.
func (s *Store) Waivers(ctx context.Context, loanID generic.LoanID) ([]generic.WaiverNotice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT loan_id, due_date, fee_charges, penalty_charges
		FROM charge_waivers WHERE loan_id = ? ORDER BY id
	`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query waivers: %w", err)
	}
	defer rows.Close()

	var out []generic.WaiverNotice
	for rows.Next() {
		var (
			n            generic.WaiverNotice
			due          string
			fee, penalty string
		)
		if err := rows.Scan(&n.LoanID, &due, &fee, &penalty); err != nil {
			return nil, fmt.Errorf("failed to scan waiver: %w", err)
		}
		n.DueDate = parseDate(due)
		n.FeeCharges = generic.MustParseDecimal(fee)
		n.PenaltyCharges = generic.MustParseDecimal(penalty)
		out = append(out, n)
	}
	return out, rows.Err()
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears all data. Used by the demo scenario loader.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"schedules", "schedule_history", "reschedule_requests", "charge_waivers", "holidays", "working_days", "loans"}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("failed to clear %s: %w", t, err)
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(tp generic.TimePoint) sql.NullString {
	return nullString(tp.String())
}

// parseDate maps "" to the zero TimePoint.
func parseDate(s string) generic.TimePoint {
	if s == "" {
		return generic.TimePoint{}
	}
	tp, err := generic.ParseDate(s)
	if err != nil {
		return generic.TimePoint{}
	}
	return tp
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

var (
	_ generic.LoanStore            = (*Store)(nil)
	_ generic.RequestStore         = (*Store)(nil)
	_ generic.ScheduleHistoryStore = (*Store)(nil)
	_ generic.ScheduleCommitter    = (*Store)(nil)
	_ generic.HolidayCalendar      = (*Store)(nil)
	_ generic.WorkingDaySource     = (*Store)(nil)
	_ generic.ChargeWaiver         = (*Store)(nil)
)
