/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements billing.Store and garden.RefundStore using SQLite. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  price_history:  Time-boxed activity rule sets (rules as JSON)
  staff_rules:    Time-boxed staff billing rules
  manual_rates:   Time-boxed manual staff rates
  attendance:     One row per (enrollment, date)
  journal:        Derived staff journal rows
  deductions:     Ordered per-staff deduction chains
  payouts:        Staff payouts
  food_refunds:   One food-tariff refund per (student, date)

HISTORY PROTOCOL:
  InsertPriceHistory and InsertStaffRule run close-out + insert inside a
  single SQL transaction: the prior open record for the owner key gets
  its effective_to set to the new record's effective_from, then the new
  open record is inserted. History rows are never updated otherwise.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers don't block
  the single writer and crash recovery improves.

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/kita/billing-engine/billing"
	"github.com/kita/billing-engine/factory"
)

// Store implements billing.Store and garden.RefundStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
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

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS price_history (
		activity_id TEXT NOT NULL,
		rules_json TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_price_history_activity
		ON price_history(activity_id, effective_from);
	-- At most one open record per activity
	CREATE UNIQUE INDEX IF NOT EXISTS idx_price_history_open
		ON price_history(activity_id) WHERE effective_to IS NULL;

	CREATE TABLE IF NOT EXISTS staff_rules (
		staff_id TEXT NOT NULL,
		activity_id TEXT,                -- NULL = global scope
		rate_type TEXT NOT NULL,
		rate TEXT NOT NULL,
		lesson_limit INTEGER NOT NULL DEFAULT 0,
		penalty_trigger_percent TEXT NOT NULL DEFAULT '0',
		penalty_percent TEXT NOT NULL DEFAULT '0',
		extra_lesson_rate TEXT NOT NULL DEFAULT '0',
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_staff_rules_staff
		ON staff_rules(staff_id, effective_from);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_staff_rules_open
		ON staff_rules(staff_id, IFNULL(activity_id, '')) WHERE effective_to IS NULL;

	CREATE TABLE IF NOT EXISTS manual_rates (
		staff_id TEXT NOT NULL,
		activity_id TEXT,
		kind TEXT NOT NULL,
		value TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_manual_rates_staff
		ON manual_rates(staff_id, effective_from);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_manual_rates_open
		ON manual_rates(staff_id, IFNULL(activity_id, '')) WHERE effective_to IS NULL;

	CREATE TABLE IF NOT EXISTS attendance (
		enrollment_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		activity_id TEXT NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		value TEXT,
		charged_amount TEXT,
		manual_value_edit BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (enrollment_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_activity_date
		ON attendance(activity_id, date);

	CREATE TABLE IF NOT EXISTS journal (
		staff_id TEXT NOT NULL,
		activity_id TEXT NOT NULL DEFAULT '',
		group_lesson_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		base_amount TEXT NOT NULL,
		deductions_json TEXT NOT NULL DEFAULT '[]',
		is_manual_override BOOLEAN NOT NULL DEFAULT FALSE,
		notes TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (staff_id, activity_id, group_lesson_id, date, is_manual_override)
	);

	CREATE INDEX IF NOT EXISTS idx_journal_date ON journal(date);
	CREATE INDEX IF NOT EXISTS idx_journal_staff ON journal(staff_id, date);

	CREATE TABLE IF NOT EXISTS deductions (
		staff_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		kind TEXT NOT NULL,
		value TEXT NOT NULL,
		label TEXT NOT NULL,
		PRIMARY KEY (staff_id, position)
	);

	CREATE TABLE IF NOT EXISTS payouts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		staff_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		payout_date TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_payouts_staff ON payouts(staff_id, payout_date);

	CREATE TABLE IF NOT EXISTS food_refunds (
		student_id TEXT NOT NULL,
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		PRIMARY KEY (student_id, date)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RULE STORE
// =============================================================================

func (s *Store) PriceHistory(ctx context.Context, activityID billing.ActivityID) ([]billing.ActivityPriceHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT activity_id, rules_json, effective_from, effective_to, created_at
		FROM price_history
		WHERE activity_id = ?
		ORDER BY effective_from ASC
	`, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var records []billing.ActivityPriceHistory
	for rows.Next() {
		var (
			rec       billing.ActivityPriceHistory
			rulesJSON string
			from      string
			to        sql.NullString
			created   string
		)
		if err := rows.Scan(&rec.ActivityID, &rulesJSON, &from, &to, &created); err != nil {
			return nil, err
		}
		var raw factory.BillingRulesJSON
		if err := json.Unmarshal([]byte(rulesJSON), &raw); err != nil {
			return nil, fmt.Errorf("corrupt rules_json for %s: %w", rec.ActivityID, err)
		}
		if rec.Rules, err = factory.BillingRulesFromJSON(raw); err != nil {
			return nil, err
		}
		if rec.Effective, err = scanInterval(from, to); err != nil {
			return nil, err
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) InsertPriceHistory(ctx context.Context, rec billing.ActivityPriceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rulesJSON, err := json.Marshal(factory.RulesToJSON(rec.Rules))
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Close-out must precede the insert: the open-record unique index
	// would otherwise reject the new row.
	var openFrom sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT effective_from FROM price_history WHERE activity_id = ? AND effective_to IS NULL`,
		rec.ActivityID,
	).Scan(&openFrom)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if openFrom.Valid {
		prevFrom, err := billing.ParseDate(openFrom.String)
		if err != nil {
			return err
		}
		if !rec.Effective.From.After(prevFrom) {
			return &billing.OverlapError{Owner: string(rec.ActivityID), Interval: rec.Effective}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE price_history SET effective_to = ? WHERE activity_id = ? AND effective_to IS NULL`,
			rec.Effective.From.String(), rec.ActivityID,
		)
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO price_history (activity_id, rules_json, effective_from, effective_to, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		rec.ActivityID,
		string(rulesJSON),
		rec.Effective.From.String(),
		nullDate(rec.Effective.To),
		createdAt(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert price history: %w", err)
	}
	return tx.Commit()
}

func (s *Store) StaffRules(ctx context.Context, staffID billing.StaffID) ([]billing.StaffBillingRule, error) {
	return s.queryStaffRules(ctx, `WHERE staff_id = ?`, staffID)
}

func (s *Store) AllStaffRules(ctx context.Context) ([]billing.StaffBillingRule, error) {
	return s.queryStaffRules(ctx, ``)
}

func (s *Store) queryStaffRules(ctx context.Context, where string, args ...any) ([]billing.StaffBillingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT staff_id, activity_id, rate_type, rate, lesson_limit,
		       penalty_trigger_percent, penalty_percent, extra_lesson_rate,
		       effective_from, effective_to, created_at
		FROM staff_rules `+where+`
		ORDER BY effective_from ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query staff rules: %w", err)
	}
	defer rows.Close()

	var rules []billing.StaffBillingRule
	for rows.Next() {
		var (
			rule       billing.StaffBillingRule
			activityID sql.NullString
			rate       string
			trigger    string
			penalty    string
			extra      string
			from       string
			to         sql.NullString
			created    string
		)
		if err := rows.Scan(&rule.StaffID, &activityID, &rule.RateType, &rate, &rule.LessonLimit,
			&trigger, &penalty, &extra, &from, &to, &created); err != nil {
			return nil, err
		}
		rule.Scope = scanScope(activityID)
		rule.Rate = billing.MustParseMoney(rate)
		if rule.PenaltyTriggerPercent, err = decimal.NewFromString(trigger); err != nil {
			return nil, err
		}
		if rule.PenaltyPercent, err = decimal.NewFromString(penalty); err != nil {
			return nil, err
		}
		rule.ExtraLessonRate = billing.MustParseMoney(extra)
		if rule.Effective, err = scanInterval(from, to); err != nil {
			return nil, err
		}
		if rule.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (s *Store) InsertStaffRule(ctx context.Context, rule billing.StaffBillingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	scopeID := scopeArg(rule.Scope)

	var openFrom sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT effective_from FROM staff_rules
		WHERE staff_id = ? AND IFNULL(activity_id, '') = IFNULL(?, '') AND effective_to IS NULL
	`, rule.StaffID, scopeID).Scan(&openFrom)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if openFrom.Valid {
		prevFrom, err := billing.ParseDate(openFrom.String)
		if err != nil {
			return err
		}
		if !rule.Effective.From.After(prevFrom) {
			return &billing.OverlapError{Owner: string(rule.StaffID), Interval: rule.Effective}
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE staff_rules SET effective_to = ?
			WHERE staff_id = ? AND IFNULL(activity_id, '') = IFNULL(?, '') AND effective_to IS NULL
		`, rule.Effective.From.String(), rule.StaffID, scopeID)
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO staff_rules
		(staff_id, activity_id, rate_type, rate, lesson_limit,
		 penalty_trigger_percent, penalty_percent, extra_lesson_rate,
		 effective_from, effective_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rule.StaffID,
		scopeID,
		rule.RateType,
		rule.Rate.Value.String(),
		rule.LessonLimit,
		rule.PenaltyTriggerPercent.String(),
		rule.PenaltyPercent.String(),
		rule.ExtraLessonRate.Value.String(),
		rule.Effective.From.String(),
		nullDate(rule.Effective.To),
		createdAt(rule.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert staff rule: %w", err)
	}
	return tx.Commit()
}

func (s *Store) ManualRates(ctx context.Context, staffID billing.StaffID) ([]billing.StaffManualRate, error) {
	return s.queryManualRates(ctx, `WHERE staff_id = ?`, staffID)
}

func (s *Store) AllManualRates(ctx context.Context) ([]billing.StaffManualRate, error) {
	return s.queryManualRates(ctx, ``)
}

func (s *Store) queryManualRates(ctx context.Context, where string, args ...any) ([]billing.StaffManualRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT staff_id, activity_id, kind, value, effective_from, effective_to, created_at
		FROM manual_rates
		`+where+`
		ORDER BY effective_from ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query manual rates: %w", err)
	}
	defer rows.Close()

	var rates []billing.StaffManualRate
	for rows.Next() {
		var (
			rate       billing.StaffManualRate
			activityID sql.NullString
			value      string
			from       string
			to         sql.NullString
			created    string
		)
		if err := rows.Scan(&rate.StaffID, &activityID, &rate.Kind, &value, &from, &to, &created); err != nil {
			return nil, err
		}
		rate.Scope = scanScope(activityID)
		rate.Value = billing.MustParseMoney(value)
		if rate.Effective, err = scanInterval(from, to); err != nil {
			return nil, err
		}
		if rate.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

func (s *Store) InsertManualRate(ctx context.Context, rate billing.StaffManualRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	scopeID := scopeArg(rate.Scope)

	var openFrom sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT effective_from FROM manual_rates
		WHERE staff_id = ? AND IFNULL(activity_id, '') = IFNULL(?, '') AND effective_to IS NULL
	`, rate.StaffID, scopeID).Scan(&openFrom)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if openFrom.Valid {
		prevFrom, err := billing.ParseDate(openFrom.String)
		if err != nil {
			return err
		}
		if !rate.Effective.From.After(prevFrom) {
			return &billing.OverlapError{Owner: string(rate.StaffID), Interval: rate.Effective}
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE manual_rates SET effective_to = ?
			WHERE staff_id = ? AND IFNULL(activity_id, '') = IFNULL(?, '') AND effective_to IS NULL
		`, rate.Effective.From.String(), rate.StaffID, scopeID)
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO manual_rates
		(staff_id, activity_id, kind, value, effective_from, effective_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		rate.StaffID,
		scopeID,
		rate.Kind,
		rate.Value.Value.String(),
		rate.Effective.From.String(),
		nullDate(rate.Effective.To),
		createdAt(rate.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert manual rate: %w", err)
	}
	return tx.Commit()
}

// =============================================================================
// ATTENDANCE STORE
// =============================================================================

func (s *Store) AttendanceInRange(ctx context.Context, activityID billing.ActivityID, period billing.Period) ([]billing.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT enrollment_id, student_id, activity_id, date, status, value, charged_amount, manual_value_edit
		FROM attendance
		WHERE date >= ? AND date <= ?
	`
	args := []any{period.Start.String(), period.End.String()}
	if activityID != "" {
		query += ` AND activity_id = ?`
		args = append(args, activityID)
	}
	query += ` ORDER BY date ASC, enrollment_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var records []billing.AttendanceRecord
	for rows.Next() {
		var (
			rec     billing.AttendanceRecord
			date    string
			value   sql.NullString
			charged sql.NullString
		)
		if err := rows.Scan(&rec.EnrollmentID, &rec.StudentID, &rec.ActivityID, &date,
			&rec.Status, &value, &charged, &rec.ManualValueEdit); err != nil {
			return nil, err
		}
		if rec.Date, err = billing.ParseDate(date); err != nil {
			return nil, err
		}
		if value.Valid {
			d, err := decimal.NewFromString(value.String)
			if err != nil {
				return nil, err
			}
			rec.Value = &d
		}
		if charged.Valid {
			m := billing.MustParseMoney(charged.String)
			rec.ChargedAmount = &m
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) UpsertAttendance(ctx context.Context, rec billing.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value, charged any
	if rec.Value != nil {
		value = rec.Value.String()
	}
	if rec.ChargedAmount != nil {
		charged = rec.ChargedAmount.Value.String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance
		(enrollment_id, student_id, activity_id, date, status, value, charged_amount, manual_value_edit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (enrollment_id, date) DO UPDATE SET
			status = excluded.status,
			value = excluded.value,
			charged_amount = excluded.charged_amount,
			manual_value_edit = excluded.manual_value_edit
	`,
		rec.EnrollmentID, rec.StudentID, rec.ActivityID, rec.Date.String(),
		rec.Status, value, charged, rec.ManualValueEdit,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert attendance: %w", err)
	}
	return nil
}

func (s *Store) DeleteAttendance(ctx context.Context, enrollmentID billing.EnrollmentID, at billing.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM attendance WHERE enrollment_id = ? AND date = ?`,
		enrollmentID, at.String(),
	)
	return err
}

// =============================================================================
// JOURNAL STORE
// =============================================================================

func (s *Store) JournalInRange(ctx context.Context, period billing.Period) ([]billing.JournalEntry, error) {
	return s.queryJournal(ctx,
		`WHERE date >= ? AND date <= ?`,
		period.Start.String(), period.End.String())
}

func (s *Store) JournalForStaff(ctx context.Context, staffID billing.StaffID) ([]billing.JournalEntry, error) {
	return s.queryJournal(ctx, `WHERE staff_id = ?`, staffID)
}

func (s *Store) queryJournal(ctx context.Context, where string, args ...any) ([]billing.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT staff_id, activity_id, group_lesson_id, date, amount, base_amount,
		       deductions_json, is_manual_override, notes
		FROM journal `+where+`
		ORDER BY date ASC, staff_id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []billing.JournalEntry
	for rows.Next() {
		var (
			entry      billing.JournalEntry
			date       string
			amount     string
			base       string
			deductions string
		)
		if err := rows.Scan(&entry.StaffID, &entry.ActivityID, &entry.GroupLessonID, &date,
			&amount, &base, &deductions, &entry.IsManualOverride, &entry.Notes); err != nil {
			return nil, err
		}
		if entry.Date, err = billing.ParseDate(date); err != nil {
			return nil, err
		}
		entry.Amount = billing.MustParseMoney(amount)
		entry.BaseAmount = billing.MustParseMoney(base)
		if entry.DeductionsApplied, err = unmarshalApplied(deductions); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) UpsertJournal(ctx context.Context, entry billing.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deductions, err := marshalApplied(entry.DeductionsApplied)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO journal
		(staff_id, activity_id, group_lesson_id, date, amount, base_amount,
		 deductions_json, is_manual_override, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (staff_id, activity_id, group_lesson_id, date, is_manual_override) DO UPDATE SET
			amount = excluded.amount,
			base_amount = excluded.base_amount,
			deductions_json = excluded.deductions_json,
			notes = excluded.notes
	`,
		entry.StaffID, entry.ActivityID, entry.GroupLessonID, entry.Date.String(),
		entry.Amount.Value.String(), entry.BaseAmount.Value.String(),
		deductions, entry.IsManualOverride, entry.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert journal row: %w", err)
	}
	return nil
}

func (s *Store) DeleteJournal(ctx context.Context, key billing.JournalKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM journal
		WHERE staff_id = ? AND activity_id = ? AND group_lesson_id = ?
		  AND date = ? AND is_manual_override = ?
	`, key.StaffID, key.ActivityID, key.GroupLessonID, key.Date, key.Manual)
	return err
}

// =============================================================================
// DEDUCTION / PAYOUT STORE
// =============================================================================

func (s *Store) DeductionsFor(ctx context.Context, staffID billing.StaffID) ([]billing.Deduction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, value, label FROM deductions
		WHERE staff_id = ?
		ORDER BY position ASC
	`, staffID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deductions: %w", err)
	}
	defer rows.Close()

	var chain []billing.Deduction
	for rows.Next() {
		var (
			d     billing.Deduction
			value string
		)
		if err := rows.Scan(&d.Kind, &value, &d.Label); err != nil {
			return nil, err
		}
		if d.Value, err = decimal.NewFromString(value); err != nil {
			return nil, err
		}
		chain = append(chain, d)
	}
	return chain, rows.Err()
}

// SetDeductions replaces a staff member's ordered deduction chain.
func (s *Store) SetDeductions(ctx context.Context, staffID billing.StaffID, chain []billing.Deduction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM deductions WHERE staff_id = ?`, staffID); err != nil {
		return err
	}
	for i, d := range chain {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO deductions (staff_id, position, kind, value, label) VALUES (?, ?, ?, ?, ?)`,
			staffID, i, d.Kind, d.Value.String(), d.Label,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) PayoutsFor(ctx context.Context, staffID billing.StaffID) ([]billing.StaffPayout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT staff_id, amount, payout_date, notes FROM payouts
		WHERE staff_id = ?
		ORDER BY payout_date ASC, id ASC
	`, staffID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payouts: %w", err)
	}
	defer rows.Close()

	var payouts []billing.StaffPayout
	for rows.Next() {
		var (
			p      billing.StaffPayout
			amount string
			date   string
		)
		if err := rows.Scan(&p.StaffID, &amount, &date, &p.Notes); err != nil {
			return nil, err
		}
		p.Amount = billing.MustParseMoney(amount)
		if p.PayoutDate, err = billing.ParseDate(date); err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

func (s *Store) InsertPayout(ctx context.Context, payout billing.StaffPayout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payouts (staff_id, amount, payout_date, notes) VALUES (?, ?, ?, ?)`,
		payout.StaffID, payout.Amount.Value.String(), payout.PayoutDate.String(), payout.Notes,
	)
	return err
}

// =============================================================================
// FOOD REFUNDS (garden.RefundStore)
// =============================================================================

func (s *Store) FoodRefund(ctx context.Context, studentID billing.StudentID, at billing.Date) (billing.Money, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var amount string
	err := s.db.QueryRowContext(ctx,
		`SELECT amount FROM food_refunds WHERE student_id = ? AND date = ?`,
		studentID, at.String(),
	).Scan(&amount)
	if err == sql.ErrNoRows {
		return billing.Money{}, false, nil
	}
	if err != nil {
		return billing.Money{}, false, err
	}
	return billing.MustParseMoney(amount), true, nil
}

func (s *Store) UpsertFoodRefund(ctx context.Context, studentID billing.StudentID, at billing.Date, amount billing.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO food_refunds (student_id, date, amount) VALUES (?, ?, ?)
		ON CONFLICT (student_id, date) DO UPDATE SET amount = excluded.amount
	`, studentID, at.String(), amount.Value.String())
	return err
}

func (s *Store) DeleteFoodRefund(ctx context.Context, studentID billing.StudentID, at billing.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM food_refunds WHERE student_id = ? AND date = ?`,
		studentID, at.String(),
	)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func scanInterval(from string, to sql.NullString) (billing.Interval, error) {
	fromDate, err := billing.ParseDate(from)
	if err != nil {
		return billing.Interval{}, err
	}
	if !to.Valid {
		return billing.OpenInterval(fromDate), nil
	}
	toDate, err := billing.ParseDate(to.String)
	if err != nil {
		return billing.Interval{}, err
	}
	return billing.ClosedInterval(fromDate, toDate), nil
}

func scanScope(activityID sql.NullString) billing.Scope {
	if !activityID.Valid || activityID.String == "" {
		return billing.GlobalScope()
	}
	return billing.ActivityScope(billing.ActivityID(activityID.String))
}

func scopeArg(scope billing.Scope) any {
	if id, ok := scope.Activity(); ok {
		return string(id)
	}
	return nil
}

func nullDate(d *billing.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func createdAt(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339)
}

// appliedJSON is the storage form of one deduction breakdown step.
type appliedJSON struct {
	Label  string `json:"label"`
	Kind   string `json:"kind"`
	Value  string `json:"value"`
	Amount string `json:"amount"`
}

func marshalApplied(applied []billing.AppliedDeduction) (string, error) {
	out := make([]appliedJSON, len(applied))
	for i, a := range applied {
		out[i] = appliedJSON{
			Label:  a.Label,
			Kind:   string(a.Kind),
			Value:  a.Value.String(),
			Amount: a.Amount.Value.String(),
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalApplied(data string) ([]billing.AppliedDeduction, error) {
	var raw []appliedJSON
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, err
	}
	var applied []billing.AppliedDeduction
	for _, a := range raw {
		value, err := decimal.NewFromString(a.Value)
		if err != nil {
			return nil, err
		}
		applied = append(applied, billing.AppliedDeduction{
			Label:  a.Label,
			Kind:   billing.DeductionKind(a.Kind),
			Value:  value,
			Amount: billing.MustParseMoney(a.Amount),
		})
	}
	return applied, nil
}
