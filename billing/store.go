/*
store.go - Persistence interfaces consumed by the engine

PURPOSE:
  The engine never talks to a database directly; it reads and writes
  through these interfaces. Implementations live in store/sqlite
  (production) and billing/store (in-memory, for tests).

APPEND/CLOSE-OUT PROTOCOL:
  Rule history is append-only. InsertPriceHistory and InsertStaffRule must
  close the prior open record for the same owner key (set its effective_to
  to the new record's effective_from) and insert the new open record in a
  single transaction, so the close-out happens-before the insert and no
  reader ever sees two open records for one owner.
*/
package billing

import "context"

// =============================================================================
// STORE INTERFACES
// =============================================================================

// RuleStore reads and appends billing-rule history.
type RuleStore interface {
	// PriceHistory returns all price-history records for an activity.
	PriceHistory(ctx context.Context, activityID ActivityID) ([]ActivityPriceHistory, error)

	// InsertPriceHistory appends a new open record, closing the prior open
	// record for the same activity in the same transaction.
	InsertPriceHistory(ctx context.Context, rec ActivityPriceHistory) error

	// StaffRules returns all staff billing rules for a staff member.
	StaffRules(ctx context.Context, staffID StaffID) ([]StaffBillingRule, error)

	// AllStaffRules returns every staff billing rule. Used by the journal
	// synchronizer, which works across staff members.
	AllStaffRules(ctx context.Context) ([]StaffBillingRule, error)

	// InsertStaffRule appends a new open rule, closing the prior open rule
	// for the same (staff, scope) in the same transaction.
	InsertStaffRule(ctx context.Context, rule StaffBillingRule) error

	// ManualRates returns the manual rate history for a staff member.
	ManualRates(ctx context.Context, staffID StaffID) ([]StaffManualRate, error)

	// AllManualRates returns every manual rate. Used by the journal
	// synchronizer, where effective manual rates override staff rules.
	AllManualRates(ctx context.Context) ([]StaffManualRate, error)

	// InsertManualRate appends a new open manual rate, closing the prior
	// open rate for the same (staff, scope) in the same transaction.
	InsertManualRate(ctx context.Context, rate StaffManualRate) error
}

// AttendanceStore reads and writes attendance records.
type AttendanceStore interface {
	// AttendanceInRange returns records for an activity in a period.
	// An empty activity id matches all activities.
	AttendanceInRange(ctx context.Context, activityID ActivityID, period Period) ([]AttendanceRecord, error)

	// UpsertAttendance writes the single record for (enrollment, date).
	UpsertAttendance(ctx context.Context, rec AttendanceRecord) error

	// DeleteAttendance removes the record for (enrollment, date).
	DeleteAttendance(ctx context.Context, enrollmentID EnrollmentID, at Date) error
}

// JournalStore reads and writes derived staff journal rows.
type JournalStore interface {
	JournalInRange(ctx context.Context, period Period) ([]JournalEntry, error)
	JournalForStaff(ctx context.Context, staffID StaffID) ([]JournalEntry, error)
	UpsertJournal(ctx context.Context, entry JournalEntry) error
	DeleteJournal(ctx context.Context, key JournalKey) error
}

// DeductionStore reads the ordered deduction chain of a staff member.
type DeductionStore interface {
	DeductionsFor(ctx context.Context, staffID StaffID) ([]Deduction, error)
}

// PayoutStore reads and writes staff payouts.
type PayoutStore interface {
	PayoutsFor(ctx context.Context, staffID StaffID) ([]StaffPayout, error)
	InsertPayout(ctx context.Context, payout StaffPayout) error
}

// Store is the full persistence surface the engine needs.
type Store interface {
	RuleStore
	AttendanceStore
	JournalStore
	DeductionStore
	PayoutStore
}

// =============================================================================
// STAFF BALANCE - Journal minus payouts
// =============================================================================

// BalanceStore is the subset of Store needed for balance queries.
type BalanceStore interface {
	JournalForStaff(ctx context.Context, staffID StaffID) ([]JournalEntry, error)
	PayoutsFor(ctx context.Context, staffID StaffID) ([]StaffPayout, error)
}

// StaffBalance computes cumulative journal amount minus cumulative payouts.
// Manual journal rows count the same as auto rows.
func StaffBalance(ctx context.Context, s BalanceStore, staffID StaffID) (Money, error) {
	entries, err := s.JournalForStaff(ctx, staffID)
	if err != nil {
		return Money{}, err
	}
	balance := ZeroMoney()
	for _, e := range entries {
		balance = balance.Add(e.Amount)
	}

	payouts, err := s.PayoutsFor(ctx, staffID)
	if err != nil {
		return Money{}, err
	}
	for _, p := range payouts {
		balance = balance.Sub(p.Amount)
	}
	return balance, nil
}
