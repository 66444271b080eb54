/*
journal.go - Staff journal reconciliation

PURPOSE:
  The staff journal is a derived table: one row per (staff, activity,
  group lesson, date) holding what the staff member earned that day. The
  Synchronizer recomputes the rows for a period from attendance + rules
  and reconciles the stored table against the result.

OWNERSHIP:
  Auto rows (is_manual_override = false) are fully owned by the
  synchronizer: upserted when the recomputed amount is positive, deleted
  when it is zero or absent. Manual rows belong to the user and are never
  touched here.

FAILURE MODEL:
  Reads are preconditions and abort the sync. Writes run through the
  tolerant batch join: a failing upsert or delete is logged and reported,
  but never blocks reconciliation of the other rows. Re-running the sync
  over unchanged inputs is a no-op.
*/
package billing

import (
	"context"
	"log"
	"strings"
)

// =============================================================================
// JOURNAL ENTRY
// =============================================================================

// JournalEntry is one derived row of the staff journal. An empty
// ActivityID or GroupLessonID plays the role of the null scope.
type JournalEntry struct {
	StaffID       StaffID
	ActivityID    ActivityID
	GroupLessonID GroupLessonID
	Date          Date

	// Amount is the post-deduction figure; BaseAmount the pre-deduction one.
	Amount            Money
	BaseAmount        Money
	DeductionsApplied []AppliedDeduction

	IsManualOverride bool
	Notes            string
}

// JournalKey identifies the single row a journal entry may occupy.
type JournalKey struct {
	StaffID       StaffID
	ActivityID    ActivityID
	GroupLessonID GroupLessonID
	Date          string
	Manual        bool
}

func (e JournalEntry) Key() JournalKey {
	return JournalKey{
		StaffID:       e.StaffID,
		ActivityID:    e.ActivityID,
		GroupLessonID: e.GroupLessonID,
		Date:          e.Date.String(),
		Manual:        e.IsManualOverride,
	}
}

// sameAs reports whether a recomputed entry matches the stored row, in
// which case the upsert is skipped (idempotent rerun leaves no trace).
func (e JournalEntry) sameAs(other JournalEntry) bool {
	return e.Amount.Equal(other.Amount) &&
		e.BaseAmount.Equal(other.BaseAmount) &&
		e.Notes == other.Notes
}

// =============================================================================
// SYNCHRONIZER
// =============================================================================

// SyncStore is the persistence surface the synchronizer needs.
type SyncStore interface {
	JournalStore
	DeductionStore
}

type Synchronizer struct {
	Store SyncStore

	// BatchSize bounds concurrent writes; 0 means DefaultBatchSize.
	BatchSize int

	// Logf receives write-failure logs. Defaults to log.Printf.
	Logf func(format string, args ...any)
}

// SyncReport summarizes one reconciliation run.
type SyncReport struct {
	Upserted  int
	Deleted   int
	Unchanged int
	Failed    []BatchFailure
}

// SyncPeriod reconciles the journal for a period. records are the
// attendance records of the period (the caller merges any optimistic
// cache first); lookup resolves staff rules per activity and date.
func (s *Synchronizer) SyncPeriod(ctx context.Context, records []AttendanceRecord, lookup StaffRuleLookup, period Period) (SyncReport, error) {
	if !period.Valid() {
		return SyncReport{}, ErrInvalidPeriod
	}
	logf := s.Logf
	if logf == nil {
		logf = log.Printf
	}

	desired, err := s.recompute(ctx, records, lookup, period)
	if err != nil {
		return SyncReport{}, err
	}

	existing, err := s.Store.JournalInRange(ctx, period)
	if err != nil {
		return SyncReport{}, err
	}

	var report SyncReport
	var ops []BatchOp

	stored := make(map[JournalKey]JournalEntry, len(existing))
	for _, e := range existing {
		if e.IsManualOverride {
			continue // manual rows are never touched
		}
		stored[e.Key()] = e
	}

	for key, entry := range desired {
		if prev, ok := stored[key]; ok && entry.sameAs(prev) {
			report.Unchanged++
			continue
		}
		entry := entry
		ops = append(ops, BatchOp{
			Key: "upsert " + key.Date + " " + string(key.StaffID),
			Do:  func(ctx context.Context) error { return s.Store.UpsertJournal(ctx, entry) },
		})
		report.Upserted++
	}

	for key := range stored {
		if _, ok := desired[key]; ok {
			continue
		}
		key := key
		ops = append(ops, BatchOp{
			Key: "delete " + key.Date + " " + string(key.StaffID),
			Do:  func(ctx context.Context) error { return s.Store.DeleteJournal(ctx, key) },
		})
		report.Deleted++
	}

	batch := RunBatches(ctx, s.BatchSize, ops)
	for _, f := range batch.Failed {
		logf("journal sync: %s failed: %v", f.Key, f.Err)
	}
	report.Failed = batch.Failed
	return report, nil
}

// recompute derives the desired auto rows for the period. The calculator
// runs once over the full record set so cross-activity state (the fixed
// rate's once-per-date booking) is shared; rows are still attributed per
// activity.
func (s *Synchronizer) recompute(ctx context.Context, records []AttendanceRecord, lookup StaffRuleLookup, period Period) (map[JournalKey]JournalEntry, error) {
	inPeriod := make([]AttendanceRecord, 0, len(records))
	for _, rec := range records {
		if period.Contains(rec.Date) {
			inPeriod = append(inPeriod, rec)
		}
	}

	calc := &AccrualCalculator{Lookup: lookup}
	deductions := make(map[StaffID][]Deduction)
	desired := make(map[JournalKey]JournalEntry)

	for activityID, accruals := range calc.MonthlyAccrualsByActivity(inPeriod) {
		for staffID, days := range accruals {
			chain, ok := deductions[staffID]
			if !ok {
				var err error
				chain, err = s.Store.DeductionsFor(ctx, staffID)
				if err != nil {
					return nil, err
				}
				deductions[staffID] = chain
			}
			for dateKey, acc := range days {
				if !acc.Amount.IsPositive() {
					continue
				}
				at, err := ParseDate(dateKey)
				if err != nil {
					return nil, err
				}
				applied := ApplyDeductions(acc.Amount, chain)
				entry := JournalEntry{
					StaffID:           staffID,
					ActivityID:        activityID,
					Date:              at,
					Amount:            applied.Final,
					BaseAmount:        acc.Amount,
					DeductionsApplied: applied.Applied,
					Notes:             strings.Join(acc.Notes, "; "),
				}
				desired[entry.Key()] = entry
			}
		}
	}
	return desired, nil
}

// LookupFromRules builds a StaffRuleLookup over a rule snapshot, resolving
// with the usual specific-beats-global index. Every rule names its staff
// member, so resolution also answers "who is responsible".
func LookupFromRules(rules []StaffBillingRule) StaffRuleLookup {
	return func(activityID ActivityID, at Date) (StaffID, *StaffBillingRule, bool) {
		rule := ResolveStaffRule(rules, activityID, at)
		if rule == nil {
			return "", nil, false
		}
		return rule.StaffID, rule, true
	}
}

// LookupWithManualOverride prefers a manual rate when one is effective for
// the activity and date. A resolvable manual rate means the staff member's
// accrual mode is manual for that window, suspending the regular rules.
func LookupWithManualOverride(rules []StaffBillingRule, manual []StaffManualRate) StaffRuleLookup {
	return func(activityID ActivityID, at Date) (StaffID, *StaffBillingRule, bool) {
		if m := ResolveManualRate(manual, activityID, at); m != nil {
			rule := m.AsRule()
			return rule.StaffID, &rule, true
		}
		rule := ResolveStaffRule(rules, activityID, at)
		if rule == nil {
			return "", nil, false
		}
		return rule.StaffID, rule, true
	}
}
