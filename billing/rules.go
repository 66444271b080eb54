/*
rules.go - Time-boxed billing rules and the rule interval index

PURPOSE:
  Billing configuration is append-only history: a rule record is never
  mutated after being superseded, it is closed out with an effective_to
  date and a new open record is inserted. This file defines those records
  and the resolution logic that answers "which rule is in force on date X?".

INTERVAL SEMANTICS:
  Every record carries a half-open effective interval [From, To).
  A nil To means the record is the currently open one. For a single owner
  key (one activity, or one staff+scope pair) the intervals never overlap,
  so resolution returns at most one record per specificity level.

SPECIFICITY:
  Staff rules are scoped: a rule for a concrete activity beats a global
  rule (Scope.IsGlobal). Ties within a specificity level violate the
  disjointness invariant; resolution then falls back deterministically to
  the most recently created record.

SEE ALSO:
  - charge.go:  Consumes resolved BillingRules
  - accrual.go: Consumes resolved StaffBillingRule
  - store.go:   InsertPriceHistory implements the append/close-out protocol
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RATE TYPES
// =============================================================================

// RateType governs how a student-facing billing rule converts to money.
type RateType string

const (
	RateFixed        RateType = "fixed"
	RateSubscription RateType = "subscription"
	RateHourly       RateType = "hourly"
)

// StaffRateType governs how a staff billing rule converts attendance to earnings.
type StaffRateType string

const (
	StaffRateFixed        StaffRateType = "fixed"
	StaffRatePercent      StaffRateType = "percent"
	StaffRatePerSession   StaffRateType = "per_session"
	StaffRateSubscription StaffRateType = "subscription"
	StaffRatePerStudent   StaffRateType = "per_student"
)

// =============================================================================
// INTERVAL - Half-open [From, To) effective window
// =============================================================================

type Interval struct {
	From Date
	To   *Date // nil = open-ended (the currently active record)
}

func OpenInterval(from Date) Interval {
	return Interval{From: from}
}

func ClosedInterval(from, to Date) Interval {
	return Interval{From: from, To: &to}
}

// Contains reports whether d falls inside [From, To).
func (iv Interval) Contains(d Date) bool {
	if d.Before(iv.From) {
		return false
	}
	if iv.To != nil && d.AfterOrEqual(*iv.To) {
		return false
	}
	return true
}

// IsOpen reports whether the interval has no close-out date.
func (iv Interval) IsOpen() bool { return iv.To == nil }

// Overlaps reports whether two intervals share at least one day.
func (iv Interval) Overlaps(other Interval) bool {
	if iv.To != nil && other.From.AfterOrEqual(*iv.To) {
		return false
	}
	if other.To != nil && iv.From.AfterOrEqual(*other.To) {
		return false
	}
	return true
}

// =============================================================================
// SCOPE - Global vs per-activity rule applicability
// =============================================================================

// Scope is a tagged variant: a staff rule either applies to every activity
// the staff member teaches (global) or to exactly one activity. Resolution
// prefers the specific scope over the global one.
type Scope struct {
	activity ActivityID
	global   bool
}

func GlobalScope() Scope { return Scope{global: true} }

func ActivityScope(id ActivityID) Scope { return Scope{activity: id} }

func (s Scope) IsGlobal() bool { return s.global }

// Activity returns the scoped activity id; ok is false for the global scope.
func (s Scope) Activity() (ActivityID, bool) {
	if s.global {
		return "", false
	}
	return s.activity, true
}

// Covers reports whether the scope applies to the given activity.
func (s Scope) Covers(id ActivityID) bool {
	return s.global || s.activity == id
}

func (s Scope) specificity() int {
	if s.global {
		return 0
	}
	return 1
}

func (s Scope) String() string {
	if s.global {
		return "global"
	}
	return string(s.activity)
}

// =============================================================================
// BILLING RULES - Student-facing rule set for one activity
// =============================================================================

type BillingRule struct {
	Rate Money
	Type RateType
}

// CustomStatusRule defines pricing for an activity-specific status id.
// Unlike built-in statuses, its rate may be negative (a refund).
type CustomStatusRule struct {
	ID       string
	Name     string
	IsActive bool
	Rule     BillingRule
}

// BillingRules is the complete rule set attached to an activity:
// per-status rules, an optional rule for free-numeric value entries,
// and custom statuses.
type BillingRules struct {
	Statuses       map[Status]BillingRule
	Value          *BillingRule
	CustomStatuses []CustomStatusRule
}

// ForStatus resolves the rule for a status key: built-in statuses first,
// then active custom statuses by id. custom reports which branch matched.
func (br BillingRules) ForStatus(s Status) (rule BillingRule, custom bool, ok bool) {
	if s.IsBuiltin() {
		rule, ok = br.Statuses[s]
		return rule, false, ok
	}
	for _, cs := range br.CustomStatuses {
		if cs.ID == string(s) && cs.IsActive {
			return cs.Rule, true, true
		}
	}
	return BillingRule{}, false, false
}

// =============================================================================
// HISTORY RECORDS
// =============================================================================

// ActivityPriceHistory is one time-boxed rule set for an activity.
// Records for one activity never overlap; the open record is unique.
type ActivityPriceHistory struct {
	ActivityID ActivityID
	Rules      BillingRules
	Effective  Interval
	CreatedAt  time.Time
}

// StaffBillingRule is one time-boxed earning rule for a staff member.
// The subscription rate type carries the lesson-limit/penalty parameters.
type StaffBillingRule struct {
	StaffID  StaffID
	Scope    Scope
	RateType StaffRateType
	Rate     Money

	// Subscription parameters; zero values mean "not configured".
	LessonLimit           int
	PenaltyTriggerPercent decimal.Decimal
	PenaltyPercent        decimal.Decimal
	ExtraLessonRate       Money

	Effective Interval
	CreatedAt time.Time
}

// ManualRateKind classifies a manually entered staff rate.
type ManualRateKind string

const (
	ManualRateHourly     ManualRateKind = "hourly"
	ManualRatePerSession ManualRateKind = "per_session"
)

// StaffManualRate is a time-boxed manual rate, consulted only when the
// staff member's accrual mode is "manual".
type StaffManualRate struct {
	StaffID   StaffID
	Scope     Scope
	Kind      ManualRateKind
	Value     Money
	Effective Interval
	CreatedAt time.Time
}

// AsRule converts a manual rate into a per-session staff rule so the
// accrual calculator needs no separate code path. Hourly manual rates
// bill one session per attendance mark, same as per-session rates.
func (m StaffManualRate) AsRule() StaffBillingRule {
	return StaffBillingRule{
		StaffID:   m.StaffID,
		Scope:     m.Scope,
		RateType:  StaffRatePerSession,
		Rate:      m.Value,
		Effective: m.Effective,
		CreatedAt: m.CreatedAt,
	}
}

// =============================================================================
// RULE INTERVAL INDEX - O(n) resolution over a candidate set
// =============================================================================

// ResolvePriceHistory returns the price-history record effective on the
// given date, or nil. Overlapping records violate the disjointness
// invariant; the most recently created one wins deterministically.
func ResolvePriceHistory(records []ActivityPriceHistory, at Date) *ActivityPriceHistory {
	var best *ActivityPriceHistory
	for i := range records {
		r := &records[i]
		if !r.Effective.Contains(at) {
			continue
		}
		if best == nil || r.CreatedAt.After(best.CreatedAt) {
			best = r
		}
	}
	return best
}

// ResolveStaffRule returns the staff rule effective on the given date for
// the given activity. Specific beats global: a rule scoped to the exact
// activity wins over a global one. Returns nil when nothing matches.
func ResolveStaffRule(records []StaffBillingRule, activityID ActivityID, at Date) *StaffBillingRule {
	var best *StaffBillingRule
	for i := range records {
		r := &records[i]
		if !r.Scope.Covers(activityID) || !r.Effective.Contains(at) {
			continue
		}
		if best == nil {
			best = r
			continue
		}
		switch {
		case r.Scope.specificity() > best.Scope.specificity():
			best = r
		case r.Scope.specificity() == best.Scope.specificity() && r.CreatedAt.After(best.CreatedAt):
			best = r
		}
	}
	return best
}

// ResolveManualRate resolves a manual rate the same way staff rules resolve.
func ResolveManualRate(records []StaffManualRate, activityID ActivityID, at Date) *StaffManualRate {
	var best *StaffManualRate
	for i := range records {
		r := &records[i]
		if !r.Scope.Covers(activityID) || !r.Effective.Contains(at) {
			continue
		}
		if best == nil {
			best = r
			continue
		}
		switch {
		case r.Scope.specificity() > best.Scope.specificity():
			best = r
		case r.Scope.specificity() == best.Scope.specificity() && r.CreatedAt.After(best.CreatedAt):
			best = r
		}
	}
	return best
}
