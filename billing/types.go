/*
Package billing provides the core daycare billing and accrual engine.

PURPOSE:
  This package contains the rule-resolution and money-calculation logic that
  turns attendance marks into student charges and staff earnings. It is a
  library: no transport, no UI, no persistence beyond the store interfaces
  it consumes.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A monetary value backed by decimal.Decimal (no float drift)
  - Status: An attendance mark (present, sick, absent, vacation, or a
    custom status id defined per activity)
  - AttendanceRecord: One mark per (enrollment, date)
  - Enrollment: The link between a student and an activity, carrying the
    per-student price overrides (custom price, discount)

DESIGN PRINCIPLES:
  1. Precision: All money math uses decimal.Decimal, rounded to cents at
     every multiplication step the billing rules call out
  2. Absence of a rule is not an error: unresolvable configuration yields
     "no charge", never a crash
  3. Manual edits win: a record frozen by a user is never recalculated

SEE ALSO:
  - rules.go:     Time-boxed billing rules and interval resolution
  - charge.go:    Attendance mark -> student charge
  - accrual.go:   Attendance marks -> staff earnings
  - deduction.go: Gross -> net with an ordered deduction chain
  - journal.go:   Reconciliation of the derived staff journal
*/
package billing

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Monetary value with cent precision
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value)}
}

func MoneyFromInt(value int64) Money {
	return Money{Value: decimal.NewFromInt(value)}
}

func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{Value: d}
}

func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero}
	}
	return Money{Value: d}
}

func ZeroMoney() Money { return Money{Value: decimal.Zero} }

func (m Money) Add(b Money) Money            { return Money{Value: m.Value.Add(b.Value)} }
func (m Money) Sub(b Money) Money            { return Money{Value: m.Value.Sub(b.Value)} }
func (m Money) Mul(s decimal.Decimal) Money  { return Money{Value: m.Value.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money  { return Money{Value: m.Value.Div(s)} }
func (m Money) Neg() Money                   { return Money{Value: m.Value.Neg()} }
func (m Money) Round() Money                 { return Money{Value: m.Value.Round(2)} }
func (m Money) IsZero() bool                 { return m.Value.IsZero() }
func (m Money) IsNegative() bool             { return m.Value.IsNegative() }
func (m Money) IsPositive() bool             { return m.Value.IsPositive() }
func (m Money) GreaterThan(b Money) bool     { return m.Value.GreaterThan(b.Value) }
func (m Money) LessThan(b Money) bool        { return m.Value.LessThan(b.Value) }
func (m Money) Equal(b Money) bool           { return m.Value.Equal(b.Value) }
func (m Money) Min(b Money) Money            { if m.LessThan(b) { return m }; return b }

// String renders with two decimal places, the precision of every stored amount.
func (m Money) String() string { return m.Value.StringFixed(2) }

// Percent returns p percent of m, rounded to cents.
func (m Money) Percent(p decimal.Decimal) Money {
	return m.Mul(p).Div(hundred).Round()
}

var hundred = decimal.NewFromInt(100)

// discountMultiplier returns (1 - percent/100).
func discountMultiplier(percent decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Sub(percent.Div(hundred))
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StaffID string
type ActivityID string
type StudentID string
type EnrollmentID string
type GroupLessonID string

// =============================================================================
// ATTENDANCE STATUS
// =============================================================================

// Status is an attendance mark. The four built-in statuses have engine-level
// semantics; anything else is a custom status id resolved against the
// activity's custom status rules.
type Status string

const (
	StatusNone     Status = ""
	StatusPresent  Status = "present"
	StatusSick     Status = "sick"
	StatusAbsent   Status = "absent"
	StatusVacation Status = "vacation"
)

func (s Status) IsBuiltin() bool {
	switch s {
	case StatusPresent, StatusSick, StatusAbsent, StatusVacation:
		return true
	default:
		return false
	}
}

// =============================================================================
// ATTENDANCE RECORD - One mark per (enrollment, date)
// =============================================================================

type AttendanceRecord struct {
	EnrollmentID EnrollmentID
	StudentID    StudentID
	ActivityID   ActivityID
	Date         Date

	// Status or free-form numeric value; a record with neither is deleted.
	Status Status
	Value  *decimal.Decimal

	// Computed student-facing charge. Nil when no rule resolved.
	ChargedAmount *Money

	// ManualValueEdit freezes the record against recalculation and auto-fill.
	ManualValueEdit bool
}

// Empty reports whether the record carries neither a status nor a value.
// Empty records are deleted, not stored.
func (r AttendanceRecord) Empty() bool {
	return r.Status == StatusNone && r.Value == nil
}

// =============================================================================
// ENROLLMENT - Student <-> activity link with price overrides
// =============================================================================

type Enrollment struct {
	ID         EnrollmentID
	StudentID  StudentID
	ActivityID ActivityID

	// CustomPrice overrides the activity rate entirely when set.
	CustomPrice *Money

	// DiscountPercent is applied to every computed charge (0 = no discount).
	DiscountPercent decimal.Decimal
}

// =============================================================================
// STAFF PAYOUT - Independent of journal entries
// =============================================================================

// StaffPayout records money actually paid out to a staff member.
// Balance = cumulative journal amount - cumulative payouts.
type StaffPayout struct {
	StaffID    StaffID
	Amount     Money
	PayoutDate Date
	Notes      string
}
