/*
accrual.go - Staff accrual calculation from attendance

PURPOSE:
  Given the "present" attendance records of a billing period and a rule
  lookup, computes per-staff, per-date earning amounts with human-readable
  justification notes (shown as tooltips in the journal UI).

RATE TYPE SEMANTICS:
  per_session / per_student: rate x 1 per present record, additive across
    records on the same date.
  fixed: rate once per date on which at least one present record exists,
    not multiplied by the student count.
  percent: rate% of the attendance values collected for that date/activity.
  subscription: a monthly state machine over lesson_limit. Sessions under
    the limit earn the per-session share (rate / lesson_limit); sessions
    over the limit earn extra_lesson_rate; when the consumed fraction
    crosses penalty_trigger_percent of the limit, a one-time
    penalty_percent reduction applies to the amount accrued so far and to
    every later share. Limit and penalty transitions depend on the order
    sessions accumulate, so records are processed in date order - the
    subscription type is NOT decidable per-day in isolation.

  Unresolvable rules contribute nothing and emit no entry. That is
  expected configuration state, not an error.
*/
package billing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// StaffRuleLookup resolves the staff member responsible for an activity on
// a date, together with the staff billing rule in force. ok=false means no
// rule applies (the attendance then earns nothing).
type StaffRuleLookup func(activityID ActivityID, at Date) (StaffID, *StaffBillingRule, bool)

// DayAccrual is one staff member's earnings for one date.
type DayAccrual struct {
	Amount Money
	Notes  []string
}

// StaffAccruals maps staff -> date (YYYY-MM-DD) -> accrual.
type StaffAccruals map[StaffID]map[string]*DayAccrual

// AmountFor returns the accrued amount for a staff/date, zero when absent.
func (a StaffAccruals) AmountFor(staffID StaffID, at Date) Money {
	if days, ok := a[staffID]; ok {
		if acc, ok := days[at.String()]; ok {
			return acc.Amount
		}
	}
	return ZeroMoney()
}

// Total sums a staff member's accruals across all dates.
func (a StaffAccruals) Total(staffID StaffID) Money {
	total := ZeroMoney()
	for _, acc := range a[staffID] {
		total = total.Add(acc.Amount)
	}
	return total
}

func (a StaffAccruals) day(staffID StaffID, at Date) *DayAccrual {
	days, ok := a[staffID]
	if !ok {
		days = make(map[string]*DayAccrual)
		a[staffID] = days
	}
	key := at.String()
	acc, ok := days[key]
	if !ok {
		acc = &DayAccrual{Amount: ZeroMoney()}
		days[key] = acc
	}
	return acc
}

// =============================================================================
// ACCRUAL CALCULATOR
// =============================================================================

type AccrualCalculator struct {
	Lookup StaffRuleLookup
}

// subscriptionState tracks one staff+activity subscription through a period:
// under limit -> at limit -> over limit, plus the one-time penalty.
type subscriptionState struct {
	sessions  int
	penalized bool
	accrued   Money
}

// accrualSink hands out the day bucket a contribution lands in. The
// activity parameter lets callers attribute contributions per activity
// without the calculator carrying two result shapes.
type accrualSink func(staffID StaffID, activityID ActivityID, at Date) *DayAccrual

// MonthlyAccruals computes accruals for one billing period from its present
// attendance records. Records are processed in chronological order so the
// subscription limit/penalty transitions land on the right days.
//
// Pass the FULL record set of the period, never a per-activity slice:
// fixed rates dedupe per staff member and date across all activities, and
// a partial slice would book the fixed rate once per slice instead.
func (c *AccrualCalculator) MonthlyAccruals(records []AttendanceRecord) StaffAccruals {
	accruals := make(StaffAccruals)
	c.run(records, func(staffID StaffID, _ ActivityID, at Date) *DayAccrual {
		return accruals.day(staffID, at)
	})
	return accruals
}

// MonthlyAccrualsByActivity runs the same single pass but attributes each
// contribution to the activity it was earned on. Cross-activity state is
// shared: a fixed rate still books once per staff member and date (it
// lands on the chronologically first activity), and subscription state
// stays per staff+activity as always.
func (c *AccrualCalculator) MonthlyAccrualsByActivity(records []AttendanceRecord) map[ActivityID]StaffAccruals {
	out := make(map[ActivityID]StaffAccruals)
	c.run(records, func(staffID StaffID, activityID ActivityID, at Date) *DayAccrual {
		accruals, ok := out[activityID]
		if !ok {
			accruals = make(StaffAccruals)
			out[activityID] = accruals
		}
		return accruals.day(staffID, at)
	})
	return out
}

// percentDay accumulates one staff+activity+date percent base so the
// percentage is taken once over the collected sum, not per record.
type percentDay struct {
	collected decimal.Decimal
	booked    Money
}

func (c *AccrualCalculator) run(records []AttendanceRecord, day accrualSink) {
	sorted := make([]AttendanceRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		if sorted[i].ActivityID != sorted[j].ActivityID {
			return sorted[i].ActivityID < sorted[j].ActivityID
		}
		return sorted[i].EnrollmentID < sorted[j].EnrollmentID
	})

	fixedSeen := make(map[string]bool)               // staff|date
	subStates := make(map[string]*subscriptionState) // staff|activity
	percentDays := make(map[string]*percentDay)      // staff|activity|date

	for _, rec := range sorted {
		if rec.Status != StatusPresent {
			continue
		}
		staffID, rule, ok := c.Lookup(rec.ActivityID, rec.Date)
		if !ok || rule == nil {
			continue
		}

		switch rule.RateType {
		case StaffRatePerSession, StaffRatePerStudent:
			acc := day(staffID, rec.ActivityID, rec.Date)
			acc.Amount = acc.Amount.Add(rule.Rate.Round())
			acc.Notes = append(acc.Notes, fmt.Sprintf("%s %s (1 session)", rule.RateType, rule.Rate))

		case StaffRateFixed:
			key := string(staffID) + "|" + rec.Date.String()
			if fixedSeen[key] {
				continue
			}
			fixedSeen[key] = true
			acc := day(staffID, rec.ActivityID, rec.Date)
			acc.Amount = acc.Amount.Add(rule.Rate.Round())
			acc.Notes = append(acc.Notes, fmt.Sprintf("fixed %s for %s", rule.Rate, rec.Date))

		case StaffRatePercent:
			if rec.Value == nil {
				continue
			}
			key := string(staffID) + "|" + string(rec.ActivityID) + "|" + rec.Date.String()
			pd, ok := percentDays[key]
			if !ok {
				pd = &percentDay{booked: ZeroMoney()}
				percentDays[key] = pd
			}
			pd.collected = pd.collected.Add(*rec.Value)
			collected := MoneyFromDecimal(pd.collected)
			total := collected.Percent(rule.Rate.Value)
			acc := day(staffID, rec.ActivityID, rec.Date)
			acc.Amount = acc.Amount.Add(total.Sub(pd.booked))
			pd.booked = total
			acc.Notes = append(acc.Notes, fmt.Sprintf("%s%% of %s collected = %s", rule.Rate.Value, collected, total))

		case StaffRateSubscription:
			c.subscriptionSession(day, subStates, staffID, rule, rec)
		}
	}
}

func (c *AccrualCalculator) subscriptionSession(
	day accrualSink,
	states map[string]*subscriptionState,
	staffID StaffID,
	rule *StaffBillingRule,
	rec AttendanceRecord,
) {
	key := string(staffID) + "|" + string(rec.ActivityID)
	st, ok := states[key]
	if !ok {
		st = &subscriptionState{accrued: ZeroMoney()}
		states[key] = st
	}
	st.sessions++

	var share Money
	var note string
	switch {
	case rule.LessonLimit > 0 && st.sessions > rule.LessonLimit:
		share = rule.ExtraLessonRate.Round()
		note = fmt.Sprintf("session %d over limit %d: extra rate %s", st.sessions, rule.LessonLimit, share)
	case rule.LessonLimit > 0:
		share = rule.Rate.Div(decimal.NewFromInt(int64(rule.LessonLimit))).Round()
		note = fmt.Sprintf("session %d/%d: share %s", st.sessions, rule.LessonLimit, share)
	default:
		// No limit configured: the monthly rate degrades to a plain
		// per-session rate.
		share = rule.Rate.Round()
		note = fmt.Sprintf("session %d: rate %s", st.sessions, share)
	}

	if st.penalized {
		share = share.Mul(discountMultiplier(rule.PenaltyPercent)).Round()
		note += fmt.Sprintf(" (after %s%% penalty)", rule.PenaltyPercent)
	}

	acc := day(staffID, rec.ActivityID, rec.Date)
	acc.Amount = acc.Amount.Add(share)
	acc.Notes = append(acc.Notes, note)
	st.accrued = st.accrued.Add(share)

	if !st.penalized && c.penaltyTriggered(rule, st.sessions) {
		st.penalized = true
		adjustment := st.accrued.Percent(rule.PenaltyPercent)
		acc.Amount = acc.Amount.Sub(adjustment)
		st.accrued = st.accrued.Sub(adjustment)
		acc.Notes = append(acc.Notes, fmt.Sprintf("penalty %s%% after crossing %s%% of limit: -%s",
			rule.PenaltyPercent, rule.PenaltyTriggerPercent, adjustment))
	}
}

func (c *AccrualCalculator) penaltyTriggered(rule *StaffBillingRule, sessions int) bool {
	if rule.LessonLimit <= 0 || rule.PenaltyTriggerPercent.IsZero() || rule.PenaltyPercent.IsZero() {
		return false
	}
	consumed := decimal.NewFromInt(int64(sessions) * 100)
	threshold := rule.PenaltyTriggerPercent.Mul(decimal.NewFromInt(int64(rule.LessonLimit)))
	return consumed.GreaterThanOrEqual(threshold)
}
