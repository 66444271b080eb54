package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kita/billing-engine/billing"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func present(enrollmentID string, activityID string, at billing.Date) billing.AttendanceRecord {
	return billing.AttendanceRecord{
		EnrollmentID: billing.EnrollmentID(enrollmentID),
		StudentID:    billing.StudentID("s-" + enrollmentID),
		ActivityID:   billing.ActivityID(activityID),
		Date:         at,
		Status:       billing.StatusPresent,
	}
}

func presentWithValue(enrollmentID string, activityID string, at billing.Date, value string) billing.AttendanceRecord {
	rec := present(enrollmentID, activityID, at)
	v := dec(value)
	rec.Value = &v
	return rec
}

func calculatorFor(rules ...billing.StaffBillingRule) *billing.AccrualCalculator {
	return &billing.AccrualCalculator{Lookup: billing.LookupFromRules(rules)}
}

func openRule(staffID string, rateType billing.StaffRateType, rate string) billing.StaffBillingRule {
	return billing.StaffBillingRule{
		StaffID:   billing.StaffID(staffID),
		Scope:     billing.GlobalScope(),
		RateType:  rateType,
		Rate:      money(rate),
		Effective: billing.OpenInterval(billing.NewDate(2026, time.January, 1)),
		CreatedAt: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

// =============================================================================
// ADDITIVE RATE TYPES
// =============================================================================

func TestAccrual_PerSession_AdditivePerRecord(t *testing.T) {
	// GIVEN: A per-session rate of 50 and three present students on one day
	// WHEN: Computing accruals
	// THEN: The day earns 150

	calc := calculatorFor(openRule("t-1", billing.StaffRatePerSession, "50"))

	accruals := calc.MonthlyAccruals([]billing.AttendanceRecord{
		present("e-1", "act-1", march(2)),
		present("e-2", "act-1", march(2)),
		present("e-3", "act-1", march(2)),
	})

	assert.Equal(t, "150.00", accruals.AmountFor("t-1", march(2)).String())
	assert.Equal(t, "150.00", accruals.Total("t-1").String())
}

func TestAccrual_Fixed_OncePerDate(t *testing.T) {
	// GIVEN: A fixed daily rate of 200
	// WHEN: Three students attend on Monday and one on Tuesday
	// THEN: Each date earns 200 exactly once

	calc := calculatorFor(openRule("t-1", billing.StaffRateFixed, "200"))

	accruals := calc.MonthlyAccruals([]billing.AttendanceRecord{
		present("e-1", "act-1", march(2)),
		present("e-2", "act-1", march(2)),
		present("e-3", "act-1", march(2)),
		present("e-1", "act-1", march(3)),
	})

	assert.Equal(t, "200.00", accruals.AmountFor("t-1", march(2)).String())
	assert.Equal(t, "200.00", accruals.AmountFor("t-1", march(3)).String())
	assert.Equal(t, "400.00", accruals.Total("t-1").String())
}

func TestAccrual_Percent_OfCollectedValues(t *testing.T) {
	// GIVEN: A 10% rate over collected attendance values
	// WHEN: Values 250 and 150 are collected; one record has no value
	// THEN: The staff member earns 10% of each value; the valueless record
	//       contributes nothing

	calc := calculatorFor(openRule("t-1", billing.StaffRatePercent, "10"))

	accruals := calc.MonthlyAccruals([]billing.AttendanceRecord{
		presentWithValue("e-1", "act-1", march(2), "250"),
		presentWithValue("e-2", "act-1", march(2), "150"),
		present("e-3", "act-1", march(2)),
	})

	assert.Equal(t, "40.00", accruals.AmountFor("t-1", march(2)).String())
}

func TestAccrual_NonPresentStatuses_Ignored(t *testing.T) {
	calc := calculatorFor(openRule("t-1", billing.StaffRatePerSession, "50"))

	sick := present("e-1", "act-1", march(2))
	sick.Status = billing.StatusSick
	absent := present("e-2", "act-1", march(2))
	absent.Status = billing.StatusAbsent

	accruals := calc.MonthlyAccruals([]billing.AttendanceRecord{sick, absent})

	assert.Equal(t, "0.00", accruals.Total("t-1").String())
}

func TestAccrual_NoRule_NoEntry(t *testing.T) {
	// An unresolvable rule is expected configuration state, not an error.
	calc := &billing.AccrualCalculator{
		Lookup: func(billing.ActivityID, billing.Date) (billing.StaffID, *billing.StaffBillingRule, bool) {
			return "", nil, false
		},
	}

	accruals := calc.MonthlyAccruals([]billing.AttendanceRecord{
		present("e-1", "act-1", march(2)),
	})

	assert.Empty(t, accruals)
}

// =============================================================================
// SUBSCRIPTION STATE MACHINE
// =============================================================================

func subscriptionRule(rate string, limit int, extra string, trigger string, penalty string) billing.StaffBillingRule {
	rule := openRule("t-1", billing.StaffRateSubscription, rate)
	rule.LessonLimit = limit
	rule.ExtraLessonRate = money(extra)
	rule.PenaltyTriggerPercent = dec(trigger)
	rule.PenaltyPercent = dec(penalty)
	return rule
}

func sessionsOn(days []int) []billing.AttendanceRecord {
	var records []billing.AttendanceRecord
	for _, day := range days {
		records = append(records, present("e-1", "act-1", march(day)))
	}
	return records
}

func TestAccrual_Subscription_UnderAndOverLimit(t *testing.T) {
	// GIVEN: Monthly rate 400 over a 4-lesson limit (share 100), extra
	//        lessons at 50, no penalty configured
	// WHEN: Five sessions happen
	// THEN: 4 x 100 + 1 x 50 = 450

	calc := calculatorFor(subscriptionRule("400", 4, "50", "0", "0"))

	accruals := calc.MonthlyAccruals(sessionsOn([]int{2, 3, 4, 5, 6}))

	assert.Equal(t, "100.00", accruals.AmountFor("t-1", march(2)).String())
	assert.Equal(t, "50.00", accruals.AmountFor("t-1", march(6)).String(), "fifth session at extra rate")
	assert.Equal(t, "450.00", accruals.Total("t-1").String())
}

func TestAccrual_Subscription_PenaltyLifecycle(t *testing.T) {
	// GIVEN: Rate 2000 over a 10-lesson limit (share 200), extra rate 30,
	//        a 25% penalty triggering at 80% of the limit
	// WHEN: Eleven sessions accumulate in date order
	// THEN: Sessions 1-7 earn full shares; session 8 crosses the trigger and
	//       the one-time reduction claws back 25% of the 1600 accrued so far;
	//       later shares carry the 25% haircut

	calc := calculatorFor(subscriptionRule("2000", 10, "30", "80", "25"))
	accruals := calc.MonthlyAccruals(sessionsOn([]int{2, 3, 4, 5, 6, 9, 10, 11, 12, 13, 16}))

	// After 8 sessions: 8*200 accrued, minus one-time 400 adjustment.
	afterTrigger := billing.ZeroMoney()
	for _, day := range []int{2, 3, 4, 5, 6, 9, 10, 11} {
		afterTrigger = afterTrigger.Add(accruals.AmountFor("t-1", march(day)))
	}
	assert.Equal(t, "1200.00", afterTrigger.String())

	// Sessions 9 and 10 earn the penalized share.
	assert.Equal(t, "150.00", accruals.AmountFor("t-1", march(12)).String())
	assert.Equal(t, "150.00", accruals.AmountFor("t-1", march(13)).String())

	// Session 11 is over the limit: extra rate, still penalized.
	assert.Equal(t, "22.50", accruals.AmountFor("t-1", march(16)).String())

	assert.Equal(t, "1522.50", accruals.Total("t-1").String())
}

func TestAccrual_Subscription_ChronologicalOrderRegardlessOfInput(t *testing.T) {
	// GIVEN: A 1-lesson limit and two sessions fed in reverse date order
	// WHEN: Computing accruals
	// THEN: The earlier date gets the in-limit share, the later gets extra

	calc := calculatorFor(subscriptionRule("100", 1, "25", "0", "0"))

	accruals := calc.MonthlyAccruals([]billing.AttendanceRecord{
		present("e-1", "act-1", march(10)),
		present("e-1", "act-1", march(3)),
	})

	assert.Equal(t, "100.00", accruals.AmountFor("t-1", march(3)).String())
	assert.Equal(t, "25.00", accruals.AmountFor("t-1", march(10)).String())
}

func TestAccrual_Subscription_NoLimit_PlainPerSession(t *testing.T) {
	calc := calculatorFor(subscriptionRule("80", 0, "0", "0", "0"))

	accruals := calc.MonthlyAccruals(sessionsOn([]int{2, 3}))

	assert.Equal(t, "160.00", accruals.Total("t-1").String())
}

func TestAccrual_Subscription_SeparateStatePerActivity(t *testing.T) {
	// The lesson counter is per (staff, activity): two activities under the
	// same subscription rule fill their limits independently.
	rule := subscriptionRule("100", 1, "25", "0", "0")
	calc := calculatorFor(rule)

	accruals := calc.MonthlyAccruals([]billing.AttendanceRecord{
		present("e-1", "act-1", march(2)),
		present("e-2", "act-2", march(2)),
	})

	// Both sessions are each activity's first: full share twice.
	assert.Equal(t, "200.00", accruals.AmountFor("t-1", march(2)).String())
}

func TestAccrual_Notes_ExplainContributions(t *testing.T) {
	calc := calculatorFor(openRule("t-1", billing.StaffRatePerSession, "50"))

	accruals := calc.MonthlyAccruals([]billing.AttendanceRecord{
		present("e-1", "act-1", march(2)),
		present("e-2", "act-1", march(2)),
	})

	days := accruals[billing.StaffID("t-1")]
	if assert.Contains(t, days, march(2).String()) {
		assert.Len(t, days[march(2).String()].Notes, 2, "one note per contribution")
	}
}

// =============================================================================
// PER-ACTIVITY ATTRIBUTION
// =============================================================================

func TestAccrualByActivity_AttributesContributions(t *testing.T) {
	calc := calculatorFor(openRule("t-1", billing.StaffRatePerSession, "50"))

	byActivity := calc.MonthlyAccrualsByActivity([]billing.AttendanceRecord{
		present("e-1", "act-1", march(2)),
		present("e-2", "act-2", march(2)),
	})

	assert.Equal(t, "50.00", byActivity["act-1"].AmountFor("t-1", march(2)).String())
	assert.Equal(t, "50.00", byActivity["act-2"].AmountFor("t-1", march(2)).String())
}

func TestAccrualByActivity_FixedRate_OncePerDateAcrossActivities(t *testing.T) {
	// GIVEN: A global fixed rate and present records in two activities on
	//        the same date
	// WHEN: Computing per-activity accruals
	// THEN: The fixed rate books once for the date, on the chronologically
	//       first activity, not once per activity

	calc := calculatorFor(openRule("t-1", billing.StaffRateFixed, "100"))

	byActivity := calc.MonthlyAccrualsByActivity([]billing.AttendanceRecord{
		present("e-1", "act-1", march(2)),
		present("e-2", "act-2", march(2)),
	})

	total := billing.ZeroMoney()
	for _, accruals := range byActivity {
		total = total.Add(accruals.Total("t-1"))
	}
	assert.Equal(t, "100.00", total.String())
	assert.Equal(t, "100.00", byActivity["act-1"].AmountFor("t-1", march(2)).String())
	assert.Equal(t, "0.00", byActivity["act-2"].AmountFor("t-1", march(2)).String())
}

func TestAccrual_Percent_TakenOnceOverDaySum(t *testing.T) {
	// GIVEN: A 10% rate and three 33.33 collections on one date
	// WHEN: Computing accruals
	// THEN: The percentage applies to the 99.99 day sum (10.00), not to
	//       each value rounded separately (3 x 3.33 = 9.99)

	calc := calculatorFor(openRule("t-1", billing.StaffRatePercent, "10"))

	accruals := calc.MonthlyAccruals([]billing.AttendanceRecord{
		presentWithValue("e-1", "act-1", march(2), "33.33"),
		presentWithValue("e-2", "act-1", march(2), "33.33"),
		presentWithValue("e-3", "act-1", march(2), "33.33"),
	})

	assert.Equal(t, "10.00", accruals.AmountFor("t-1", march(2)).String())
}
