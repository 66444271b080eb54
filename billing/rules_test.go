package billing_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kita/billing-engine/billing"
)

// =============================================================================
// INTERVAL SEMANTICS
// =============================================================================

func TestInterval_HalfOpen(t *testing.T) {
	// [Mar 1, Mar 15): the start day is in, the close-out day is out.
	iv := billing.ClosedInterval(march(1), march(15))

	assert.True(t, iv.Contains(march(1)), "start day is inside")
	assert.True(t, iv.Contains(march(14)))
	assert.False(t, iv.Contains(march(15)), "close-out day is outside")
	assert.False(t, iv.Contains(billing.NewDate(2026, time.February, 28)))
}

func TestInterval_Open_ContainsEverythingAfterFrom(t *testing.T) {
	iv := billing.OpenInterval(march(10))

	assert.False(t, iv.Contains(march(9)))
	assert.True(t, iv.Contains(march(10)))
	assert.True(t, iv.Contains(billing.NewDate(2030, time.January, 1)))
	assert.True(t, iv.IsOpen())
}

func TestInterval_Overlaps(t *testing.T) {
	a := billing.ClosedInterval(march(1), march(10))
	b := billing.ClosedInterval(march(10), march(20)) // starts where a ends
	c := billing.OpenInterval(march(5))

	assert.False(t, a.Overlaps(b), "adjacent half-open intervals do not overlap")
	assert.True(t, a.Overlaps(c))
	assert.True(t, b.Overlaps(c))
}

// =============================================================================
// PRICE HISTORY RESOLUTION
// =============================================================================

func TestResolvePriceHistory_PicksRecordCoveringDate(t *testing.T) {
	// GIVEN: A closed January-February record and an open March record
	// WHEN: Resolving dates on both sides of the cut
	// THEN: Each date lands in its own record

	oldRules := fixedRules("100")
	newRules := fixedRules("120")
	history := []billing.ActivityPriceHistory{
		{ActivityID: "act-1", Rules: oldRules,
			Effective: billing.ClosedInterval(billing.NewDate(2026, time.January, 1), march(1))},
		{ActivityID: "act-1", Rules: newRules,
			Effective: billing.OpenInterval(march(1))},
	}

	before := billing.ResolvePriceHistory(history, billing.NewDate(2026, time.February, 10))
	require.NotNil(t, before)
	assert.Equal(t, "100.00", before.Rules.Statuses[billing.StatusPresent].Rate.String())

	after := billing.ResolvePriceHistory(history, march(1))
	require.NotNil(t, after)
	assert.Equal(t, "120.00", after.Rules.Statuses[billing.StatusPresent].Rate.String())
}

func TestResolvePriceHistory_NothingCovers_Nil(t *testing.T) {
	history := []billing.ActivityPriceHistory{
		{ActivityID: "act-1", Effective: billing.OpenInterval(march(10))},
	}
	assert.Nil(t, billing.ResolvePriceHistory(history, march(9)))
	assert.Nil(t, billing.ResolvePriceHistory(nil, march(9)))
}

// =============================================================================
// STAFF RULE RESOLUTION
// =============================================================================

func staffRule(staffID string, scope billing.Scope, rate string, createdAt time.Time) billing.StaffBillingRule {
	return billing.StaffBillingRule{
		StaffID:   billing.StaffID(staffID),
		Scope:     scope,
		RateType:  billing.StaffRatePerSession,
		Rate:      money(rate),
		Effective: billing.OpenInterval(billing.NewDate(2026, time.January, 1)),
		CreatedAt: createdAt,
	}
}

func TestResolveStaffRule_SpecificBeatsGlobal(t *testing.T) {
	// GIVEN: A global rule and a rule scoped to act-1, both in force
	// WHEN: Resolving for act-1 and for act-2
	// THEN: act-1 gets the scoped rule, act-2 falls back to the global one

	t0 := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	rules := []billing.StaffBillingRule{
		staffRule("t-1", billing.GlobalScope(), "40", t0),
		staffRule("t-1", billing.ActivityScope("act-1"), "60", t0),
	}

	scoped := billing.ResolveStaffRule(rules, "act-1", march(2))
	require.NotNil(t, scoped)
	assert.Equal(t, "60.00", scoped.Rate.String())

	global := billing.ResolveStaffRule(rules, "act-2", march(2))
	require.NotNil(t, global)
	assert.Equal(t, "40.00", global.Rate.String())
}

func TestResolveStaffRule_TieBreaksOnLatestCreated(t *testing.T) {
	// Overlapping records at the same specificity violate the disjointness
	// invariant; resolution must still be deterministic.
	t0 := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	rules := []billing.StaffBillingRule{
		staffRule("t-1", billing.GlobalScope(), "40", t0),
		staffRule("t-1", billing.GlobalScope(), "45", t0.Add(time.Hour)),
	}

	got := billing.ResolveStaffRule(rules, "act-1", march(2))
	require.NotNil(t, got)
	assert.Equal(t, "45.00", got.Rate.String())
}

func TestResolveStaffRule_RespectsCloseOut(t *testing.T) {
	// GIVEN: A rule closed out at Mar 15 and its open successor
	// WHEN: Resolving the day before and the day of the cut
	// THEN: The old rate applies through Mar 14, the new one from Mar 15

	t0 := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	old := staffRule("t-1", billing.GlobalScope(), "40", t0)
	old.Effective = billing.ClosedInterval(billing.NewDate(2026, time.January, 1), march(15))
	new_ := staffRule("t-1", billing.GlobalScope(), "50", t0.Add(time.Hour))
	new_.Effective = billing.OpenInterval(march(15))

	rules := []billing.StaffBillingRule{old, new_}

	before := billing.ResolveStaffRule(rules, "act-1", march(14))
	require.NotNil(t, before)
	assert.Equal(t, "40.00", before.Rate.String())

	after := billing.ResolveStaffRule(rules, "act-1", march(15))
	require.NotNil(t, after)
	assert.Equal(t, "50.00", after.Rate.String())
}

func TestResolveStaffRule_NoMatch_Nil(t *testing.T) {
	t0 := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	rules := []billing.StaffBillingRule{
		staffRule("t-1", billing.ActivityScope("act-1"), "60", t0),
	}
	assert.Nil(t, billing.ResolveStaffRule(rules, "act-2", march(2)))
}

func TestInterval_CloseOutChainsStayDisjoint(t *testing.T) {
	// Random close-out chains: each new record starts strictly after the
	// previous one and closes it at its own From. Every day must then be
	// covered by exactly one interval.
	rng := rand.New(rand.NewSource(1))

	for run := 0; run < 50; run++ {
		start := billing.NewDate(2026, time.January, 1)
		var intervals []billing.Interval

		from := start
		for i := 0; i < 4; i++ {
			next := from.AddDays(1 + rng.Intn(60))
			intervals = append(intervals, billing.ClosedInterval(from, next))
			from = next
		}
		intervals = append(intervals, billing.OpenInterval(from))

		for i := range intervals {
			for j := i + 1; j < len(intervals); j++ {
				if intervals[i].Overlaps(intervals[j]) {
					t.Fatalf("run %d: intervals %d and %d overlap", run, i, j)
				}
			}
		}
		for d := start; d.Before(from.AddDays(30)); d = d.AddDays(1) {
			covering := 0
			for _, iv := range intervals {
				if iv.Contains(d) {
					covering++
				}
			}
			if covering != 1 {
				t.Fatalf("run %d: %s covered by %d intervals, want 1", run, d, covering)
			}
		}
	}
}

// =============================================================================
// MANUAL RATES
// =============================================================================

func TestManualRate_AsRule_BillsPerSession(t *testing.T) {
	rate := billing.StaffManualRate{
		StaffID:   "t-1",
		Scope:     billing.GlobalScope(),
		Kind:      billing.ManualRateHourly,
		Value:     money("35"),
		Effective: billing.OpenInterval(march(1)),
	}

	rule := rate.AsRule()
	assert.Equal(t, billing.StaffRatePerSession, rule.RateType)
	assert.Equal(t, "35.00", rule.Rate.String())
	assert.Equal(t, billing.StaffID("t-1"), rule.StaffID)
}
