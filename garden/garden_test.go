package garden_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kita/billing-engine/billing"
	"github.com/kita/billing-engine/billing/store"
	"github.com/kita/billing-engine/garden"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// Tariff pricing: the base tariff is a 2200/month subscription (100/day in
// March 2026, which has 22 working days); the food tariff is 15/day fixed.
func tariffPricing(activityID billing.ActivityID, _ billing.Date) (billing.BillingRules, bool) {
	switch activityID {
	case "base-1":
		return billing.BillingRules{
			Statuses: map[billing.Status]billing.BillingRule{
				billing.StatusPresent: {Rate: billing.MustParseMoney("2200"), Type: billing.RateSubscription},
			},
		}, true
	case "food-1":
		return billing.BillingRules{
			Statuses: map[billing.Status]billing.BillingRule{
				billing.StatusPresent: {Rate: billing.MustParseMoney("15"), Type: billing.RateFixed},
			},
		}, true
	default:
		return billing.BillingRules{}, false
	}
}

func controller() garden.Activity {
	return garden.Activity{
		ID:   "ctrl-1",
		Name: "Full day group",
		Config: &garden.ControllerConfig{
			BaseTariffIDs: []billing.ActivityID{"base-1"},
			FoodTariffIDs: []billing.ActivityID{"food-1"},
		},
	}
}

func gardenEnrollments() []billing.Enrollment {
	return []billing.Enrollment{
		{ID: "e-base", StudentID: "s-1", ActivityID: "base-1"},
		{ID: "e-food", StudentID: "s-1", ActivityID: "food-1"},
	}
}

func march(day int) billing.Date {
	return billing.NewDate(2026, time.March, day)
}

// =============================================================================
// DAILY ACCRUAL
// =============================================================================

func TestDailyAccrual_Present_BaseBilledNoRefund(t *testing.T) {
	calc := &garden.Calculator{Pricing: tariffPricing}

	charge := calc.DailyAccrual("s-1", march(2), controller(), gardenEnrollments(), billing.StatusPresent)

	require.NotNil(t, charge)
	assert.Equal(t, "100.00", charge.Amount.String(), "daily subscription share of the base tariff")
	assert.Equal(t, "15.00", charge.FoodTotal.String())
	assert.Nil(t, charge.FoodRefund, "meal cost stays inside the base charge when present")
}

func TestDailyAccrual_Absent_BaseStillBilledFoodRefunded(t *testing.T) {
	// GIVEN: An absent day on the controller
	// WHEN: Deriving the daily charge
	// THEN: The base tariff bills anyway and the food value is refunded

	calc := &garden.Calculator{Pricing: tariffPricing}

	charge := calc.DailyAccrual("s-1", march(2), controller(), gardenEnrollments(), billing.StatusAbsent)

	require.NotNil(t, charge)
	assert.Equal(t, "100.00", charge.Amount.String(), "recurring charge is status-independent")
	require.NotNil(t, charge.FoodRefund)
	assert.Equal(t, "15.00", charge.FoodRefund.String())
}

func TestDailyAccrual_SickAndVacation_NoRefund(t *testing.T) {
	calc := &garden.Calculator{Pricing: tariffPricing}

	for _, status := range []billing.Status{billing.StatusSick, billing.StatusVacation} {
		charge := calc.DailyAccrual("s-1", march(2), controller(), gardenEnrollments(), status)
		require.NotNil(t, charge)
		if charge.FoodRefund != nil {
			t.Errorf("status %s: unexpected food refund", status)
		}
	}
}

func TestDailyAccrual_MissingConfig_Nil(t *testing.T) {
	calc := &garden.Calculator{Pricing: tariffPricing}
	plain := garden.Activity{ID: "ctrl-1", Name: "No config"}

	charge := calc.DailyAccrual("s-1", march(2), plain, gardenEnrollments(), billing.StatusPresent)
	assert.Nil(t, charge, "cannot compute is nil, never a zero charge")
}

func TestDailyAccrual_NoResolvableBaseTariff_Nil(t *testing.T) {
	// The student is only enrolled in the food tariff.
	calc := &garden.Calculator{Pricing: tariffPricing}
	enrollments := []billing.Enrollment{
		{ID: "e-food", StudentID: "s-1", ActivityID: "food-1"},
	}

	charge := calc.DailyAccrual("s-1", march(2), controller(), enrollments, billing.StatusPresent)
	assert.Nil(t, charge)
}

func TestDailyAccrual_NotEnrolledInFood_NoRefundOnAbsent(t *testing.T) {
	calc := &garden.Calculator{Pricing: tariffPricing}
	enrollments := []billing.Enrollment{
		{ID: "e-base", StudentID: "s-1", ActivityID: "base-1"},
	}

	charge := calc.DailyAccrual("s-1", march(2), controller(), enrollments, billing.StatusAbsent)

	require.NotNil(t, charge)
	assert.Equal(t, "100.00", charge.Amount.String())
	assert.Nil(t, charge.FoodRefund)
}

// =============================================================================
// FOOD REFUND SYNC
// =============================================================================

func TestSyncFoodRefund_ToggleNetsOut(t *testing.T) {
	// GIVEN: A student marked present, then absent, then present again
	// WHEN: Syncing the refund after each change
	// THEN: The refund appears on absent and disappears again - the toggle
	//       leaves no residue

	calc := &garden.Calculator{Pricing: tariffPricing}
	mem := store.NewMemory()
	ctx := context.Background()

	sync := func(status billing.Status) {
		charge := calc.DailyAccrual("s-1", march(2), controller(), gardenEnrollments(), status)
		require.NoError(t, garden.SyncFoodRefund(ctx, mem, "s-1", march(2), charge))
	}

	sync(billing.StatusPresent)
	_, exists, err := mem.FoodRefund(ctx, "s-1", march(2))
	require.NoError(t, err)
	assert.False(t, exists)

	sync(billing.StatusAbsent)
	amount, exists, err := mem.FoodRefund(ctx, "s-1", march(2))
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, "15.00", amount.String())

	sync(billing.StatusPresent)
	_, exists, err = mem.FoodRefund(ctx, "s-1", march(2))
	require.NoError(t, err)
	assert.False(t, exists, "leftover refund deleted on present")
}

func TestSyncFoodRefund_NilCharge_RemovesLeftover(t *testing.T) {
	// A day that became uncomputable (config removed) still cleans up.
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.UpsertFoodRefund(ctx, "s-1", march(2), billing.MustParseMoney("15")))
	require.NoError(t, garden.SyncFoodRefund(ctx, mem, "s-1", march(2), nil))

	_, exists, err := mem.FoodRefund(ctx, "s-1", march(2))
	require.NoError(t, err)
	assert.False(t, exists)
}
