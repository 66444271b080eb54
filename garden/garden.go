/*
Package garden implements the kindergarten controller-activity
specialization of the billing engine.

A controller activity carries no price of its own: its config links a set
of base-tariff activities (the recurring daycare fee) and food-tariff
activities (meals). One attendance mark against the controller derives
several financial facts:

  - Every base tariff the student is enrolled in bills its daily value
    regardless of present/absent status (a fixed recurring charge).
  - On absent, the food-tariff daily value is refunded (no meal served).
    On present, no food transaction exists - the meal cost is baked into
    the base charge - and a leftover refund for that date is deleted.

A missing controller config, or a day where no base tariff resolves,
means "cannot compute", not "zero charge": DailyAccrual returns nil and
callers must leave the day unbilled.
*/
package garden

import (
	"context"

	"github.com/kita/billing-engine/billing"
)

// ControllerConfig links a controller activity to its child tariffs.
type ControllerConfig struct {
	BaseTariffIDs []billing.ActivityID
	FoodTariffIDs []billing.ActivityID
}

// Activity is a garden activity; Config is set only on controllers.
type Activity struct {
	ID     billing.ActivityID
	Name   string
	Config *ControllerConfig
}

// TariffCharge is one derived per-tariff daily amount.
type TariffCharge struct {
	ActivityID billing.ActivityID
	Amount     billing.Money
}

// DailyCharge is the result of one controller attendance mark.
type DailyCharge struct {
	// Amount is the total base-tariff charge for the day.
	Amount      billing.Money
	BaseTariffs []TariffCharge
	FoodTariffs []TariffCharge

	// FoodTotal is the combined food-tariff daily value.
	FoodTotal billing.Money

	// FoodRefund is set when the status credits the food tariff (absent).
	FoodRefund *billing.Money
}

// =============================================================================
// CALCULATOR
// =============================================================================

type Calculator struct {
	// Pricing resolves the billing rules of a tariff activity for a date.
	Pricing billing.PricingLookup
}

// DailyAccrual derives the per-tariff daily charges for one controller
// attendance mark. Returns nil when the controller config is missing or
// no base tariff resolves.
func (c *Calculator) DailyAccrual(
	studentID billing.StudentID,
	at billing.Date,
	controller Activity,
	enrollments []billing.Enrollment,
	status billing.Status,
) *DailyCharge {
	if controller.Config == nil {
		return nil
	}

	enrolled := make(map[billing.ActivityID]bool)
	for _, enr := range enrollments {
		if enr.StudentID == studentID {
			enrolled[enr.ActivityID] = true
		}
	}

	charge := &DailyCharge{Amount: billing.ZeroMoney(), FoodTotal: billing.ZeroMoney()}

	for _, id := range controller.Config.BaseTariffIDs {
		if !enrolled[id] {
			continue
		}
		daily, ok := c.dailyValue(id, at)
		if !ok {
			continue
		}
		charge.BaseTariffs = append(charge.BaseTariffs, TariffCharge{ActivityID: id, Amount: daily})
		charge.Amount = charge.Amount.Add(daily)
	}
	if len(charge.BaseTariffs) == 0 {
		return nil
	}

	for _, id := range controller.Config.FoodTariffIDs {
		if !enrolled[id] {
			continue
		}
		daily, ok := c.dailyValue(id, at)
		if !ok {
			continue
		}
		charge.FoodTariffs = append(charge.FoodTariffs, TariffCharge{ActivityID: id, Amount: daily})
		charge.FoodTotal = charge.FoodTotal.Add(daily)
	}

	if status == billing.StatusAbsent && charge.FoodTotal.IsPositive() {
		refund := charge.FoodTotal
		charge.FoodRefund = &refund
	}
	return charge
}

// dailyValue resolves a tariff activity's per-day value: the subscription
// daily share for subscription rules, the plain rate otherwise.
func (c *Calculator) dailyValue(activityID billing.ActivityID, at billing.Date) (billing.Money, bool) {
	if c.Pricing == nil {
		return billing.Money{}, false
	}
	rules, ok := c.Pricing(activityID, at)
	if !ok {
		return billing.Money{}, false
	}
	rule, _, ok := rules.ForStatus(billing.StatusPresent)
	if !ok || !rule.Rate.IsPositive() {
		return billing.Money{}, false
	}
	return billing.DailyTariffValue(rule, at), true
}

// =============================================================================
// FOOD REFUND SYNC
// =============================================================================

// RefundStore persists food-tariff refund transactions, one per
// (student, date).
type RefundStore interface {
	FoodRefund(ctx context.Context, studentID billing.StudentID, at billing.Date) (billing.Money, bool, error)
	UpsertFoodRefund(ctx context.Context, studentID billing.StudentID, at billing.Date, amount billing.Money) error
	DeleteFoodRefund(ctx context.Context, studentID billing.StudentID, at billing.Date) error
}

// SyncFoodRefund reconciles the refund transaction for one (student, date)
// with a freshly computed daily charge. Absent creates or updates the
// refund; any other status removes a leftover one. Toggling
// present -> absent -> present therefore nets out to the original state.
func SyncFoodRefund(ctx context.Context, store RefundStore, studentID billing.StudentID, at billing.Date, charge *DailyCharge) error {
	if charge != nil && charge.FoodRefund != nil {
		return store.UpsertFoodRefund(ctx, studentID, at, *charge.FoodRefund)
	}

	_, exists, err := store.FoodRefund(ctx, studentID, at)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	return store.DeleteFoodRefund(ctx, studentID, at)
}
