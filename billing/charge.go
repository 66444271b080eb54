/*
charge.go - Attendance mark to student charge conversion

PURPOSE:
  Converts one attendance mark (a status, or a free-form numeric value)
  plus a resolved billing rule set into a monetary charge. This is the
  student-facing half of the engine; accrual.go is the staff-facing half.

RESOLUTION ORDER:
  1. A custom price on the enrollment overrides the rule rate entirely.
  2. A manual numeric value bills through the activity's value rule.
  3. Otherwise the status resolves through BillingRules.ForStatus.

ROUNDING:
  Amounts are rounded to cents at every multiplication step, not only at
  the end. That per-step rounding is observable (the daily subscription
  share is a rounded figure before the discount applies) and is part of
  the contract.

NO-CHARGE CASES (returned as ok=false, never as an error):
  - No rule for the requested status key
  - Built-in status rule with rate <= 0 (base statuses must be strictly
    positive to count as billable; custom statuses may be negative,
    representing refunds)
  - Manual value without a configured value rule
*/
package billing

import (
	"github.com/shopspring/decimal"
)

// ChargeInput bundles everything needed to price one attendance mark.
type ChargeInput struct {
	Date   Date
	Status Status

	// ManualValue is a free-form numeric entry (e.g. hours). When set, the
	// activity's value rule prices it and Status is ignored.
	ManualValue *decimal.Decimal

	// CustomPrice overrides the rule rate entirely.
	CustomPrice *Money

	// DiscountPercent applies to every computed charge.
	DiscountPercent decimal.Decimal

	Rules BillingRules
}

// ChargeForStatus computes the charge for one attendance mark.
// ok=false means "no charge can be computed" - missing or non-billable
// configuration, which callers treat as "no charge", not as zero.
func ChargeForStatus(in ChargeInput) (Money, bool) {
	mult := discountMultiplier(in.DiscountPercent)

	if in.CustomPrice != nil {
		return in.CustomPrice.Mul(mult).Round(), true
	}

	if in.ManualValue != nil {
		return chargeForValue(*in.ManualValue, mult, in.Rules)
	}

	rule, custom, ok := in.Rules.ForStatus(in.Status)
	if !ok {
		return Money{}, false
	}
	// Base statuses must carry a strictly positive rate to be billable.
	// Custom statuses may be negative (refunds).
	if !custom && !rule.Rate.IsPositive() {
		return Money{}, false
	}

	switch rule.Type {
	case RateSubscription:
		return subscriptionCharge(rule.Rate, in.Date, mult), true
	default:
		// fixed and hourly behave identically for a status lookup:
		// the rate applies directly.
		return rule.Rate.Mul(mult).Round(), true
	}
}

// chargeForValue prices a free-form numeric entry through the value rule.
func chargeForValue(value decimal.Decimal, mult decimal.Decimal, rules BillingRules) (Money, bool) {
	if rules.Value == nil {
		return Money{}, false
	}
	charge := rules.Value.Rate.Mul(value).Round()
	return charge.Mul(mult).Round(), true
}

// subscriptionCharge spreads a monthly rate over the working days of the
// month containing the attendance date.
func subscriptionCharge(monthly Money, at Date, mult decimal.Decimal) Money {
	daily := SubscriptionDailyRate(monthly, at)
	return daily.Mul(mult).Round()
}

// SubscriptionDailyRate is the per-working-day share of a monthly
// subscription rate, rounded to cents. The divisor is the working-day
// count of the month containing at, not of the current month.
func SubscriptionDailyRate(monthly Money, at Date) Money {
	days := WorkingDaysInMonth(at)
	if days == 0 {
		return ZeroMoney()
	}
	return monthly.Div(decimal.NewFromInt(int64(days))).Round()
}

// DailyTariffValue computes the per-day value of a tariff rule: the daily
// subscription share for subscription rules, the plain rate otherwise.
// Used by the garden calculator to derive base/food tariff charges.
func DailyTariffValue(rule BillingRule, at Date) Money {
	if rule.Type == RateSubscription {
		return SubscriptionDailyRate(rule.Rate, at)
	}
	return rule.Rate.Round()
}
