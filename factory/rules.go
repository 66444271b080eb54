/*
Package factory provides JSON to billing-rule conversion.

PURPOSE:
  Converts JSON rule definitions into billing.BillingRules and
  billing.StaffBillingRule values. Rule configuration arrives from the
  admin UI as JSON; the factory validates it and produces proper engine
  structs, so pricing changes need no code changes.

JSON SCHEMA (activity rules):
  {
    "statuses": {
      "present": {"rate": "2200", "type": "subscription"},
      "sick":    {"rate": "0",    "type": "fixed"}
    },
    "value": {"rate": "350", "type": "hourly"},
    "custom_statuses": [
      {"id": "trial", "name": "Trial lesson", "is_active": true,
       "rule": {"rate": "-200", "type": "fixed"}}
    ]
  }

JSON SCHEMA (staff rule):
  {
    "staff_id": "staff-1",
    "activity_id": "act-1",            // omit for the global scope
    "rate_type": "subscription",
    "rate": "2400",
    "lesson_limit": 8,
    "penalty_trigger_percent": "80",
    "penalty_percent": "15",
    "extra_lesson_rate": "40",
    "effective_from": "2026-02-01",
    "effective_to": "2026-03-01"       // omit for the open record
  }

Rates travel as strings to keep decimal precision through JSON.
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kita/billing-engine/billing"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type RuleJSON struct {
	Rate string `json:"rate"`
	Type string `json:"type"`
}

type CustomStatusJSON struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	IsActive bool     `json:"is_active"`
	Rule     RuleJSON `json:"rule"`
}

type BillingRulesJSON struct {
	Statuses       map[string]RuleJSON `json:"statuses"`
	Value          *RuleJSON           `json:"value,omitempty"`
	CustomStatuses []CustomStatusJSON  `json:"custom_statuses,omitempty"`
}

type StaffRuleJSON struct {
	StaffID               string  `json:"staff_id"`
	ActivityID            *string `json:"activity_id,omitempty"`
	RateType              string  `json:"rate_type"`
	Rate                  string  `json:"rate"`
	LessonLimit           int     `json:"lesson_limit,omitempty"`
	PenaltyTriggerPercent string  `json:"penalty_trigger_percent,omitempty"`
	PenaltyPercent        string  `json:"penalty_percent,omitempty"`
	ExtraLessonRate       string  `json:"extra_lesson_rate,omitempty"`
	EffectiveFrom         string  `json:"effective_from"`
	EffectiveTo           *string `json:"effective_to,omitempty"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseBillingRules converts a JSON activity rule set into engine structs.
func ParseBillingRules(data []byte) (billing.BillingRules, error) {
	var raw BillingRulesJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return billing.BillingRules{}, fmt.Errorf("parse billing rules: %w", err)
	}
	return BillingRulesFromJSON(raw)
}

// BillingRulesFromJSON converts an already-decoded rule set.
func BillingRulesFromJSON(raw BillingRulesJSON) (billing.BillingRules, error) {
	rules := billing.BillingRules{Statuses: make(map[billing.Status]billing.BillingRule)}

	for key, rj := range raw.Statuses {
		status := billing.Status(key)
		if !status.IsBuiltin() {
			return billing.BillingRules{}, fmt.Errorf("unknown status key %q", key)
		}
		rule, err := ruleFromJSON(rj)
		if err != nil {
			return billing.BillingRules{}, fmt.Errorf("status %q: %w", key, err)
		}
		rules.Statuses[status] = rule
	}

	if raw.Value != nil {
		rule, err := ruleFromJSON(*raw.Value)
		if err != nil {
			return billing.BillingRules{}, fmt.Errorf("value rule: %w", err)
		}
		rules.Value = &rule
	}

	for _, cs := range raw.CustomStatuses {
		rule, err := ruleFromJSON(cs.Rule)
		if err != nil {
			return billing.BillingRules{}, fmt.Errorf("custom status %q: %w", cs.ID, err)
		}
		rules.CustomStatuses = append(rules.CustomStatuses, billing.CustomStatusRule{
			ID:       cs.ID,
			Name:     cs.Name,
			IsActive: cs.IsActive,
			Rule:     rule,
		})
	}
	return rules, nil
}

// ParseStaffRule converts a JSON staff rule into an engine struct.
// An omitted activity_id produces the global scope.
func ParseStaffRule(data []byte) (billing.StaffBillingRule, error) {
	var raw StaffRuleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return billing.StaffBillingRule{}, fmt.Errorf("parse staff rule: %w", err)
	}
	return StaffRuleFromJSON(raw)
}

// StaffRuleFromJSON converts an already-decoded staff rule.
func StaffRuleFromJSON(raw StaffRuleJSON) (billing.StaffBillingRule, error) {
	rateType := billing.StaffRateType(raw.RateType)
	switch rateType {
	case billing.StaffRateFixed, billing.StaffRatePercent, billing.StaffRatePerSession,
		billing.StaffRateSubscription, billing.StaffRatePerStudent:
	default:
		return billing.StaffBillingRule{}, fmt.Errorf("unknown rate type %q", raw.RateType)
	}

	rate, err := parseMoney(raw.Rate)
	if err != nil {
		return billing.StaffBillingRule{}, fmt.Errorf("rate: %w", err)
	}

	rule := billing.StaffBillingRule{
		StaffID:     billing.StaffID(raw.StaffID),
		Scope:       billing.GlobalScope(),
		RateType:    rateType,
		Rate:        rate,
		LessonLimit: raw.LessonLimit,
		CreatedAt:   time.Now().UTC(),
	}
	if raw.ActivityID != nil {
		rule.Scope = billing.ActivityScope(billing.ActivityID(*raw.ActivityID))
	}

	if rule.PenaltyTriggerPercent, err = parsePercent(raw.PenaltyTriggerPercent); err != nil {
		return billing.StaffBillingRule{}, fmt.Errorf("penalty_trigger_percent: %w", err)
	}
	if rule.PenaltyPercent, err = parsePercent(raw.PenaltyPercent); err != nil {
		return billing.StaffBillingRule{}, fmt.Errorf("penalty_percent: %w", err)
	}
	if raw.ExtraLessonRate != "" {
		if rule.ExtraLessonRate, err = parseMoney(raw.ExtraLessonRate); err != nil {
			return billing.StaffBillingRule{}, fmt.Errorf("extra_lesson_rate: %w", err)
		}
	}

	from, err := billing.ParseDate(raw.EffectiveFrom)
	if err != nil {
		return billing.StaffBillingRule{}, fmt.Errorf("effective_from: %w", billing.ErrInvalidDate)
	}
	rule.Effective = billing.OpenInterval(from)
	if raw.EffectiveTo != nil {
		to, err := billing.ParseDate(*raw.EffectiveTo)
		if err != nil {
			return billing.StaffBillingRule{}, fmt.Errorf("effective_to: %w", billing.ErrInvalidDate)
		}
		rule.Effective = billing.ClosedInterval(from, to)
	}
	return rule, nil
}

func ruleFromJSON(rj RuleJSON) (billing.BillingRule, error) {
	rateType := billing.RateType(rj.Type)
	switch rateType {
	case billing.RateFixed, billing.RateSubscription, billing.RateHourly:
	default:
		return billing.BillingRule{}, fmt.Errorf("unknown rate type %q", rj.Type)
	}
	rate, err := parseMoney(rj.Rate)
	if err != nil {
		return billing.BillingRule{}, err
	}
	return billing.BillingRule{Rate: rate, Type: rateType}, nil
}

func parseMoney(s string) (billing.Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return billing.Money{}, fmt.Errorf("%q: %w", s, billing.ErrInvalidValue)
	}
	return billing.MoneyFromDecimal(d), nil
}

func parsePercent(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q: %w", s, billing.ErrInvalidValue)
	}
	return d, nil
}

// =============================================================================
// SERIALIZATION - engine structs back to the JSON schema
// =============================================================================

// RulesToJSON converts engine billing rules to their JSON schema form.
// Used by the persistence layer to store rule sets in a single column.
func RulesToJSON(rules billing.BillingRules) BillingRulesJSON {
	raw := BillingRulesJSON{}
	if len(rules.Statuses) > 0 {
		raw.Statuses = make(map[string]RuleJSON, len(rules.Statuses))
		for status, rule := range rules.Statuses {
			raw.Statuses[string(status)] = RuleJSON{Rate: rule.Rate.Value.String(), Type: string(rule.Type)}
		}
	}
	if rules.Value != nil {
		raw.Value = &RuleJSON{Rate: rules.Value.Rate.Value.String(), Type: string(rules.Value.Type)}
	}
	for _, cs := range rules.CustomStatuses {
		raw.CustomStatuses = append(raw.CustomStatuses, CustomStatusJSON{
			ID:       cs.ID,
			Name:     cs.Name,
			IsActive: cs.IsActive,
			Rule:     RuleJSON{Rate: cs.Rule.Rate.Value.String(), Type: string(cs.Rule.Type)},
		})
	}
	return raw
}

// =============================================================================
// PRESETS
// =============================================================================

// StandardTariffRules builds the usual monthly subscription tariff:
// present and absent both bill the daily share (attendance does not pause
// the base fee), sick and vacation are free.
func StandardTariffRules(monthlyRate string) billing.BillingRules {
	rate := billing.MustParseMoney(monthlyRate)
	return billing.BillingRules{
		Statuses: map[billing.Status]billing.BillingRule{
			billing.StatusPresent: {Rate: rate, Type: billing.RateSubscription},
			billing.StatusAbsent:  {Rate: rate, Type: billing.RateSubscription},
		},
	}
}

// StandardDeductions is the default staff deduction chain: income tax
// first, then the fixed processing fee against the remainder.
func StandardDeductions() []billing.Deduction {
	return []billing.Deduction{
		{Kind: billing.DeductionPercent, Value: decimal.NewFromInt(13), Label: "income tax"},
		{Kind: billing.DeductionFixed, Value: decimal.NewFromInt(50), Label: "processing fee"},
	}
}
