package billing

import "github.com/shopspring/decimal"

// =============================================================================
// DEDUCTION ENGINE - Ordered reductions from gross to net
// =============================================================================

type DeductionKind string

const (
	DeductionPercent DeductionKind = "percent"
	DeductionFixed   DeductionKind = "fixed"
)

// Deduction is one step in a staff member's deduction chain.
type Deduction struct {
	Kind  DeductionKind
	Value decimal.Decimal
	Label string
}

// AppliedDeduction records one step of the breakdown.
type AppliedDeduction struct {
	Label  string
	Kind   DeductionKind
	Value  decimal.Decimal
	Amount Money
}

type DeductionResult struct {
	Final   Money
	Applied []AppliedDeduction
}

// ApplyDeductions runs the chain in list order against the running
// remaining amount (sequential compounding, not against the original
// gross). Percent steps take value% of what remains; fixed steps take
// min(value, remaining). The final amount never goes below zero.
func ApplyDeductions(gross Money, deductions []Deduction) DeductionResult {
	remaining := gross
	result := DeductionResult{Final: gross}

	for _, d := range deductions {
		var taken Money
		switch d.Kind {
		case DeductionPercent:
			taken = remaining.Percent(d.Value)
		case DeductionFixed:
			taken = MoneyFromDecimal(d.Value).Min(remaining)
		default:
			continue
		}
		if taken.IsNegative() {
			taken = ZeroMoney()
		}
		remaining = remaining.Sub(taken)
		if remaining.IsNegative() {
			remaining = ZeroMoney()
		}
		result.Applied = append(result.Applied, AppliedDeduction{
			Label:  d.Label,
			Kind:   d.Kind,
			Value:  d.Value,
			Amount: taken,
		})
	}

	result.Final = remaining
	return result
}
