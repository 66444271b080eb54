/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place. Missing configuration is deliberately NOT
  an error in this engine - unresolvable rules yield "no charge" results.
  Errors here cover validation failures at the boundary and persistence
  failures.

ERROR CATEGORIES:
  1. Validation errors - malformed input rejected before calculation
  2. Store errors - persistence failures
  3. History errors - append/close-out protocol violations
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRecordNotFound is returned when a referenced record doesn't exist.
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidValue is returned when a manual numeric input cannot be
	// parsed. Rejected at the boundary, never silently coerced to 0.
	ErrInvalidValue = errors.New("invalid numeric value")

	// ErrInvalidDate is returned for malformed dates at the boundary.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrManualValueLocked is returned when a write would alter a record
	// frozen by manual_value_edit.
	ErrManualValueLocked = errors.New("record is frozen by manual edit")

	// ErrOverlappingInterval is returned when inserting a history record
	// whose effective window overlaps an existing one for the same owner.
	ErrOverlappingInterval = errors.New("overlapping effective interval")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// OverlapError reports which owner key an interval insert collided on.
type OverlapError struct {
	Owner    string
	Interval Interval
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlapping effective interval for %s starting %s", e.Owner, e.Interval.From)
}

func (e *OverlapError) Unwrap() error { return ErrOverlappingInterval }

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// IsClientError reports whether err is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidValue) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrManualValueLocked) ||
		errors.Is(err, ErrOverlappingInterval)
}
