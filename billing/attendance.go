/*
attendance.go - Attendance record lifecycle

PURPOSE:
  Owns the create/update/delete lifecycle of attendance records: a record
  exists while it carries a status or a value and is deleted once both are
  cleared. Every write recomputes the student-facing charge through the
  charge calculator.

OPTIMISTIC CACHE:
  On a successful write the record is merged into the attendance cache so
  accrual computations see the pending value without a re-read. On a
  failed write nothing is committed locally - the failure surfaces to the
  caller.

FREEZE:
  Records with manual_value_edit are never altered by the bulk fill
  routine, even when their value is zero.
*/
package billing

import (
	"context"

	"github.com/shopspring/decimal"
)

// PricingLookup resolves the billing rules in force for an activity on a
// date. ok=false means no rules are configured (charges become nil).
type PricingLookup func(activityID ActivityID, at Date) (BillingRules, bool)

type AttendanceService struct {
	Store   AttendanceStore
	Cache   *AttendanceCache
	Pricing PricingLookup

	// BatchSize bounds concurrent writes during bulk fill; 0 means default.
	BatchSize int
}

// Mark writes the attendance record for (enrollment, date). A mark with
// neither status nor value deletes the record. manualEdit marks the value
// as user-entered, freezing the record against auto-fill.
func (s *AttendanceService) Mark(ctx context.Context, enr Enrollment, at Date, status Status, value *decimal.Decimal, manualEdit bool) (*AttendanceRecord, error) {
	rec := AttendanceRecord{
		EnrollmentID:    enr.ID,
		StudentID:       enr.StudentID,
		ActivityID:      enr.ActivityID,
		Date:            at,
		Status:          status,
		Value:           value,
		ManualValueEdit: manualEdit,
	}

	if rec.Empty() {
		if err := s.Store.DeleteAttendance(ctx, enr.ID, at); err != nil {
			return nil, err
		}
		if s.Cache != nil {
			s.Cache.Invalidate(enr.ID, at)
		}
		return nil, nil
	}

	if rules, ok := s.pricing(enr.ActivityID, at); ok {
		if charge, ok := ChargeForStatus(ChargeInput{
			Date:            at,
			Status:          status,
			ManualValue:     value,
			CustomPrice:     enr.CustomPrice,
			DiscountPercent: enr.DiscountPercent,
			Rules:           rules,
		}); ok {
			rec.ChargedAmount = &charge
		}
	}

	if err := s.Store.UpsertAttendance(ctx, rec); err != nil {
		// No optimistic commit on failure.
		return nil, err
	}
	if s.Cache != nil {
		s.Cache.Set(rec)
	}
	return &rec, nil
}

// FillPresent marks every blank enrollment present for one date. Records
// frozen by a manual value edit are skipped, as are records that already
// carry a status. Writes run in chunks of BatchSize with a tolerant join.
func (s *AttendanceService) FillPresent(ctx context.Context, activityID ActivityID, at Date, enrollments []Enrollment) (BatchReport, error) {
	day := Period{Start: at, End: at}
	stored, err := s.Store.AttendanceInRange(ctx, activityID, day)
	if err != nil {
		return BatchReport{}, err
	}
	if s.Cache != nil {
		stored = s.Cache.Merge(stored)
	}

	existing := make(map[EnrollmentID]AttendanceRecord, len(stored))
	for _, rec := range stored {
		if rec.Date.Equal(at) {
			existing[rec.EnrollmentID] = rec
		}
	}

	var ops []BatchOp
	for _, enr := range enrollments {
		if rec, ok := existing[enr.ID]; ok {
			if rec.ManualValueEdit || rec.Status != StatusNone {
				continue
			}
		}
		enr := enr
		ops = append(ops, BatchOp{
			Key: string(enr.ID),
			Do: func(ctx context.Context) error {
				_, err := s.Mark(ctx, enr, at, StatusPresent, nil, false)
				return err
			},
		})
	}

	return RunBatches(ctx, s.BatchSize, ops), nil
}

// Records returns the attendance of a period with any pending optimistic
// writes merged in. This is the view accrual computations should use.
func (s *AttendanceService) Records(ctx context.Context, activityID ActivityID, period Period) ([]AttendanceRecord, error) {
	stored, err := s.Store.AttendanceInRange(ctx, activityID, period)
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		stored = s.Cache.Merge(stored)
	}

	// The cache may hold records outside the requested view.
	filtered := stored[:0]
	for _, rec := range stored {
		if !period.Contains(rec.Date) {
			continue
		}
		if activityID != "" && rec.ActivityID != activityID {
			continue
		}
		filtered = append(filtered, rec)
	}
	return filtered, nil
}

func (s *AttendanceService) pricing(activityID ActivityID, at Date) (BillingRules, bool) {
	if s.Pricing == nil {
		return BillingRules{}, false
	}
	return s.Pricing(activityID, at)
}
