/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AND DATES:
  All monetary amounts travel as decimal strings ("110.00"), never as
  floats. Dates are YYYY-MM-DD strings.

TYPES:
  Attendance:
    AttendanceDTO, MarkAttendanceRequest, FillDayRequest, EnrollmentDTO

  Rules:
    PriceHistoryDTO, CreatePriceHistoryRequest (wraps factory.BillingRulesJSON)
    StaffRuleDTO (wraps factory.StaffRuleJSON), ManualRateDTO

  Garden:
    GardenAttendanceRequest, ControllerDTO, DailyChargeDTO, FoodRefundDTO

  Journal:
    JournalEntryDTO, AppliedDeductionDTO, SyncReportDTO

  Payouts:
    PayoutDTO, CreatePayoutRequest, BalanceDTO

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rules.go: JSON rule schema
*/
package api

import (
	"github.com/kita/billing-engine/billing"
	"github.com/kita/billing-engine/factory"
	"github.com/kita/billing-engine/garden"
)

// =============================================================================
// ATTENDANCE
// =============================================================================

// EnrollmentDTO carries the student<->activity link and its price
// overrides. Enrollments live in the surrounding application; requests
// that act on one send it inline.
type EnrollmentDTO struct {
	ID              string  `json:"id"`
	StudentID       string  `json:"student_id"`
	ActivityID      string  `json:"activity_id"`
	CustomPrice     *string `json:"custom_price,omitempty"`
	DiscountPercent string  `json:"discount_percent,omitempty"`
}

// AttendanceDTO represents one attendance mark in API responses.
type AttendanceDTO struct {
	EnrollmentID    string  `json:"enrollment_id"`
	StudentID       string  `json:"student_id"`
	ActivityID      string  `json:"activity_id"`
	Date            string  `json:"date"`
	Status          string  `json:"status,omitempty"`
	Value           *string `json:"value,omitempty"`
	ChargedAmount   *string `json:"charged_amount,omitempty"`
	ManualValueEdit bool    `json:"manual_value_edit,omitempty"`
}

// MarkAttendanceRequest marks one (enrollment, date). An empty status
// with no value clears the mark.
type MarkAttendanceRequest struct {
	Enrollment      EnrollmentDTO `json:"enrollment"`
	Date            string        `json:"date"`
	Status          string        `json:"status,omitempty"`
	Value           *string       `json:"value,omitempty"`
	ManualValueEdit bool          `json:"manual_value_edit,omitempty"`
}

// FillDayRequest bulk-marks every listed enrollment present on a date.
type FillDayRequest struct {
	ActivityID  string          `json:"activity_id"`
	Date        string          `json:"date"`
	Enrollments []EnrollmentDTO `json:"enrollments"`
}

// FillDayResponse reports the tolerant batch outcome.
type FillDayResponse struct {
	Succeeded int              `json:"succeeded"`
	Failed    []BatchErrorDTO  `json:"failed,omitempty"`
}

// BatchErrorDTO is one failed operation of a tolerant batch.
type BatchErrorDTO struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// =============================================================================
// RULES
// =============================================================================

// PriceHistoryDTO represents one time-boxed activity rule set.
type PriceHistoryDTO struct {
	ActivityID    string                   `json:"activity_id"`
	Rules         factory.BillingRulesJSON `json:"rules"`
	EffectiveFrom string                   `json:"effective_from"`
	EffectiveTo   *string                  `json:"effective_to,omitempty"`
	CreatedAt     string                   `json:"created_at,omitempty"`
}

// CreatePriceHistoryRequest appends a new open rule set for an activity.
// The previous open record is closed out at effective_from.
type CreatePriceHistoryRequest struct {
	Rules         factory.BillingRulesJSON `json:"rules"`
	EffectiveFrom string                   `json:"effective_from"`
}

// StaffRuleDTO mirrors factory.StaffRuleJSON for responses.
type StaffRuleDTO = factory.StaffRuleJSON

// ManualRateDTO is one time-boxed manual staff rate. While effective it
// overrides the staff member's billing rules (manual accrual mode).
type ManualRateDTO struct {
	StaffID       string  `json:"staff_id"`
	ActivityID    *string `json:"activity_id,omitempty"`
	Kind          string  `json:"kind"`
	Value         string  `json:"value"`
	EffectiveFrom string  `json:"effective_from"`
	EffectiveTo   *string `json:"effective_to,omitempty"`
}

// =============================================================================
// GARDEN
// =============================================================================

// ControllerDTO links a controller activity to its child tariffs.
type ControllerDTO struct {
	Name          string   `json:"name,omitempty"`
	BaseTariffIDs []string `json:"base_tariff_ids"`
	FoodTariffIDs []string `json:"food_tariff_ids,omitempty"`
}

// GardenAttendanceRequest marks one controller attendance. Enrollment is
// the student's controller enrollment; Enrollments lists all of the
// student's enrollments so the tariff charges can be derived.
type GardenAttendanceRequest struct {
	Enrollment  EnrollmentDTO   `json:"enrollment"`
	Date        string          `json:"date"`
	Status      string          `json:"status"`
	Controller  ControllerDTO   `json:"controller"`
	Enrollments []EnrollmentDTO `json:"enrollments"`
}

// TariffChargeDTO is one derived per-tariff daily amount.
type TariffChargeDTO struct {
	ActivityID string `json:"activity_id"`
	Amount     string `json:"amount"`
}

// DailyChargeDTO is the derived result of one controller attendance mark.
type DailyChargeDTO struct {
	Amount      string            `json:"amount"`
	BaseTariffs []TariffChargeDTO `json:"base_tariffs"`
	FoodTariffs []TariffChargeDTO `json:"food_tariffs,omitempty"`
	FoodTotal   string            `json:"food_total"`
	FoodRefund  *string           `json:"food_refund,omitempty"`
}

// FoodRefundDTO is one stored refund transaction.
type FoodRefundDTO struct {
	StudentID string `json:"student_id"`
	Date      string `json:"date"`
	Amount    string `json:"amount"`
}

// =============================================================================
// JOURNAL
// =============================================================================

// AppliedDeductionDTO is one step of a journal row's deduction breakdown.
type AppliedDeductionDTO struct {
	Label  string `json:"label"`
	Kind   string `json:"kind"`
	Value  string `json:"value"`
	Amount string `json:"amount"`
}

// JournalEntryDTO represents one staff journal row.
type JournalEntryDTO struct {
	StaffID          string                `json:"staff_id"`
	ActivityID       string                `json:"activity_id,omitempty"`
	GroupLessonID    string                `json:"group_lesson_id,omitempty"`
	Date             string                `json:"date"`
	Amount           string                `json:"amount"`
	BaseAmount       string                `json:"base_amount"`
	Deductions       []AppliedDeductionDTO `json:"deductions,omitempty"`
	IsManualOverride bool                  `json:"is_manual_override,omitempty"`
	Notes            string                `json:"notes,omitempty"`
}

// SyncReportDTO summarizes one journal reconciliation run.
type SyncReportDTO struct {
	Period    string          `json:"period"`
	Upserted  int             `json:"upserted"`
	Deleted   int             `json:"deleted"`
	Unchanged int             `json:"unchanged"`
	Failed    []BatchErrorDTO `json:"failed,omitempty"`
}

// =============================================================================
// PAYOUTS AND BALANCE
// =============================================================================

// PayoutDTO represents one payout to a staff member.
type PayoutDTO struct {
	StaffID    string `json:"staff_id"`
	Amount     string `json:"amount"`
	PayoutDate string `json:"payout_date"`
	Notes      string `json:"notes,omitempty"`
}

// CreatePayoutRequest records a payout.
type CreatePayoutRequest struct {
	Amount     string `json:"amount"`
	PayoutDate string `json:"payout_date"`
	Notes      string `json:"notes,omitempty"`
}

// BalanceDTO is a staff member's accrued-minus-paid balance.
type BalanceDTO struct {
	StaffID string `json:"staff_id"`
	Balance string `json:"balance"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toAttendanceDTO(rec billing.AttendanceRecord) AttendanceDTO {
	dto := AttendanceDTO{
		EnrollmentID:    string(rec.EnrollmentID),
		StudentID:       string(rec.StudentID),
		ActivityID:      string(rec.ActivityID),
		Date:            rec.Date.String(),
		Status:          string(rec.Status),
		ManualValueEdit: rec.ManualValueEdit,
	}
	if rec.Value != nil {
		v := rec.Value.String()
		dto.Value = &v
	}
	if rec.ChargedAmount != nil {
		c := rec.ChargedAmount.String()
		dto.ChargedAmount = &c
	}
	return dto
}

func toJournalDTO(e billing.JournalEntry) JournalEntryDTO {
	dto := JournalEntryDTO{
		StaffID:          string(e.StaffID),
		ActivityID:       string(e.ActivityID),
		GroupLessonID:    string(e.GroupLessonID),
		Date:             e.Date.String(),
		Amount:           e.Amount.String(),
		BaseAmount:       e.BaseAmount.String(),
		IsManualOverride: e.IsManualOverride,
		Notes:            e.Notes,
	}
	for _, a := range e.DeductionsApplied {
		dto.Deductions = append(dto.Deductions, AppliedDeductionDTO{
			Label:  a.Label,
			Kind:   string(a.Kind),
			Value:  a.Value.String(),
			Amount: a.Amount.String(),
		})
	}
	return dto
}

func toDailyChargeDTO(charge *garden.DailyCharge) DailyChargeDTO {
	dto := DailyChargeDTO{
		Amount:    charge.Amount.String(),
		FoodTotal: charge.FoodTotal.String(),
	}
	for _, t := range charge.BaseTariffs {
		dto.BaseTariffs = append(dto.BaseTariffs, TariffChargeDTO{
			ActivityID: string(t.ActivityID), Amount: t.Amount.String(),
		})
	}
	for _, t := range charge.FoodTariffs {
		dto.FoodTariffs = append(dto.FoodTariffs, TariffChargeDTO{
			ActivityID: string(t.ActivityID), Amount: t.Amount.String(),
		})
	}
	if charge.FoodRefund != nil {
		refund := charge.FoodRefund.String()
		dto.FoodRefund = &refund
	}
	return dto
}

func toBatchErrors(failed []billing.BatchFailure) []BatchErrorDTO {
	var out []BatchErrorDTO
	for _, f := range failed {
		out = append(out, BatchErrorDTO{Key: f.Key, Error: f.Err.Error()})
	}
	return out
}
