/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the billing and accrual engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Attendance:
    POST   /api/attendance                      Mark one (enrollment, date)
    POST   /api/attendance/fill                 Bulk-fill a day as present
    GET    /api/activities/{id}/attendance      Attendance for a month

  Rules:
    GET    /api/activities/{id}/price-history   Rule history for an activity
    POST   /api/activities/{id}/price-history   Append a new rule set
    GET    /api/staff/{id}/rules                Staff rule history
    POST   /api/staff/rules                     Append a staff rule

  Journal:
    POST   /api/journal/sync                    Reconcile a month's journal
    GET    /api/journal                         Journal rows for a month
    GET    /api/staff/{id}/journal              Journal rows for a staff member

  Payouts:
    GET    /api/staff/{id}/balance              Accrued-minus-paid balance
    GET    /api/staff/{id}/payouts              Payout history
    POST   /api/staff/{id}/payouts              Record a payout

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access
  - Attendance: Mark/fill service with its optimistic cache
  - Sync: Journal synchronizer

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (charge, accrual, synchronizer)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (overlapping rule intervals, locked manual edits)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Periodic journal reconciliation
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kita/billing-engine/billing"
	"github.com/kita/billing-engine/factory"
	"github.com/kita/billing-engine/garden"
	"github.com/kita/billing-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Attendance *billing.AttendanceService
	Sync       *billing.Synchronizer
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store) *Handler {
	h := &Handler{
		Store: store,
		Sync:  &billing.Synchronizer{Store: store},
	}
	h.Attendance = &billing.AttendanceService{
		Store:   store,
		Cache:   billing.NewAttendanceCache(),
		Pricing: h.pricingLookup,
	}
	return h
}

// pricingLookup resolves the active rule set for an activity and date.
func (h *Handler) pricingLookup(activityID billing.ActivityID, at billing.Date) (billing.BillingRules, bool) {
	history, err := h.Store.PriceHistory(context.Background(), activityID)
	if err != nil {
		return billing.BillingRules{}, false
	}
	rec := billing.ResolvePriceHistory(history, at)
	if rec == nil {
		return billing.BillingRules{}, false
	}
	return rec.Rules, true
}

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

// MarkAttendance marks one (enrollment, date).
// POST /api/attendance
func (h *Handler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	var req MarkAttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	at, err := billing.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	enr, err := enrollmentFromDTO(req.Enrollment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid enrollment", err)
		return
	}

	var value *decimal.Decimal
	if req.Value != nil {
		v, err := decimal.NewFromString(*req.Value)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid value", err)
			return
		}
		value = &v
	}

	rec, err := h.Attendance.Mark(r.Context(), enr, at, billing.Status(req.Status), value, req.ManualValueEdit)
	if err != nil {
		writeDomainError(w, "Failed to mark attendance", err)
		return
	}
	h.syncAffected(r.Context(), at)
	if rec == nil {
		// Empty mark: the record was cleared.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceDTO(*rec))
}

// FillDay bulk-marks every listed enrollment present on a date.
// POST /api/attendance/fill
func (h *Handler) FillDay(w http.ResponseWriter, r *http.Request) {
	var req FillDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	at, err := billing.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	enrollments := make([]billing.Enrollment, 0, len(req.Enrollments))
	for _, dto := range req.Enrollments {
		enr, err := enrollmentFromDTO(dto)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid enrollment "+dto.ID, err)
			return
		}
		enrollments = append(enrollments, enr)
	}

	report, err := h.Attendance.FillPresent(r.Context(), billing.ActivityID(req.ActivityID), at, enrollments)
	if err != nil {
		writeDomainError(w, "Failed to fill day", err)
		return
	}
	h.syncAffected(r.Context(), at)

	writeJSON(w, http.StatusOK, FillDayResponse{
		Succeeded: len(report.Succeeded),
		Failed:    toBatchErrors(report.Failed),
	})
}

// GetAttendance returns an activity's attendance for a month.
// GET /api/activities/{id}/attendance?year=2026&month=3
func (h *Handler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	activityID := billing.ActivityID(chi.URLParam(r, "id"))
	period, ok := monthParam(w, r)
	if !ok {
		return
	}

	records, err := h.Attendance.Records(r.Context(), activityID, period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load attendance", err)
		return
	}

	dtos := make([]AttendanceDTO, len(records))
	for i, rec := range records {
		dtos[i] = toAttendanceDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RULE HANDLERS
// =============================================================================

// GetPriceHistory returns an activity's full rule history.
// GET /api/activities/{id}/price-history
func (h *Handler) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	activityID := billing.ActivityID(chi.URLParam(r, "id"))

	history, err := h.Store.PriceHistory(r.Context(), activityID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load price history", err)
		return
	}

	dtos := make([]PriceHistoryDTO, len(history))
	for i, rec := range history {
		dto := PriceHistoryDTO{
			ActivityID:    string(rec.ActivityID),
			Rules:         factory.RulesToJSON(rec.Rules),
			EffectiveFrom: rec.Effective.From.String(),
			CreatedAt:     rec.CreatedAt.Format(time.RFC3339),
		}
		if rec.Effective.To != nil {
			to := rec.Effective.To.String()
			dto.EffectiveTo = &to
		}
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePriceHistory appends a new open rule set for an activity,
// closing out the previous open record.
// POST /api/activities/{id}/price-history
func (h *Handler) CreatePriceHistory(w http.ResponseWriter, r *http.Request) {
	activityID := billing.ActivityID(chi.URLParam(r, "id"))

	var req CreatePriceHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rules, err := factory.BillingRulesFromJSON(req.Rules)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rules", err)
		return
	}
	from, err := billing.ParseDate(req.EffectiveFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_from (use YYYY-MM-DD)", err)
		return
	}

	rec := billing.ActivityPriceHistory{
		ActivityID: activityID,
		Rules:      rules,
		Effective:  billing.OpenInterval(from),
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.Store.InsertPriceHistory(r.Context(), rec); err != nil {
		writeDomainError(w, "Failed to insert price history", err)
		return
	}

	// Rule changes invalidate every cached charge.
	h.Attendance.Cache.InvalidateAll()

	// Rules apply from their start month onward; the current month is
	// synced too, the scheduler trails anything in between.
	h.syncAffected(r.Context(), from, billing.Today())

	w.WriteHeader(http.StatusCreated)
}

// GetStaffRules returns a staff member's rule history.
// GET /api/staff/{id}/rules
func (h *Handler) GetStaffRules(w http.ResponseWriter, r *http.Request) {
	staffID := billing.StaffID(chi.URLParam(r, "id"))

	rules, err := h.Store.StaffRules(r.Context(), staffID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load staff rules", err)
		return
	}

	dtos := make([]StaffRuleDTO, len(rules))
	for i, rule := range rules {
		dtos[i] = staffRuleToDTO(rule)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateStaffRule appends a staff rule, closing out the previous open
// record for the same (staff, scope).
// POST /api/staff/rules
func (h *Handler) CreateStaffRule(w http.ResponseWriter, r *http.Request) {
	var req factory.StaffRuleJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rule, err := factory.StaffRuleFromJSON(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid staff rule", err)
		return
	}
	if err := h.Store.InsertStaffRule(r.Context(), rule); err != nil {
		writeDomainError(w, "Failed to insert staff rule", err)
		return
	}
	h.syncAffected(r.Context(), rule.Effective.From, billing.Today())
	w.WriteHeader(http.StatusCreated)
}

// GetManualRates returns a staff member's manual rate history.
// GET /api/staff/{id}/manual-rates
func (h *Handler) GetManualRates(w http.ResponseWriter, r *http.Request) {
	staffID := billing.StaffID(chi.URLParam(r, "id"))

	rates, err := h.Store.ManualRates(r.Context(), staffID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load manual rates", err)
		return
	}

	dtos := make([]ManualRateDTO, len(rates))
	for i, rate := range rates {
		dtos[i] = manualRateToDTO(rate)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateManualRate appends a manual rate, closing out the previous open
// rate for the same (staff, scope). While a manual rate is effective the
// staff member accrues per session at its value instead of by rules.
// POST /api/staff/manual-rates
func (h *Handler) CreateManualRate(w http.ResponseWriter, r *http.Request) {
	var req ManualRateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rate, err := manualRateFromDTO(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid manual rate", err)
		return
	}
	if err := h.Store.InsertManualRate(r.Context(), rate); err != nil {
		writeDomainError(w, "Failed to insert manual rate", err)
		return
	}
	h.syncAffected(r.Context(), rate.Effective.From, billing.Today())
	w.WriteHeader(http.StatusCreated)
}

// =============================================================================
// GARDEN HANDLERS
// =============================================================================

// MarkGardenAttendance marks one controller attendance and derives its
// financial facts: the controller record itself, the base-tariff daily
// charge, and the food-refund transaction (created on absent, removed
// otherwise). Responds 204 when the charge cannot be computed.
// POST /api/garden/attendance
func (h *Handler) MarkGardenAttendance(w http.ResponseWriter, r *http.Request) {
	var req GardenAttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	at, err := billing.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	enr, err := enrollmentFromDTO(req.Enrollment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid enrollment", err)
		return
	}
	enrollments := make([]billing.Enrollment, 0, len(req.Enrollments))
	for _, dto := range req.Enrollments {
		e, err := enrollmentFromDTO(dto)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid enrollment "+dto.ID, err)
			return
		}
		enrollments = append(enrollments, e)
	}

	status := billing.Status(req.Status)
	if _, err := h.Attendance.Mark(r.Context(), enr, at, status, nil, false); err != nil {
		writeDomainError(w, "Failed to mark attendance", err)
		return
	}

	controller := garden.Activity{
		ID:   enr.ActivityID,
		Name: req.Controller.Name,
		Config: &garden.ControllerConfig{
			BaseTariffIDs: toActivityIDs(req.Controller.BaseTariffIDs),
			FoodTariffIDs: toActivityIDs(req.Controller.FoodTariffIDs),
		},
	}
	calc := &garden.Calculator{Pricing: h.pricingLookup}
	charge := calc.DailyAccrual(enr.StudentID, at, controller, enrollments, status)

	if err := garden.SyncFoodRefund(r.Context(), h.Store, enr.StudentID, at, charge); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to sync food refund", err)
		return
	}
	h.syncAffected(r.Context(), at)

	if charge == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toDailyChargeDTO(charge))
}

// GetFoodRefund returns the refund transaction for a student and date.
// GET /api/garden/refunds/{id}?date=2026-03-02
func (h *Handler) GetFoodRefund(w http.ResponseWriter, r *http.Request) {
	studentID := billing.StudentID(chi.URLParam(r, "id"))
	at, err := billing.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	amount, exists, err := h.Store.FoodRefund(r.Context(), studentID, at)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load food refund", err)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "No refund for this date", nil)
		return
	}
	writeJSON(w, http.StatusOK, FoodRefundDTO{
		StudentID: string(studentID),
		Date:      at.String(),
		Amount:    amount.String(),
	})
}

// =============================================================================
// JOURNAL HANDLERS
// =============================================================================

// SyncJournal reconciles the staff journal for a month.
// POST /api/journal/sync?year=2026&month=3
func (h *Handler) SyncJournal(w http.ResponseWriter, r *http.Request) {
	period, ok := monthParam(w, r)
	if !ok {
		return
	}

	report, err := h.syncPeriod(r.Context(), period)
	if err != nil {
		writeDomainError(w, "Journal sync failed", err)
		return
	}

	writeJSON(w, http.StatusOK, SyncReportDTO{
		Period:    period.String(),
		Upserted:  report.Upserted,
		Deleted:   report.Deleted,
		Unchanged: report.Unchanged,
		Failed:    toBatchErrors(report.Failed),
	})
}

// syncPeriod runs one reconciliation pass. Shared with the scheduler.
func (h *Handler) syncPeriod(ctx context.Context, period billing.Period) (billing.SyncReport, error) {
	records, err := h.Attendance.Records(ctx, "", period)
	if err != nil {
		return billing.SyncReport{}, err
	}
	rules, err := h.Store.AllStaffRules(ctx)
	if err != nil {
		return billing.SyncReport{}, err
	}
	manual, err := h.Store.AllManualRates(ctx)
	if err != nil {
		return billing.SyncReport{}, err
	}
	return h.Sync.SyncPeriod(ctx, records, billing.LookupWithManualOverride(rules, manual), period)
}

// syncAffected reconciles the journal for the months the given dates fall
// in. Mutations call it after committing; a failed sync is logged, not
// returned, because the scheduler retries and the mutation already stuck.
func (h *Handler) syncAffected(ctx context.Context, dates ...billing.Date) {
	seen := make(map[string]bool)
	for _, at := range dates {
		if at.IsZero() {
			continue
		}
		period := billing.MonthOf(at)
		if seen[period.String()] {
			continue
		}
		seen[period.String()] = true
		if _, err := h.syncPeriod(ctx, period); err != nil {
			log.Printf("[API] Journal sync for %s failed: %v", period, err)
		}
	}
}

// GetJournal returns the journal rows of a month.
// GET /api/journal?year=2026&month=3
func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	period, ok := monthParam(w, r)
	if !ok {
		return
	}

	entries, err := h.Store.JournalInRange(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load journal", err)
		return
	}
	writeJSON(w, http.StatusOK, journalDTOs(entries))
}

// GetStaffJournal returns every journal row of a staff member.
// GET /api/staff/{id}/journal
func (h *Handler) GetStaffJournal(w http.ResponseWriter, r *http.Request) {
	staffID := billing.StaffID(chi.URLParam(r, "id"))

	entries, err := h.Store.JournalForStaff(r.Context(), staffID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load journal", err)
		return
	}
	writeJSON(w, http.StatusOK, journalDTOs(entries))
}

// =============================================================================
// PAYOUT HANDLERS
// =============================================================================

// GetBalance returns a staff member's accrued-minus-paid balance.
// GET /api/staff/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	staffID := billing.StaffID(chi.URLParam(r, "id"))

	balance, err := billing.StaffBalance(r.Context(), h.Store, staffID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		StaffID: string(staffID),
		Balance: balance.String(),
	})
}

// GetPayouts returns a staff member's payout history.
// GET /api/staff/{id}/payouts
func (h *Handler) GetPayouts(w http.ResponseWriter, r *http.Request) {
	staffID := billing.StaffID(chi.URLParam(r, "id"))

	payouts, err := h.Store.PayoutsFor(r.Context(), staffID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load payouts", err)
		return
	}

	dtos := make([]PayoutDTO, len(payouts))
	for i, p := range payouts {
		dtos[i] = PayoutDTO{
			StaffID:    string(p.StaffID),
			Amount:     p.Amount.String(),
			PayoutDate: p.PayoutDate.String(),
			Notes:      p.Notes,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePayout records a payout for a staff member.
// POST /api/staff/{id}/payouts
func (h *Handler) CreatePayout(w http.ResponseWriter, r *http.Request) {
	staffID := billing.StaffID(chi.URLParam(r, "id"))

	var req CreatePayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	at, err := billing.ParseDate(req.PayoutDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payout_date (use YYYY-MM-DD)", err)
		return
	}

	payout := billing.StaffPayout{
		StaffID:    staffID,
		Amount:     billing.MoneyFromDecimal(amount),
		PayoutDate: at,
		Notes:      req.Notes,
	}
	if err := h.Store.InsertPayout(r.Context(), payout); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record payout", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// Health is a liveness check.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func enrollmentFromDTO(dto EnrollmentDTO) (billing.Enrollment, error) {
	enr := billing.Enrollment{
		ID:         billing.EnrollmentID(dto.ID),
		StudentID:  billing.StudentID(dto.StudentID),
		ActivityID: billing.ActivityID(dto.ActivityID),
	}
	if dto.CustomPrice != nil {
		price, err := decimal.NewFromString(*dto.CustomPrice)
		if err != nil {
			return billing.Enrollment{}, err
		}
		m := billing.MoneyFromDecimal(price)
		enr.CustomPrice = &m
	}
	if dto.DiscountPercent != "" {
		discount, err := decimal.NewFromString(dto.DiscountPercent)
		if err != nil {
			return billing.Enrollment{}, err
		}
		enr.DiscountPercent = discount
	}
	return enr, nil
}

func manualRateToDTO(rate billing.StaffManualRate) ManualRateDTO {
	dto := ManualRateDTO{
		StaffID:       string(rate.StaffID),
		Kind:          string(rate.Kind),
		Value:         rate.Value.String(),
		EffectiveFrom: rate.Effective.From.String(),
	}
	if id, ok := rate.Scope.Activity(); ok {
		s := string(id)
		dto.ActivityID = &s
	}
	if rate.Effective.To != nil {
		to := rate.Effective.To.String()
		dto.EffectiveTo = &to
	}
	return dto
}

func manualRateFromDTO(dto ManualRateDTO) (billing.StaffManualRate, error) {
	if dto.StaffID == "" {
		return billing.StaffManualRate{}, errors.New("staff_id is required")
	}
	kind := billing.ManualRateKind(dto.Kind)
	if kind != billing.ManualRateHourly && kind != billing.ManualRatePerSession {
		return billing.StaffManualRate{}, errors.New("kind must be hourly or per_session")
	}
	value, err := decimal.NewFromString(dto.Value)
	if err != nil || !value.IsPositive() {
		return billing.StaffManualRate{}, errors.New("value must be a positive decimal")
	}
	from, err := billing.ParseDate(dto.EffectiveFrom)
	if err != nil {
		return billing.StaffManualRate{}, err
	}

	rate := billing.StaffManualRate{
		StaffID:   billing.StaffID(dto.StaffID),
		Scope:     billing.GlobalScope(),
		Kind:      kind,
		Value:     billing.MoneyFromDecimal(value),
		Effective: billing.OpenInterval(from),
		CreatedAt: time.Now().UTC(),
	}
	if dto.ActivityID != nil && *dto.ActivityID != "" {
		rate.Scope = billing.ActivityScope(billing.ActivityID(*dto.ActivityID))
	}
	if dto.EffectiveTo != nil {
		to, err := billing.ParseDate(*dto.EffectiveTo)
		if err != nil {
			return billing.StaffManualRate{}, err
		}
		rate.Effective = billing.ClosedInterval(from, to)
	}
	return rate, nil
}

func toActivityIDs(ids []string) []billing.ActivityID {
	out := make([]billing.ActivityID, len(ids))
	for i, id := range ids {
		out[i] = billing.ActivityID(id)
	}
	return out
}

func staffRuleToDTO(rule billing.StaffBillingRule) StaffRuleDTO {
	dto := StaffRuleDTO{
		StaffID:               string(rule.StaffID),
		RateType:              string(rule.RateType),
		Rate:                  rule.Rate.String(),
		LessonLimit:           rule.LessonLimit,
		PenaltyTriggerPercent: rule.PenaltyTriggerPercent.String(),
		PenaltyPercent:        rule.PenaltyPercent.String(),
		ExtraLessonRate:       rule.ExtraLessonRate.String(),
		EffectiveFrom:         rule.Effective.From.String(),
	}
	if id, ok := rule.Scope.Activity(); ok {
		s := string(id)
		dto.ActivityID = &s
	}
	if rule.Effective.To != nil {
		to := rule.Effective.To.String()
		dto.EffectiveTo = &to
	}
	return dto
}

func journalDTOs(entries []billing.JournalEntry) []JournalEntryDTO {
	dtos := make([]JournalEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toJournalDTO(e)
	}
	return dtos
}

// monthParam parses ?year=&month= into an inclusive month period.
func monthParam(w http.ResponseWriter, r *http.Request) (billing.Period, bool) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return billing.Period{}, false
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "Invalid month (1-12)", err)
		return billing.Period{}, false
	}
	return billing.MonthPeriod(year, time.Month(month)), true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, billing.ErrOverlappingInterval),
		errors.Is(err, billing.ErrManualValueLocked):
		writeError(w, http.StatusConflict, message, err)
	case billing.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
