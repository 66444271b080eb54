// Package store provides billing.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/kita/billing-engine/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	priceHistory map[billing.ActivityID][]billing.ActivityPriceHistory
	staffRules   []billing.StaffBillingRule
	manualRates  map[billing.StaffID][]billing.StaffManualRate
	attendance   map[attendanceKey]billing.AttendanceRecord
	journal      map[billing.JournalKey]billing.JournalEntry
	deductions   map[billing.StaffID][]billing.Deduction
	payouts      map[billing.StaffID][]billing.StaffPayout
	foodRefunds  map[refundKey]billing.Money
}

type attendanceKey struct {
	EnrollmentID billing.EnrollmentID
	Date         string
}

type refundKey struct {
	StudentID billing.StudentID
	Date      string
}

func NewMemory() *Memory {
	return &Memory{
		priceHistory: make(map[billing.ActivityID][]billing.ActivityPriceHistory),
		manualRates:  make(map[billing.StaffID][]billing.StaffManualRate),
		attendance:   make(map[attendanceKey]billing.AttendanceRecord),
		journal:      make(map[billing.JournalKey]billing.JournalEntry),
		deductions:   make(map[billing.StaffID][]billing.Deduction),
		payouts:      make(map[billing.StaffID][]billing.StaffPayout),
		foodRefunds:  make(map[refundKey]billing.Money),
	}
}

var _ billing.Store = (*Memory)(nil)

// -----------------------------------------------------------------------------
// RuleStore
// -----------------------------------------------------------------------------

func (m *Memory) PriceHistory(_ context.Context, activityID billing.ActivityID) ([]billing.ActivityPriceHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]billing.ActivityPriceHistory, len(m.priceHistory[activityID]))
	copy(result, m.priceHistory[activityID])
	return result, nil
}

// InsertPriceHistory closes the prior open record and appends the new one.
// Both steps happen under one lock, mirroring the single-transaction
// close-out protocol of the SQLite store.
func (m *Memory) InsertPriceHistory(_ context.Context, rec billing.ActivityPriceHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := m.priceHistory[rec.ActivityID]
	for i := range records {
		if !records[i].Effective.IsOpen() {
			continue
		}
		if !rec.Effective.From.After(records[i].Effective.From) {
			return &billing.OverlapError{Owner: string(rec.ActivityID), Interval: rec.Effective}
		}
		closeAt := rec.Effective.From
		records[i].Effective.To = &closeAt
	}
	m.priceHistory[rec.ActivityID] = append(records, rec)
	return nil
}

func (m *Memory) StaffRules(_ context.Context, staffID billing.StaffID) ([]billing.StaffBillingRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []billing.StaffBillingRule
	for _, r := range m.staffRules {
		if r.StaffID == staffID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *Memory) AllStaffRules(_ context.Context) ([]billing.StaffBillingRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]billing.StaffBillingRule, len(m.staffRules))
	copy(result, m.staffRules)
	return result, nil
}

func (m *Memory) InsertStaffRule(_ context.Context, rule billing.StaffBillingRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.staffRules {
		prev := &m.staffRules[i]
		if prev.StaffID != rule.StaffID || prev.Scope != rule.Scope || !prev.Effective.IsOpen() {
			continue
		}
		if !rule.Effective.From.After(prev.Effective.From) {
			return &billing.OverlapError{Owner: string(rule.StaffID), Interval: rule.Effective}
		}
		closeAt := rule.Effective.From
		prev.Effective.To = &closeAt
	}
	m.staffRules = append(m.staffRules, rule)
	return nil
}

func (m *Memory) ManualRates(_ context.Context, staffID billing.StaffID) ([]billing.StaffManualRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]billing.StaffManualRate, len(m.manualRates[staffID]))
	copy(result, m.manualRates[staffID])
	return result, nil
}

func (m *Memory) AllManualRates(_ context.Context) ([]billing.StaffManualRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []billing.StaffManualRate
	for _, rates := range m.manualRates {
		result = append(result, rates...)
	}
	return result, nil
}

func (m *Memory) InsertManualRate(_ context.Context, rate billing.StaffManualRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rates := m.manualRates[rate.StaffID]
	for i := range rates {
		if rates[i].Scope != rate.Scope || !rates[i].Effective.IsOpen() {
			continue
		}
		if !rate.Effective.From.After(rates[i].Effective.From) {
			return &billing.OverlapError{Owner: string(rate.StaffID), Interval: rate.Effective}
		}
		closeAt := rate.Effective.From
		rates[i].Effective.To = &closeAt
	}
	m.manualRates[rate.StaffID] = append(rates, rate)
	return nil
}

// AddManualRate seeds a manual rate record (test/dev helper).
func (m *Memory) AddManualRate(rate billing.StaffManualRate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manualRates[rate.StaffID] = append(m.manualRates[rate.StaffID], rate)
}

// -----------------------------------------------------------------------------
// AttendanceStore
// -----------------------------------------------------------------------------

func (m *Memory) AttendanceInRange(_ context.Context, activityID billing.ActivityID, period billing.Period) ([]billing.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []billing.AttendanceRecord
	for _, rec := range m.attendance {
		if activityID != "" && rec.ActivityID != activityID {
			continue
		}
		if !period.Contains(rec.Date) {
			continue
		}
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].EnrollmentID < result[j].EnrollmentID
	})
	return result, nil
}

func (m *Memory) UpsertAttendance(_ context.Context, rec billing.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attendance[attendanceKey{EnrollmentID: rec.EnrollmentID, Date: rec.Date.String()}] = rec
	return nil
}

func (m *Memory) DeleteAttendance(_ context.Context, enrollmentID billing.EnrollmentID, at billing.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attendance, attendanceKey{EnrollmentID: enrollmentID, Date: at.String()})
	return nil
}

// -----------------------------------------------------------------------------
// JournalStore
// -----------------------------------------------------------------------------

func (m *Memory) JournalInRange(_ context.Context, period billing.Period) ([]billing.JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []billing.JournalEntry
	for _, e := range m.journal {
		if period.Contains(e.Date) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].StaffID < result[j].StaffID
	})
	return result, nil
}

func (m *Memory) JournalForStaff(_ context.Context, staffID billing.StaffID) ([]billing.JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []billing.JournalEntry
	for _, e := range m.journal {
		if e.StaffID == staffID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (m *Memory) UpsertJournal(_ context.Context, entry billing.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal[entry.Key()] = entry
	return nil
}

func (m *Memory) DeleteJournal(_ context.Context, key billing.JournalKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.journal, key)
	return nil
}

// -----------------------------------------------------------------------------
// DeductionStore / PayoutStore
// -----------------------------------------------------------------------------

func (m *Memory) DeductionsFor(_ context.Context, staffID billing.StaffID) ([]billing.Deduction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]billing.Deduction, len(m.deductions[staffID]))
	copy(result, m.deductions[staffID])
	return result, nil
}

// SetDeductions replaces a staff member's ordered deduction chain.
func (m *Memory) SetDeductions(staffID billing.StaffID, chain []billing.Deduction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deductions[staffID] = chain
}

func (m *Memory) PayoutsFor(_ context.Context, staffID billing.StaffID) ([]billing.StaffPayout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]billing.StaffPayout, len(m.payouts[staffID]))
	copy(result, m.payouts[staffID])
	return result, nil
}

func (m *Memory) InsertPayout(_ context.Context, payout billing.StaffPayout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payouts[payout.StaffID] = append(m.payouts[payout.StaffID], payout)
	return nil
}

// -----------------------------------------------------------------------------
// Food refunds (garden.RefundStore)
// -----------------------------------------------------------------------------

func (m *Memory) FoodRefund(_ context.Context, studentID billing.StudentID, at billing.Date) (billing.Money, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	amount, ok := m.foodRefunds[refundKey{StudentID: studentID, Date: at.String()}]
	return amount, ok, nil
}

func (m *Memory) UpsertFoodRefund(_ context.Context, studentID billing.StudentID, at billing.Date, amount billing.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.foodRefunds[refundKey{StudentID: studentID, Date: at.String()}] = amount
	return nil
}

func (m *Memory) DeleteFoodRefund(_ context.Context, studentID billing.StudentID, at billing.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.foodRefunds, refundKey{StudentID: studentID, Date: at.String()})
	return nil
}
