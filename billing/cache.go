package billing

import "sync"

// =============================================================================
// ATTENDANCE CACHE - Optimistic in-memory view of attendance
// =============================================================================

// AttendanceCache holds the just-written attendance values so accrual
// computations reflect pending writes without waiting for a re-read.
// It is an explicit cache object with get/set/invalidate, decoupled from
// any render or request cycle.
type AttendanceCache struct {
	mu      sync.RWMutex
	records map[attendanceKey]AttendanceRecord
}

type attendanceKey struct {
	EnrollmentID EnrollmentID
	Date         string
}

func NewAttendanceCache() *AttendanceCache {
	return &AttendanceCache{records: make(map[attendanceKey]AttendanceRecord)}
}

func (c *AttendanceCache) Get(enrollmentID EnrollmentID, at Date) (AttendanceRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[attendanceKey{EnrollmentID: enrollmentID, Date: at.String()}]
	return rec, ok
}

func (c *AttendanceCache) Set(rec AttendanceRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[attendanceKey{EnrollmentID: rec.EnrollmentID, Date: rec.Date.String()}] = rec
}

func (c *AttendanceCache) Invalidate(enrollmentID EnrollmentID, at Date) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, attendanceKey{EnrollmentID: enrollmentID, Date: at.String()})
}

func (c *AttendanceCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = make(map[attendanceKey]AttendanceRecord)
}

// Merge overlays cached records on top of a freshly read slice: cached
// entries replace their stored counterparts, and cached entries with no
// stored counterpart are appended. The input slice is not modified.
func (c *AttendanceCache) Merge(stored []AttendanceRecord) []AttendanceRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	merged := make([]AttendanceRecord, 0, len(stored))
	seen := make(map[attendanceKey]bool, len(stored))

	for _, rec := range stored {
		k := attendanceKey{EnrollmentID: rec.EnrollmentID, Date: rec.Date.String()}
		seen[k] = true
		if cached, ok := c.records[k]; ok {
			if !cached.Empty() {
				merged = append(merged, cached)
			}
			continue
		}
		merged = append(merged, rec)
	}

	for k, cached := range c.records {
		if !seen[k] && !cached.Empty() {
			merged = append(merged, cached)
		}
	}
	return merged
}
