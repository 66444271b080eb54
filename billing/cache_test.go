package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kita/billing-engine/billing"
)

func TestCache_MergeOverlaysPendingWrites(t *testing.T) {
	// GIVEN: A store read with e-1 sick, and a pending cached change to
	//        present plus a brand-new cached mark for e-2
	// WHEN: Merging
	// THEN: e-1 reflects the cache, e-2 appears, the input is not mutated

	cache := billing.NewAttendanceCache()

	updated := present("e-1", "act-1", march(2))
	cache.Set(updated)
	cache.Set(present("e-2", "act-1", march(2)))

	storedRec := present("e-1", "act-1", march(2))
	storedRec.Status = billing.StatusSick
	stored := []billing.AttendanceRecord{storedRec}

	merged := cache.Merge(stored)

	require.Len(t, merged, 2)
	byID := make(map[billing.EnrollmentID]billing.AttendanceRecord)
	for _, rec := range merged {
		byID[rec.EnrollmentID] = rec
	}
	assert.Equal(t, billing.StatusPresent, byID["e-1"].Status)
	assert.Equal(t, billing.StatusPresent, byID["e-2"].Status)

	assert.Equal(t, billing.StatusSick, stored[0].Status, "input slice unchanged")
}

func TestCache_MergeDropsEmptyCachedRecords(t *testing.T) {
	// An empty cached record marks a pending delete: the stored row must
	// not reappear in the merged view.
	cache := billing.NewAttendanceCache()

	deleted := billing.AttendanceRecord{
		EnrollmentID: "e-1",
		ActivityID:   "act-1",
		Date:         march(2),
	}
	cache.Set(deleted)

	merged := cache.Merge([]billing.AttendanceRecord{present("e-1", "act-1", march(2))})
	assert.Empty(t, merged)
}

func TestCache_InvalidateScopes(t *testing.T) {
	cache := billing.NewAttendanceCache()
	cache.Set(present("e-1", "act-1", march(2)))
	cache.Set(present("e-1", "act-1", march(3)))

	cache.Invalidate("e-1", march(2))
	_, ok := cache.Get("e-1", march(2))
	assert.False(t, ok)
	_, ok = cache.Get("e-1", march(3))
	assert.True(t, ok)

	cache.InvalidateAll()
	_, ok = cache.Get("e-1", march(3))
	assert.False(t, ok)
}
