package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kita/billing-engine/store/sqlite"
)

func newTestScheduler(t *testing.T) *SyncScheduler {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	scheduler := NewSyncScheduler(NewHandler(store))
	scheduler.CheckInterval = time.Hour
	return scheduler
}

func TestSyncScheduler_StopIsIdempotent(t *testing.T) {
	scheduler := newTestScheduler(t)
	scheduler.Start()

	scheduler.Stop()
	assert.NotPanics(t, func() { scheduler.Stop() })
}

func TestSyncScheduler_StopWithoutStart(t *testing.T) {
	scheduler := newTestScheduler(t)
	assert.NotPanics(t, func() { scheduler.Stop() })
}

func TestSyncScheduler_DisabledDoesNotStart(t *testing.T) {
	scheduler := newTestScheduler(t)
	scheduler.Enabled = false

	scheduler.Start()
	assert.NotPanics(t, func() { scheduler.Stop() })
}
