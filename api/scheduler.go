/*
scheduler.go - Automated journal reconciliation scheduler

PURPOSE:
  Periodically reconciles the staff journal for the current month so the
  derived table tracks attendance edits without anyone pressing the sync
  button.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick reconciles the current calendar month
  - Near the start of a month the previous month is reconciled too,
    catching edits made after the month rolled over
  - The synchronizer is idempotent, so redundant runs are cheap no-ops

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewSyncScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: SyncJournal endpoint (manual reconciliation)
  - billing/journal.go: Synchronizer
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/kita/billing-engine/billing"
)

// trailingSyncDays is how far into a month the previous month keeps
// being reconciled alongside the current one.
const trailingSyncDays = 5

// SyncScheduler reconciles the journal on a timer.
type SyncScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker  *time.Ticker
	stop    chan bool
	stopped bool
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// NewSyncScheduler creates a new scheduler.
func NewSyncScheduler(handler *Handler) *SyncScheduler {
	return &SyncScheduler{
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ss *SyncScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Scheduler] Started with check interval: %v", ss.CheckInterval)
}

// Stop stops the scheduler. Safe to call more than once.
func (ss *SyncScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker == nil || ss.stopped {
		return
	}
	ss.stopped = true
	ss.ticker.Stop()
	close(ss.stop)
	ss.wg.Wait()
	log.Println("[Scheduler] Stopped")
}

func (ss *SyncScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.syncDue()

	for {
		select {
		case <-ss.ticker.C:
			ss.syncDue()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SyncScheduler) syncDue() {
	today := billing.Today()

	periods := []billing.Period{billing.MonthOf(today)}
	if today.Day() <= trailingSyncDays {
		periods = append(periods, billing.MonthOf(today.AddMonths(-1)))
	}

	for _, period := range periods {
		ss.syncPeriod(period)
	}
}

func (ss *SyncScheduler) syncPeriod(period billing.Period) {
	ctx := context.Background()

	report, err := ss.Handler.syncPeriod(ctx, period)
	if err != nil {
		log.Printf("[Scheduler] Sync %s failed: %v", period, err)
		return
	}
	if report.Upserted > 0 || report.Deleted > 0 || len(report.Failed) > 0 {
		log.Printf("[Scheduler] Synced %s: %d upserted, %d deleted, %d unchanged, %d failed",
			period, report.Upserted, report.Deleted, report.Unchanged, len(report.Failed))
	}
}

// RunNow triggers an immediate reconciliation (for testing/admin).
func (ss *SyncScheduler) RunNow() {
	ss.syncDue()
}
