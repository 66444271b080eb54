package billing_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kita/billing-engine/billing"
)

func TestRunBatches_CollectsAllOutcomes(t *testing.T) {
	// GIVEN: 25 ops of which every fifth fails
	// WHEN: Running with the default batch size
	// THEN: Every op ran; failures are reported per key, successes too

	var ops []billing.BatchOp
	for i := 0; i < 25; i++ {
		i := i
		ops = append(ops, billing.BatchOp{
			Key: fmt.Sprintf("op-%d", i),
			Do: func(context.Context) error {
				if i%5 == 0 {
					return errors.New("boom")
				}
				return nil
			},
		})
	}

	report := billing.RunBatches(context.Background(), 0, ops)

	assert.Len(t, report.Succeeded, 20)
	assert.Len(t, report.Failed, 5)
	assert.False(t, report.AllOK())

	for _, f := range report.Failed {
		assert.Contains(t, []string{"op-0", "op-5", "op-10", "op-15", "op-20"}, f.Key)
	}
}

func TestRunBatches_FailureDoesNotBlockLaterChunks(t *testing.T) {
	// A failing op in chunk one must not stop chunk two from running.
	var ran atomic.Int32
	ops := []billing.BatchOp{
		{Key: "a", Do: func(context.Context) error { ran.Add(1); return errors.New("boom") }},
		{Key: "b", Do: func(context.Context) error { ran.Add(1); return nil }},
		{Key: "c", Do: func(context.Context) error { ran.Add(1); return nil }},
	}

	report := billing.RunBatches(context.Background(), 2, ops)

	assert.Equal(t, int32(3), ran.Load(), "every op runs to completion")
	assert.Len(t, report.Failed, 1)
	assert.Len(t, report.Succeeded, 2)
}

func TestRunBatches_BoundsConcurrency(t *testing.T) {
	// GIVEN: Batch size 3 and ops that track simultaneous execution
	// WHEN: Running 10 ops
	// THEN: No more than 3 ever run at once

	var mu sync.Mutex
	running, peak := 0, 0

	var ops []billing.BatchOp
	for i := 0; i < 10; i++ {
		ops = append(ops, billing.BatchOp{
			Key: fmt.Sprintf("op-%d", i),
			Do: func(context.Context) error {
				mu.Lock()
				running++
				if running > peak {
					peak = running
				}
				mu.Unlock()

				mu.Lock()
				running--
				mu.Unlock()
				return nil
			},
		})
	}

	report := billing.RunBatches(context.Background(), 3, ops)

	require.True(t, report.AllOK())
	assert.LessOrEqual(t, peak, 3)
}

func TestRunBatches_Empty(t *testing.T) {
	report := billing.RunBatches(context.Background(), 10, nil)
	assert.True(t, report.AllOK())
	assert.Empty(t, report.Succeeded)
}
