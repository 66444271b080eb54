package billing

import (
	"context"
	"sync"
)

// =============================================================================
// TOLERANT BATCH JOIN - Collect all outcomes, never fail fast
// =============================================================================

// BatchOp is one independent storage operation in a bulk run.
type BatchOp struct {
	Key string
	Do  func(ctx context.Context) error
}

// BatchFailure pairs a failed operation key with its error.
type BatchFailure struct {
	Key string
	Err error
}

// BatchReport partitions a bulk run into succeeded and failed operations.
// Partial failure is not an error: one failing row must not block the rest.
type BatchReport struct {
	Succeeded []string
	Failed    []BatchFailure
}

func (r BatchReport) AllOK() bool { return len(r.Failed) == 0 }

// DefaultBatchSize bounds concurrent write load against the backing store.
const DefaultBatchSize = 10

// RunBatches executes ops in fixed-size chunks: full concurrency within a
// chunk, chunks run sequentially. Every op runs to completion regardless
// of other ops failing - the join collects all outcomes instead of
// cancelling on the first error.
func RunBatches(ctx context.Context, size int, ops []BatchOp) BatchReport {
	if size <= 0 {
		size = DefaultBatchSize
	}

	var report BatchReport
	for start := 0; start < len(ops); start += size {
		end := start + size
		if end > len(ops) {
			end = len(ops)
		}
		chunk := ops[start:end]

		outcomes := make([]error, len(chunk))
		var wg sync.WaitGroup
		for i, op := range chunk {
			wg.Add(1)
			go func(i int, op BatchOp) {
				defer wg.Done()
				outcomes[i] = op.Do(ctx)
			}(i, op)
		}
		wg.Wait()

		for i, err := range outcomes {
			if err != nil {
				report.Failed = append(report.Failed, BatchFailure{Key: chunk[i].Key, Err: err})
			} else {
				report.Succeeded = append(report.Succeeded, chunk[i].Key)
			}
		}
	}
	return report
}
