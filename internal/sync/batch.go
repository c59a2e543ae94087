package sync

import "time"

// BatchConfiguration bounds how many records are pushed per remote call
// and how long to pause between batches.
type BatchConfiguration struct {
	// MaxRecordsPerBatch limits the batch size to respect remote
	// payload limits.
	MaxRecordsPerBatch int

	// BatchDelay is a fixed pause inserted between batches to respect
	// remote rate limits. It is not retried or backed off.
	BatchDelay time.Duration
}

// BatchPlan describes how a set of pending records is partitioned.
type BatchPlan struct {
	TotalBatches int
	BatchDelay   time.Duration
}

// PlanBatches computes the number of batches for recordCount records.
//
// totalBatches is ceil(recordCount / maxPerBatch) with a minimum of 1:
// a no-op sync still reports one batch of nothing, which keeps the
// progress-completion semantics uniform for callers.
func PlanBatches(recordCount int, cfg BatchConfiguration) BatchPlan {
	maxPerBatch := cfg.MaxRecordsPerBatch
	if maxPerBatch < 1 {
		maxPerBatch = 1
	}

	total := (recordCount + maxPerBatch - 1) / maxPerBatch
	if total < 1 {
		total = 1
	}

	return BatchPlan{
		TotalBatches: total,
		BatchDelay:   cfg.BatchDelay,
	}
}
