package sync

import (
	"testing"
	"time"
)

func TestPlanBatches(t *testing.T) {
	cfg := BatchConfiguration{MaxRecordsPerBatch: 50, BatchDelay: 500 * time.Millisecond}

	tests := []struct {
		name        string
		recordCount int
		want        int
	}{
		{"zero records still one batch", 0, 1},
		{"single record", 1, 1},
		{"exactly one batch", 50, 1},
		{"one over", 51, 2},
		{"partial final batch", 125, 3},
		{"exact multiple", 150, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanBatches(tt.recordCount, cfg)
			if plan.TotalBatches != tt.want {
				t.Errorf("PlanBatches(%d) = %d batches, want %d",
					tt.recordCount, plan.TotalBatches, tt.want)
			}
			if plan.BatchDelay != cfg.BatchDelay {
				t.Errorf("plan delay = %v, want %v", plan.BatchDelay, cfg.BatchDelay)
			}
		})
	}
}

func TestPlanBatchesDegenerateBatchSize(t *testing.T) {
	// A non-positive max is clamped to 1 rather than dividing by zero.
	plan := PlanBatches(3, BatchConfiguration{MaxRecordsPerBatch: 0})
	if plan.TotalBatches != 3 {
		t.Errorf("expected 3 single-record batches, got %d", plan.TotalBatches)
	}
}
