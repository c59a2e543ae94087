package sync

// Progress reports incremental completion of a batched sync pass.
// Values are immutable once emitted; callbacks receive a copy.
type Progress struct {
	CompletedBatches int
	TotalBatches     int
	IsCompleted      bool
}

// Fraction returns completion as a value in [0, 1].
func (p Progress) Fraction() float64 {
	if p.TotalBatches <= 0 {
		return 0
	}
	return float64(p.CompletedBatches) / float64(p.TotalBatches)
}
