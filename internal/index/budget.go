package index

// Budget describes the memory ceiling an Index enforces, per
// SPEC_FULL.md §4.4. HighWaterFraction is the fraction of Bytes at which
// eviction begins; both are fixed at construction time — there is no
// dynamic reload.
type Budget struct {
	Bytes             uint64
	HighWaterFraction float64
}

// DefaultBudget mirrors the spec's default: min(25% of physical RAM, 1 GiB).
// It returns the 1 GiB cap alone; the physical-RAM sizing is done in
// internal/config.
func DefaultBudget() Budget {
	return Budget{Bytes: 1 << 30, HighWaterFraction: 0.95}
}

func (b Budget) highWaterMark() uint64 {
	return uint64(float64(b.Bytes) * b.HighWaterFraction)
}
