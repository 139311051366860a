package index

import "context"

// ScanBudget bounds a full scan, matching SPEC_FULL.md §4.6 step 3: a scan
// stops at whichever of Matches or the context deadline is hit first.
type ScanBudget struct {
	// Matches caps the number of entries passed to Visit's consumer
	// before the scan stops, mirroring a request's max_results.
	Matches int
}

// ScanResult reports how a single Scan pass terminated.
type ScanResult struct {
	Truncated bool
}

// Predicate reports whether e matches a compiled query. It must not block.
type Predicate func(e FileEntry) bool

// Scan iterates every live entry on idx, calling visit for each that
// satisfies pred, until budget.Matches have been visited, ctx is done,
// visit returns false, or the scan completes.
//
// Scan has no notion of a rebuild swap: a swap replaces the *Index a
// pipeline hands out (see volumePipeline.setLive in internal/supervisor),
// it never mutates an in-flight scan's own Index object in place, so
// there is nothing for this method to observe about itself mid-scan.
// Detecting "the index I'm scanning is stale" and restarting once
// against the newer generation, per SPEC_FULL.md §4.6/§5, is
// query.Engine's job: it holds the registry of which *Index is
// currently live per volume and can check that from the visit callback
// it passes in here, stopping this pass early by returning false.
func (idx *Index) Scan(ctx context.Context, pred Predicate, budget ScanBudget, visit func(FileEntry) bool) ScanResult {
	if budget.Matches == 0 {
		return ScanResult{}
	}

	matched := 0
	for _, sh := range idx.shards {
		sh.mu.RLock()
		entries := make([]FileEntry, 0, len(sh.m))
		for _, e := range sh.m {
			entries = append(entries, e)
		}
		sh.mu.RUnlock()

		for _, e := range entries {
			select {
			case <-ctx.Done():
				return ScanResult{Truncated: true}
			default:
			}
			if !pred(e) {
				continue
			}
			if !visit(e) {
				return ScanResult{Truncated: true}
			}
			matched++
			if matched >= budget.Matches {
				return ScanResult{Truncated: true}
			}
		}
	}
	return ScanResult{}
}
