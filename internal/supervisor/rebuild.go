package supervisor

import (
	"context"
	"fmt"

	"github.com/ntfsearch/fastfind/internal/index"
	"github.com/ntfsearch/fastfind/internal/journal"
	"github.com/ntfsearch/fastfind/internal/mft"
	"github.com/ntfsearch/fastfind/internal/pathresolver"
	"github.com/ntfsearch/fastfind/internal/query"
	"github.com/ntfsearch/fastfind/internal/snapshot"
)

// rebuildWorker implements journal.Rebuilder for one volume: a full MFT
// scan into a shadow Index generation, followed by an atomic swap into the
// Query Engine, per SPEC_FULL.md §4.5 "Rebuild". The Consumer invokes this
// both for the initial cold start and whenever the journal can no longer
// be trusted incrementally.
type rebuildWorker struct {
	pipeline  *volumePipeline
	engine    *query.Engine
	metrics   metricsSink
	snapshots *snapshot.Store
	cfg       rebuildConfig
}

// rebuildConfig is the narrow slice of config.Config the worker needs,
// kept separate so this file has no compile-time dependency on the
// config package's viper/pflag machinery.
type rebuildConfig struct {
	parallelism      int
	budget           index.Budget
	warmstartEnabled bool
}

var _ journal.Rebuilder = (*rebuildWorker)(nil)

// Rebuild implements journal.Rebuilder.
func (w *rebuildWorker) Rebuild(ctx context.Context) error {
	p := w.pipeline
	w.metrics.incRebuilds(p.volume)

	preScan, err := p.source.QueryJournal(ctx)
	if err != nil {
		return fmt.Errorf("supervisor: query journal identity before rebuild: %w", err)
	}

	shadow := index.New(p.volume, w.cfg.budget, p.log)
	shadow.SetMode(index.ModeRebuilding)
	parser := p.liveParser()

	drainFromUSN := preScan.NextUSN
	if w.tryWarmStart(shadow, preScan) {
		p.log.WithField("entries", shadow.Len()).Info("rebuild: warm-started from snapshot")
		drainFromUSN = shadow.LastAppliedUSN()
	} else {
		p.log.Info("rebuild: starting full MFT scan")
		malformed, err := parser.ScanAll(ctx, w.cfg.parallelism, func(rec mft.FileRecord) {
			entry := fileEntryFromRecord(rec, shadow.Intern)
			if ierr := shadow.Insert(entry); ierr != nil {
				p.log.WithError(ierr).WithField("ref", entry.Ref.String()).Warn("rebuild: dropping entry over memory budget")
			}
		})
		if err != nil {
			return fmt.Errorf("supervisor: mft scan: %w", err)
		}
		w.metrics.observeScan(p.volume, shadow.Len(), malformed)
	}

	resolveOrphans(shadow)

	if err := w.drainSinceScanStart(ctx, shadow, parser, drainFromUSN); err != nil {
		return err
	}

	shadow.BumpGeneration()
	shadow.SetMode(index.ModeSteady)

	resolver := pathresolver.New(p.volume, p.volume, index.RootRef.Packed(), shadow, pathresolver.DefaultOptions(), p.log)
	shadow.OnPressure(resolver.DropCache)

	p.setLive(shadow, resolver)
	w.engine.Register(p.volume, shadow, resolver)

	if w.snapshots != nil && w.cfg.warmstartEnabled {
		go w.saveSnapshotBestEffort(shadow, preScan.JournalID)
	}

	p.log.WithField("entries", shadow.Len()).Info("rebuild: swap complete")
	return nil
}

// tryWarmStart populates shadow from a persisted snapshot matching the
// journal's current identity, per SPEC_FULL.md §4.9, returning false (with
// shadow left untouched) whenever no usable snapshot exists so the caller
// falls back to a full MFT scan.
func (w *rebuildWorker) tryWarmStart(shadow *index.Index, preScan journal.Identity) bool {
	if w.snapshots == nil || !w.cfg.warmstartEnabled {
		return false
	}
	snap, ok, err := w.snapshots.Load(w.pipeline.volume, preScan.JournalID)
	if err != nil {
		w.pipeline.log.WithError(err).Warn("rebuild: snapshot load failed, falling back to full scan")
		return false
	}
	if !ok {
		return false
	}
	for _, e := range snap.Entries {
		entry := index.FileEntry{
			Ref:       index.FromPacked(e.Ref),
			ParentRef: index.FromPacked(e.ParentRef),
			Name:      e.Name,
			Size:      e.Size,
			Flags:     index.Flags(e.Flags),
			MTime:     e.MTime,
			CTime:     e.CTime,
			ATime:     e.ATime,
			BTime:     e.BTime,
			ExtTag:    shadow.Intern.InternExt(e.Name),
		}
		if ierr := shadow.Insert(entry); ierr != nil {
			w.pipeline.log.WithError(ierr).Warn("rebuild: dropping warm-start entry over memory budget")
		}
	}
	shadow.SetLastAppliedUSN(snap.LastUSN)
	return true
}

// drainSinceScanStart applies journal activity that occurred while the
// scan (or warm-start load) above was running, reading from fromUSN (the
// cursor taken at rebuild start) into the shadow Index. It runs before the
// swap; Rebuild drains nothing after the swap.
func (w *rebuildWorker) drainSinceScanStart(ctx context.Context, shadow *index.Index, parser *mft.Parser, fromUSN int64) error {
	next := fromUSN
	for {
		records, nextUSN, unavailable, err := w.pipeline.source.ReadBatch(ctx, next)
		if err != nil {
			return fmt.Errorf("supervisor: draining journal after rebuild scan: %w", err)
		}
		if unavailable || len(records) == 0 {
			break
		}
		for _, r := range records {
			applyDrainedRecord(ctx, shadow, parser, r)
		}
		if nextUSN == next {
			break
		}
		next = nextUSN
	}
	shadow.SetLastAppliedUSN(next)
	return nil
}

func applyDrainedRecord(ctx context.Context, shadow *index.Index, parser *mft.Parser, r journal.Record) {
	m, ok := journal.Translate(r)
	if !ok {
		return
	}
	ref := index.FromPacked(m.Ref)
	switch m.Kind {
	case journal.MutationRemove:
		shadow.Remove(ref)
	case journal.MutationUpsert:
		rec, ok, err := parser.ParseRecord(ctx, ref.Record)
		if err != nil || !ok {
			return
		}
		_ = shadow.Update(fileEntryFromRecord(rec, shadow.Intern))
	}
}

// saveSnapshotBestEffort persists the just-built shadow index for a faster
// next cold start, per SPEC_FULL.md §4.9. Errors are logged, never
// propagated: a snapshot is an accelerant, not a correctness requirement.
func (w *rebuildWorker) saveSnapshotBestEffort(shadow *index.Index, journalID uint64) {
	refs := shadow.AllRefs()
	entries := make([]snapshot.Entry, 0, len(refs))
	for _, ref := range refs {
		e, ok := shadow.Get(ref)
		if !ok {
			continue
		}
		entries = append(entries, snapshot.Entry{
			Ref:       e.Ref.Packed(),
			ParentRef: e.ParentRef.Packed(),
			Name:      e.Name,
			Size:      e.Size,
			Flags:     uint16(e.Flags),
			MTime:     e.MTime,
			CTime:     e.CTime,
			ATime:     e.ATime,
			BTime:     e.BTime,
		})
	}
	if err := w.snapshots.Save(w.pipeline.volume, journalID, shadow.Generation(), shadow.LastAppliedUSN(), entries); err != nil {
		w.pipeline.log.WithError(err).Warn("rebuild: best-effort snapshot save failed")
	}
}

// resolveOrphans walks every entry in a freshly built shadow index and
// clears/sets FlagOrphan by whether its parent is actually present,
// satisfying invariant 6 in SPEC_FULL.md §8 ("after any rebuild swap,
// orphans == 0 in the new generation") for any volume whose filesystem
// is itself internally consistent; a genuine dangling parent (filesystem
// corruption, outside this service's scope) is kept with FlagOrphan set,
// not dropped.
func resolveOrphans(shadow *index.Index) {
	for _, ref := range shadow.AllRefs() {
		e, ok := shadow.Get(ref)
		if !ok || ref == index.RootRef {
			continue
		}
		parent, found := shadow.Get(e.ParentRef)
		wasOrphan := e.Flags.Has(index.FlagOrphan)
		isOrphan := !found || !parent.Flags.Has(index.FlagDirectory)
		if isOrphan == wasOrphan {
			continue
		}
		if isOrphan {
			e.Flags |= index.FlagOrphan
		} else {
			e.Flags &^= index.FlagOrphan
		}
		_ = shadow.Update(e)
	}
}
