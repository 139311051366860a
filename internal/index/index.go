// Package index holds the in-memory, memory-bounded store of NTFS file
// entries for one volume: the primary FileRef -> FileEntry map, the
// extension and trigram secondary indexes, and the generation/epoch
// bookkeeping the rebuild-swap protocol depends on.
package index

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ntfsearch/fastfind/internal/apperrors"
)

// errOutOfBudget is returned by Insert when a net-new entry would push the
// index past its high-water mark; see apperrors.ErrOutOfBudget.
var errOutOfBudget = apperrors.ErrOutOfBudget

// Mode is the writer-selection state machine described in SPEC_FULL.md §5:
// exactly one of the Journal Consumer or the rebuild worker may mutate an
// Index at a time.
type Mode int32

const (
	ModeSteady Mode = iota
	ModeRebuilding
	ModeSwapping
)

// PressureHook is called when the Index crosses its high-water mark, so
// collaborators outside this package (the path resolver's cache, notably)
// can drop their own memory without the Index needing to know their
// concrete type. Registered once at construction by the Supervisor.
type PressureHook func()

// Index is the per-volume store described in SPEC_FULL.md §3/§4.4.
type Index struct {
	Volume string
	log    *logrus.Entry

	shards [shardCount]*shard
	ext    *extIndex
	tri    *trigramIndex
	Intern *Interner

	budget      Budget
	memoryBytes atomic.Uint64
	trigramDone atomic.Bool // true once the trigram index has been dropped under pressure

	lastAppliedUSN atomic.Int64
	generation     atomic.Uint64
	orphans        atomic.Int64
	entryCount     atomic.Int64

	mode atomic.Int32

	pressureMu sync.Mutex
	onPressure []PressureHook
}

// New constructs an empty Index for one volume.
func New(volume string, budget Budget, log *logrus.Entry) *Index {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	idx := &Index{
		Volume: volume,
		log:    log.WithField("volume", volume).WithField("component", "index"),
		shards: newShards(),
		ext:    newExtIndex(),
		tri:    newTrigramIndex(),
		Intern: NewInterner(),
		budget: budget,
	}
	return idx
}

// OnPressure registers a callback invoked whenever a mutation leaves the
// Index over its high-water mark after the trigram index has been dropped
// (again on each later such mutation), so callers outside this package
// (e.g. the path resolver) can release their own caches. See SPEC_FULL.md
// §4.4 eviction order: trigram index first, then these hooks, then refuse.
func (idx *Index) OnPressure(hook PressureHook) {
	idx.pressureMu.Lock()
	defer idx.pressureMu.Unlock()
	idx.onPressure = append(idx.onPressure, hook)
}

// Mode returns the current writer-selection state.
func (idx *Index) Mode() Mode { return Mode(idx.mode.Load()) }

// SetMode transitions the writer-selection state machine. Callers
// (Journal Consumer, rebuild worker) are responsible for only calling this
// from the single active writer.
func (idx *Index) SetMode(m Mode) { idx.mode.Store(int32(m)) }

// Generation returns the current index generation, bumped by BumpGeneration
// on every rebuild swap.
func (idx *Index) Generation() uint64 { return idx.generation.Load() }

// BumpGeneration increments the generation counter and returns the new
// value. Called exactly once per rebuild swap.
func (idx *Index) BumpGeneration() uint64 { return idx.generation.Add(1) }

// LastAppliedUSN returns the USN of the most recently committed journal
// batch (invariant 5, SPEC_FULL.md §8).
func (idx *Index) LastAppliedUSN() int64 { return idx.lastAppliedUSN.Load() }

// SetLastAppliedUSN records the USN of a just-committed journal batch.
func (idx *Index) SetLastAppliedUSN(usn int64) { idx.lastAppliedUSN.Store(usn) }

// MemoryBytes reports the tracked memory estimate across the primary map,
// secondary indexes, and interner.
func (idx *Index) MemoryBytes() uint64 {
	return idx.memoryBytes.Load() + idx.ext.memoryBytes() + idx.Intern.MemoryBytes()
}

// Orphans reports the count of entries currently marked FlagOrphan.
func (idx *Index) Orphans() int64 { return idx.orphans.Load() }

// Len reports the number of live entries.
func (idx *Index) Len() int64 { return idx.entryCount.Load() }

// Insert adds a new entry, or behaves like Update if the ref already
// exists. Returns ErrOutOfBudget if the index is over its high-water mark
// and this would be a net-new entry; existing-entry updates and removals
// always proceed regardless of budget (SPEC_FULL.md §4.4).
func (idx *Index) Insert(e FileEntry) error {
	return idx.upsert(e, true)
}

// Update mutates an existing entry's fields in place, inserting it if it
// doesn't exist yet (the journal consumer may see an update before the
// corresponding create, e.g. after a rebuild races a live rename).
func (idx *Index) Update(e FileEntry) error {
	return idx.upsert(e, false)
}

func (idx *Index) upsert(e FileEntry, isNetNewCheck bool) error {
	sh := shardFor(idx.shards, e.Ref)

	sh.mu.Lock()
	old, existed := sh.m[e.Ref]
	if !existed && isNetNewCheck && idx.overBudget() {
		sh.mu.Unlock()
		return errOutOfBudget
	}
	sh.m[e.Ref] = e
	sh.mu.Unlock()

	if existed {
		idx.memoryBytes.Add(e.approxMemory() - old.approxMemory())
		if old.ExtTag != e.ExtTag {
			idx.ext.remove(old.ExtTag, e.Ref)
			idx.ext.add(e.ExtTag, e.Ref)
		}
		if idx.tri.isEnabled() && old.Name != e.Name {
			idx.tri.remove(e.Ref, old.Name)
			idx.tri.add(e.Ref, e.Name)
		}
	} else {
		idx.memoryBytes.Add(e.approxMemory())
		idx.entryCount.Add(1)
		idx.ext.add(e.ExtTag, e.Ref)
		if idx.tri.isEnabled() {
			idx.tri.add(e.Ref, e.Name)
		}
	}

	if e.Flags.Has(FlagOrphan) && !old.Flags.Has(FlagOrphan) {
		idx.orphans.Add(1)
	} else if !e.Flags.Has(FlagOrphan) && existed && old.Flags.Has(FlagOrphan) {
		idx.orphans.Add(-1)
	}

	idx.maybeEvict()
	return nil
}

// Remove deletes ref. Deletions always proceed regardless of budget.
func (idx *Index) Remove(ref FileRef) {
	sh := shardFor(idx.shards, ref)
	sh.mu.Lock()
	old, existed := sh.m[ref]
	if existed {
		delete(sh.m, ref)
	}
	sh.mu.Unlock()
	if !existed {
		return
	}
	idx.memoryBytes.Add(^(old.approxMemory() - 1)) // subtract, saturating at 0 is not needed: monotonic accounting
	idx.entryCount.Add(-1)
	idx.ext.remove(old.ExtTag, ref)
	if idx.tri.isEnabled() {
		idx.tri.remove(ref, old.Name)
	}
	if old.Flags.Has(FlagOrphan) {
		idx.orphans.Add(-1)
	}
}

// Get returns the entry for ref, if live.
func (idx *Index) Get(ref FileRef) (FileEntry, bool) {
	sh := shardFor(idx.shards, ref)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.m[ref]
	return e, ok
}

// IterByExtension returns a stable-ordered snapshot of refs tagged with
// ext, satisfying invariant 4 in SPEC_FULL.md §8.
func (idx *Index) IterByExtension(extTag uint32) []FileRef {
	return idx.ext.iter(extTag)
}

// ExtTag looks up the interned tag for a lower-cased extension, without
// side effects, so the query engine can tell whether any entry carries it
// before committing to the extension fast path.
func (idx *Index) ExtTag(ext string) (uint32, bool) {
	return idx.Intern.LookupID(ext)
}

// VolumeName returns the volume this Index belongs to, matching the
// query.VolumeIndex seam.
func (idx *Index) VolumeName() string { return idx.Volume }

// NameAndParent returns ref's name and packed parent ref, satisfying
// pathresolver.EntryLookup.
func (idx *Index) NameAndParent(ref uint64) (name string, parentRef uint64, ok bool) {
	e, found := idx.Get(FromPacked(ref))
	if !found {
		return "", 0, false
	}
	return e.Name, e.ParentRef.Packed(), true
}

// TrigramCandidates narrows a substring search to refs that plausibly
// contain it, or reports ok=false when the trigram index can't help
// (disabled, or pattern too short), in which case the caller must fall
// back to a full Scan.
func (idx *Index) TrigramCandidates(substr string) (refs []FileRef, ok bool) {
	return idx.tri.candidates(substr)
}

// AllRefs returns a snapshot of every live FileRef, for callers (the Query
// Engine's full-scan path) that need to iterate the whole primary map.
// The snapshot reflects a point-in-time view composited shard by shard; it
// is not a single atomic view of the whole index, matching the "internally
// consistent per-entry" guarantee in SPEC_FULL.md §4.4 rather than a
// whole-index snapshot guarantee.
func (idx *Index) AllRefs() []FileRef {
	out := make([]FileRef, 0, idx.Len())
	for _, sh := range idx.shards {
		sh.mu.RLock()
		for ref := range sh.m {
			out = append(out, ref)
		}
		sh.mu.RUnlock()
	}
	return out
}

func (idx *Index) overBudget() bool {
	return idx.memoryBytes.Load()+idx.ext.memoryBytes()+idx.Intern.MemoryBytes() > idx.budget.highWaterMark()
}

// maybeEvict runs the eviction ladder from SPEC_FULL.md §4.4 step 1-2:
// drop the trigram index, then ask registered pressure hooks (the path
// cache) to drop theirs. Step 3, refusing inserts, is handled at the call
// site in upsert via overBudget.
func (idx *Index) maybeEvict() {
	if !idx.overBudget() {
		return
	}
	if idx.tri.isEnabled() {
		idx.log.Warn("memory budget high-water mark reached: dropping trigram index")
		idx.tri.drop()
		idx.trigramDone.Store(true)
	}
	if idx.overBudget() {
		idx.pressureMu.Lock()
		hooks := append([]PressureHook(nil), idx.onPressure...)
		idx.pressureMu.Unlock()
		for _, h := range hooks {
			h()
		}
	}
}

// Stats is the snapshot returned by the status IPC method and exercised by
// tests asserting invariant 2 in SPEC_FULL.md §8.
type Stats struct {
	Entries        int64
	MemoryBytes    uint64
	LastAppliedUSN int64
	Generation     uint64
	Orphans        int64
	TrigramActive  bool
}

// Stats reports a point-in-time snapshot of index health.
func (idx *Index) Stats() Stats {
	return Stats{
		Entries:        idx.entryCount.Load(),
		MemoryBytes:    idx.memoryBytes.Load() + idx.ext.memoryBytes() + idx.Intern.MemoryBytes(),
		LastAppliedUSN: idx.lastAppliedUSN.Load(),
		Generation:     idx.generation.Load(),
		Orphans:        idx.orphans.Load(),
		TrigramActive:  idx.tri.isEnabled(),
	}
}
