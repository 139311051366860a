package query

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ntfsearch/fastfind/internal/index"
)

// Hit is one matched entry, with its resolved full path.
type Hit struct {
	Ref       index.FileRef
	Name      string
	Path      string
	Size      uint64
	Flags     index.Flags
	MTime     uint64
	BTime     uint64
	Volume    string
}

// Result is the outcome of running a Plan against one or more volumes.
type Result struct {
	Hits      []Hit
	Truncated bool
	Restarted bool
}

// VolumeIndex is the narrow seam into internal/index the Engine needs.
// Kept as an interface, matching the "named interfaces only" boundary
// between components in SPEC_FULL.md §2.
type VolumeIndex interface {
	VolumeName() string
	IterByExtension(extTag uint32) []index.FileRef
	ExtTag(ext string) (uint32, bool)
	TrigramCandidates(substr string) ([]index.FileRef, bool)
	AllRefs() []index.FileRef
	Get(ref index.FileRef) (index.FileEntry, bool)
	Scan(ctx context.Context, pred index.Predicate, budget index.ScanBudget, visit func(index.FileEntry) bool) index.ScanResult
}

// PathResolver is the narrow seam into internal/pathresolver the Engine
// needs to resolve a scope filter or a hit's display path.
type PathResolver interface {
	Resolve(ref uint64) (string, error)
}

// Engine executes compiled Plans against a set of per-volume indexes,
// per SPEC_FULL.md §4.6.
type Engine struct {
	log *logrus.Entry

	mu        sync.RWMutex
	volumes   map[string]VolumeIndex
	resolvers map[string]PathResolver
}

// New builds an Engine with no volumes registered; call Register for each
// volume the Supervisor brings up.
func New(log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		log:       log.WithField("component", "query"),
		volumes:   make(map[string]VolumeIndex),
		resolvers: make(map[string]PathResolver),
	}
}

// Register attaches a volume's Index and PathResolver to the Engine. The
// Supervisor calls this once per volume pipeline it starts, and again with
// a nil index to detach a volume that was stopped.
func (e *Engine) Register(volume string, idx VolumeIndex, resolver PathResolver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx == nil {
		delete(e.volumes, volume)
		delete(e.resolvers, volume)
		return
	}
	e.volumes[volume] = idx
	e.resolvers[volume] = resolver
}

// Run executes plan against every registered volume (or just plan.drive,
// if set), merging hits in volume-enumeration order until max_results is
// reached or the deadline expires.
func (e *Engine) Run(ctx context.Context, plan Plan) Result {
	ctx, cancel := context.WithTimeout(ctx, plan.deadline)
	defer cancel()

	var result Result
	volumes := e.snapshotVolumeNames(plan.drive)

	for _, vol := range volumes {
		if len(result.Hits) >= plan.maxResults {
			result.Truncated = true
			break
		}
		remaining := plan.maxResults - len(result.Hits)

		hits, truncated, restarted := e.runOnVolume(ctx, vol, plan, remaining)
		result.Hits = append(result.Hits, hits...)
		if truncated {
			result.Truncated = true
		}
		if restarted {
			result.Restarted = true
		}
		if ctx.Err() != nil {
			result.Truncated = true
			break
		}
	}

	return result
}

// snapshotVolumeNames captures which volumes a run should target under a
// single lock acquisition. Each volume's current Index/PathResolver pair
// is looked up again, individually, once the scan against it actually
// starts (and re-checked as it runs) rather than captured here, so a
// rebuild swap that lands mid-run is something runOnVolume can notice.
func (e *Engine) snapshotVolumeNames(drive string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if drive != "" {
		if _, ok := e.volumes[drive]; ok {
			return []string{drive}
		}
		return nil
	}

	names := make([]string, 0, len(e.volumes))
	for v := range e.volumes {
		names = append(names, v)
	}
	return names
}

// lookupVolume returns the Index/PathResolver pair currently registered
// for volume, if any. Called both to start a scan and, from within the
// scan's visit callback, to notice a rebuild swapping in a newer pair.
func (e *Engine) lookupVolume(volume string) (VolumeIndex, PathResolver, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, ok := e.volumes[volume]
	if !ok {
		return nil, nil, false
	}
	return idx, e.resolvers[volume], true
}

// runOnVolume executes plan against volume, restarting once against a
// newer generation if a rebuild swap is registered mid-scan (SPEC_FULL.md
// §4.6/§5: "restarts from the new generation at most once"; a second
// swap during the restart is tolerated without a further restart). A
// swap is detected by re-resolving volume's live Index from the Engine's
// registry and comparing it against the one this pass started scanning,
// since internal/index.Index has no way to observe a swap about itself
// (a rebuild always builds a brand-new shadow Index rather than mutating
// the live one in place).
func (e *Engine) runOnVolume(ctx context.Context, volume string, plan Plan, maxResults int) (hits []Hit, truncated, restarted bool) {
	for {
		idx, resolver, ok := e.lookupVolume(volume)
		if !ok {
			return hits, truncated, restarted
		}

		passHits, passTruncated, swapped := e.scanVolumeOnce(ctx, volume, idx, resolver, plan, maxResults)
		if swapped && !restarted {
			restarted = true
			hits = nil
			continue
		}

		hits = append(hits, passHits...)
		truncated = truncated || passTruncated
		return hits, truncated, restarted
	}
}

// scanVolumeOnce performs a single scan pass against idx, following the
// execution plan in SPEC_FULL.md §4.6: extension fast-path when
// available, otherwise a full scan; name match, then size/flag filters,
// then a lazily resolved scope filter. swapped reports whether the
// Engine's registry pointed at a different Index for volume partway
// through, in which case the caller should discard this pass's hits and
// restart.
func (e *Engine) scanVolumeOnce(ctx context.Context, volume string, idx VolumeIndex, resolver PathResolver, plan Plan, maxResults int) (hits []Hit, truncated, swapped bool) {
	visit := func(entry index.FileEntry) bool {
		if current, _, ok := e.lookupVolume(volume); !ok || current != idx {
			swapped = true
			return false
		}
		if len(hits) >= maxResults {
			return false
		}
		if !plan.passesFilters(entry) {
			return true
		}
		path, err := resolver.Resolve(entry.Ref.Packed())
		if err != nil {
			return true
		}
		if plan.scopePrefix != "" && !strings.HasPrefix(strings.ToLower(path), plan.scopePrefix) {
			return true
		}
		hits = append(hits, toHit(entry, idx.VolumeName(), path))
		return len(hits) < maxResults
	}

	if plan.extTag != "" {
		tag, ok := idx.ExtTag(plan.extTag)
		if !ok {
			return nil, false, false
		}
		refs := idx.IterByExtension(tag)
		for _, ref := range refs {
			if ctx.Err() != nil {
				return hits, true, false
			}
			entry, ok := idx.Get(ref)
			if !ok {
				continue
			}
			if !visit(entry) {
				break
			}
		}
		return hits, !swapped && (len(hits) >= maxResults || ctx.Err() != nil), swapped
	}

	pred := func(e index.FileEntry) bool { return plan.matchesName(e.Name) }
	result := idx.Scan(ctx, pred, index.ScanBudget{Matches: maxResults}, visit)
	return hits, result.Truncated && !swapped, swapped
}

func (p *Plan) matchesName(name string) bool {
	switch p.Kind {
	case MatchExact:
		if p.caseSensitive {
			return name == p.exact
		}
		return strings.EqualFold(name, p.exact)
	default:
		return p.re.MatchString(name)
	}
}

func (p *Plan) passesFilters(e index.FileEntry) bool {
	if !p.matchesName(e.Name) {
		return false
	}
	if !p.includeHidden && e.Flags.Has(index.FlagHidden) {
		return false
	}
	if p.minSize != nil && e.Size < *p.minSize {
		return false
	}
	if p.maxSize != nil && e.Size > *p.maxSize {
		return false
	}
	return true
}

func toHit(e index.FileEntry, volume, path string) Hit {
	return Hit{
		Ref:    e.Ref,
		Name:   e.Name,
		Path:   path,
		Size:   e.Size,
		Flags:  e.Flags,
		MTime:  e.MTime,
		BTime:  e.BTime,
		Volume: volume,
	}
}

// DeadlineOrDefault is used by callers constructing a Request from an IPC
// payload where Deadline may be the JSON zero value.
func DeadlineOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultDeadline
	}
	return d
}
