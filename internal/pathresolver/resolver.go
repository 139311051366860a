// Package pathresolver computes full path strings for a FileRef on demand,
// per SPEC_FULL.md §4.3. Paths are never stored per entry; they're walked
// from the parent chain and cached only for recently-resolved refs.
package pathresolver

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const maxWalkDepth = 256

// EntryLookup is the narrow seam into the Index this package needs: given
// a ref, return its name and parent ref. Kept as an interface rather than
// importing internal/index directly, matching the "named interfaces only"
// boundary between components in SPEC_FULL.md §2.
type EntryLookup interface {
	NameAndParent(ref uint64) (name string, parentRef uint64, ok bool)
}

// Resolver computes full paths for one volume.
type Resolver struct {
	volume      string
	driveLetter string
	rootRef     uint64
	lookup      EntryLookup
	cache       *cache.Cache
	log         *logrus.Entry

	orphanCount atomic.Int64
}

// Options configures a Resolver's path cache, which evicts by TTL only:
// the cache has no size bound and is not sized from the memory budget.
type Options struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// DefaultOptions mirrors the spec's default TTL-based eviction policy.
func DefaultOptions() Options {
	return Options{TTL: 5 * time.Minute, CleanupInterval: time.Minute}
}

// New builds a Resolver for one volume. rootRef is the sentinel root
// FileRef whose parent_ref equals itself.
func New(volume, driveLetter string, rootRef uint64, lookup EntryLookup, opts Options, log *logrus.Entry) *Resolver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Resolver{
		volume:      volume,
		driveLetter: driveLetter,
		rootRef:     rootRef,
		lookup:      lookup,
		cache:       cache.New(opts.TTL, opts.CleanupInterval),
		log:         log.WithField("volume", volume).WithField("component", "pathresolver"),
	}
}

// Resolve returns the full path for ref, walking the parent chain if not
// already cached. A cycle or excessive depth produces a synthetic
// "\<orphan>\<name>" path and increments the orphan counter, per
// SPEC_FULL.md §4.3, rather than failing the request.
func (r *Resolver) Resolve(ref uint64) (string, error) {
	if cached, ok := r.cache.Get(cacheKey(ref)); ok {
		return cached.(string), nil
	}

	name, parentRef, ok := r.lookup.NameAndParent(ref)
	if !ok {
		return "", fmt.Errorf("pathresolver: unknown ref %d", ref)
	}

	segments := []string{name}
	visited := map[uint64]bool{ref: true}
	current := parentRef

	for depth := 0; ; depth++ {
		if current == r.rootRef {
			break
		}
		if depth >= maxWalkDepth || visited[current] {
			r.orphanCount.Add(1)
			path := r.orphanPath(name)
			r.cache.Set(cacheKey(ref), path, cache.DefaultExpiration)
			return path, nil
		}
		visited[current] = true

		segName, segParent, ok := r.lookup.NameAndParent(current)
		if !ok {
			r.orphanCount.Add(1)
			path := r.orphanPath(name)
			r.cache.Set(cacheKey(ref), path, cache.DefaultExpiration)
			return path, nil
		}
		segments = append(segments, segName)
		current = segParent
	}

	reverse(segments)
	path := r.joinPath(segments)
	r.cache.Set(cacheKey(ref), path, cache.DefaultExpiration)
	return path, nil
}

// DropCache releases the whole path cache, the second step in the Index's
// memory-pressure eviction ladder (SPEC_FULL.md §4.4).
func (r *Resolver) DropCache() {
	r.cache.Flush()
}

// OrphanCount reports how many resolutions produced a synthetic orphan
// path since the Resolver was created.
func (r *Resolver) OrphanCount() int64 { return r.orphanCount.Load() }

func (r *Resolver) joinPath(segments []string) string {
	return r.driveLetter + `\` + strings.Join(segments, `\`)
}

func (r *Resolver) orphanPath(name string) string {
	return r.driveLetter + `\<orphan>\` + name
}

func cacheKey(ref uint64) string {
	return fmt.Sprintf("%x", ref)
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
