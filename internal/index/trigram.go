package index

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// trigramIndex is the optional secondary index from a lower-cased
// three-character substring of a name to the set of FileRefs containing
// it. It exists purely to accelerate substring search; SPEC_FULL.md §4.4
// allows it to be dropped under memory pressure without affecting
// correctness, so every lookup path must tolerate a nil or disabled index
// and fall back to a full scan.
//
// The trigram set itself is bounded with an LRU cache keyed by trigram so
// that a pathological volume (e.g. mostly-random filenames) can't grow the
// number of distinct trigram buckets without limit even while the index is
// still under its overall byte budget.
type trigramIndex struct {
	mu      sync.RWMutex
	buckets *lru.Cache[string, map[FileRef]struct{}]
	enabled bool
}

const defaultTrigramBuckets = 1 << 20

func newTrigramIndex() *trigramIndex {
	c, _ := lru.New[string, map[FileRef]struct{}](defaultTrigramBuckets)
	return &trigramIndex{buckets: c, enabled: true}
}

func trigramsOf(name string) []string {
	name = strings.ToLower(name)
	if len(name) < 3 {
		return nil
	}
	out := make([]string, 0, len(name)-2)
	for i := 0; i+3 <= len(name); i++ {
		out = append(out, name[i:i+3])
	}
	return out
}

func (t *trigramIndex) add(ref FileRef, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	for _, tg := range trigramsOf(name) {
		set, ok := t.buckets.Get(tg)
		if !ok {
			set = make(map[FileRef]struct{})
		}
		set[ref] = struct{}{}
		t.buckets.Add(tg, set)
	}
}

func (t *trigramIndex) remove(ref FileRef, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	for _, tg := range trigramsOf(name) {
		if set, ok := t.buckets.Peek(tg); ok {
			delete(set, ref)
		}
	}
}

// candidates returns refs sharing every trigram of substr, or (nil, false)
// if the index is disabled or substr is too short to produce a trigram —
// callers must then fall back to a full scan.
func (t *trigramIndex) candidates(substr string) ([]FileRef, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.enabled {
		return nil, false
	}
	trigrams := trigramsOf(substr)
	if len(trigrams) == 0 {
		return nil, false
	}
	var result map[FileRef]struct{}
	for i, tg := range trigrams {
		set, ok := t.buckets.Get(tg)
		if !ok {
			return nil, true // true set is empty; the trigram has no members
		}
		if i == 0 {
			result = make(map[FileRef]struct{}, len(set))
			for r := range set {
				result[r] = struct{}{}
			}
			continue
		}
		for r := range result {
			if _, ok := set[r]; !ok {
				delete(result, r)
			}
		}
	}
	out := make([]FileRef, 0, len(result))
	for r := range result {
		out = append(out, r)
	}
	return out, true
}

// drop disables the trigram index and releases its storage, per the
// eviction order in SPEC_FULL.md §4.4 (trigram index is the first thing to
// go under memory pressure).
func (t *trigramIndex) drop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = false
	t.buckets.Purge()
}

func (t *trigramIndex) isEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}
