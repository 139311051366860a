package index

import (
	"sort"
	"sync"
)

// extIndex maps an interned extension tag to the sorted set of FileRefs
// carrying that extension, giving IterByExtension a stable iteration order
// as required by SPEC_FULL.md §4.4 and invariant 4 in §8.
type extIndex struct {
	mu      sync.RWMutex
	buckets map[uint32][]FileRef
}

func newExtIndex() *extIndex {
	return &extIndex{buckets: make(map[uint32][]FileRef)}
}

func lessRef(a, b FileRef) bool {
	if a.Record != b.Record {
		return a.Record < b.Record
	}
	return a.Sequence < b.Sequence
}

func (x *extIndex) add(tag uint32, ref FileRef) {
	if tag == 0 {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	bucket := x.buckets[tag]
	i := sort.Search(len(bucket), func(i int) bool { return !lessRef(bucket[i], ref) })
	if i < len(bucket) && bucket[i] == ref {
		return
	}
	bucket = append(bucket, FileRef{})
	copy(bucket[i+1:], bucket[i:])
	bucket[i] = ref
	x.buckets[tag] = bucket
}

func (x *extIndex) remove(tag uint32, ref FileRef) {
	if tag == 0 {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	bucket := x.buckets[tag]
	i := sort.Search(len(bucket), func(i int) bool { return !lessRef(bucket[i], ref) })
	if i >= len(bucket) || bucket[i] != ref {
		return
	}
	bucket = append(bucket[:i], bucket[i+1:]...)
	if len(bucket) == 0 {
		delete(x.buckets, tag)
		return
	}
	x.buckets[tag] = bucket
}

// iter returns a stable-order snapshot of the refs tagged with ext. The
// snapshot is copied out under the lock so callers can iterate without
// holding it, at the cost of an allocation per call.
func (x *extIndex) iter(tag uint32) []FileRef {
	x.mu.RLock()
	defer x.mu.RUnlock()
	bucket := x.buckets[tag]
	out := make([]FileRef, len(bucket))
	copy(out, bucket)
	return out
}

func (x *extIndex) memoryBytes() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var n uint64
	for _, b := range x.buckets {
		n += uint64(len(b)) * 8
	}
	return n
}
