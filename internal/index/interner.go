package index

import (
	"strings"
	"sync"
)

// Interner maps short strings — path segments and lower-cased extensions —
// to stable 32-bit ids for the life of an Index. Ids are never reassigned,
// so a previously-returned id stays valid even after the interner grows;
// the interner itself is what the memory budget bounds, not individual
// lookups. A single RWMutex guards the whole interner; unlike the primary
// index (internal/index/shard.go), it is not sharded.
type Interner struct {
	mu     sync.RWMutex
	toID   map[string]uint32
	toStr  []string // index 0 is reserved, meaning "no value"
	bytes  uint64
}

// NewInterner builds an empty interner with slot 0 reserved for "absent".
func NewInterner() *Interner {
	return &Interner{
		toID:  make(map[string]uint32),
		toStr: []string{""},
	}
}

// Intern returns the id for s, allocating a new one if s hasn't been seen.
// s is stored as given; InternExt lower-cases extensions before calling
// Intern, so ext_tag('JS') == ext_tag('js').
func (in *Interner) Intern(s string) uint32 {
	in.mu.RLock()
	if id, ok := in.toID[s]; ok {
		in.mu.RUnlock()
		return id
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.toID[s]; ok {
		return id
	}
	id := uint32(len(in.toStr))
	in.toStr = append(in.toStr, s)
	in.toID[s] = id
	in.bytes += uint64(len(s)) + 16
	return id
}

// InternExt interns the lower-cased extension of name, without the dot, or
// returns 0 if name has no extension.
func (in *Interner) InternExt(name string) uint32 {
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 || dot == len(name)-1 {
		return 0
	}
	return in.Intern(strings.ToLower(name[dot+1:]))
}

// LookupID returns the id already assigned to s, without allocating one if
// s hasn't been interned yet. Used by the query engine to test whether an
// extension has any entries before committing to the extension fast path.
func (in *Interner) LookupID(s string) (uint32, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	id, ok := in.toID[s]
	return id, ok
}

// Lookup returns the string for an id, or "" if the id is out of range.
func (in *Interner) Lookup(id uint32) string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if int(id) >= len(in.toStr) {
		return ""
	}
	return in.toStr[id]
}

// MemoryBytes reports the interner's approximate contribution to the
// owning Index's memory_bytes meter.
func (in *Interner) MemoryBytes() uint64 {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.bytes
}

// Len returns the number of distinct interned strings (excluding slot 0).
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.toStr) - 1
}
