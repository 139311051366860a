package pathresolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rootRef = 5

type fakeLookup struct {
	entries map[uint64]struct {
		name   string
		parent uint64
	}
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{entries: make(map[uint64]struct {
		name   string
		parent uint64
	})}
}

func (f *fakeLookup) set(ref uint64, name string, parent uint64) {
	f.entries[ref] = struct {
		name   string
		parent uint64
	}{name, parent}
}

func (f *fakeLookup) NameAndParent(ref uint64) (string, uint64, bool) {
	e, ok := f.entries[ref]
	if !ok {
		return "", 0, false
	}
	return e.name, e.parent, true
}

func TestResolveSimpleChain(t *testing.T) {
	lookup := newFakeLookup()
	lookup.set(rootRef, "", rootRef)
	lookup.set(100, "Users", rootRef)
	lookup.set(101, "alice", 100)
	lookup.set(102, "notes.txt", 101)

	r := New("C:", "C:", rootRef, lookup, DefaultOptions(), nil)
	path, err := r.Resolve(102)
	require.NoError(t, err)
	assert.Equal(t, `C:\Users\alice\notes.txt`, path)
}

func TestResolveCachesResult(t *testing.T) {
	lookup := newFakeLookup()
	lookup.set(rootRef, "", rootRef)
	lookup.set(100, "file.txt", rootRef)

	r := New("C:", "C:", rootRef, lookup, DefaultOptions(), nil)
	first, err := r.Resolve(100)
	require.NoError(t, err)

	delete(lookup.entries, 100) // prove the second call hits the cache, not lookup
	second, err := r.Resolve(100)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveDetectsCycle(t *testing.T) {
	lookup := newFakeLookup()
	lookup.set(rootRef, "", rootRef)
	lookup.set(200, "a", 201)
	lookup.set(201, "b", 200) // cycle: 200 <-> 201, never reaches root

	r := New("C:", "C:", rootRef, lookup, DefaultOptions(), nil)
	path, err := r.Resolve(200)
	require.NoError(t, err)
	assert.Contains(t, path, "<orphan>")
	assert.EqualValues(t, 1, r.OrphanCount())
}

func TestResolveUnknownRefIsError(t *testing.T) {
	lookup := newFakeLookup()
	r := New("C:", "C:", rootRef, lookup, DefaultOptions(), nil)
	_, err := r.Resolve(999)
	assert.Error(t, err)
}

func TestDropCacheForcesRewalk(t *testing.T) {
	lookup := newFakeLookup()
	lookup.set(rootRef, "", rootRef)
	lookup.set(100, "file.txt", rootRef)

	r := New("C:", "C:", rootRef, lookup, DefaultOptions(), nil)
	_, err := r.Resolve(100)
	require.NoError(t, err)

	r.DropCache()
	lookup.set(100, "renamed.txt", rootRef)

	path, err := r.Resolve(100)
	require.NoError(t, err)
	assert.Equal(t, `C:\renamed.txt`, path)
}
