package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, DefaultOptions())
	require.NoError(t, err)

	entries := []Entry{
		{Ref: 1, ParentRef: 5, Name: "notes.txt", Size: 100},
		{Ref: 2, ParentRef: 5, Name: "photo.jpg", Size: 200},
	}
	require.NoError(t, store.Save("C:", 42, 7, 1000, entries))

	snap, ok, err := store.Load("C:", 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 42, snap.JournalID)
	assert.EqualValues(t, 7, snap.Generation)
	assert.EqualValues(t, 1000, snap.LastUSN)
	require.Len(t, snap.Entries, 2)
}

func TestLoadMissingFileReportsNotOk(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, DefaultOptions())
	require.NoError(t, err)

	_, ok, err := store.Load("D:", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadRejectsJournalIDMismatch(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, store.Save("C:", 42, 1, 0, nil))

	_, ok, err := store.Load("C:", 999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveOverwritesPriorSnapshot(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, store.Save("C:", 1, 1, 0, []Entry{{Ref: 1, Name: "a.txt"}, {Ref: 2, Name: "b.txt"}}))
	require.NoError(t, store.Save("C:", 1, 2, 0, []Entry{{Ref: 1, Name: "a.txt"}}))

	snap, ok, err := store.Load("C:", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, snap.Entries, 1)
	assert.EqualValues(t, 2, snap.Generation)
}

func TestDeleteRemovesSnapshotFile(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, store.Save("C:", 1, 1, 0, []Entry{{Ref: 1, Name: "a.txt"}}))
	require.NoError(t, store.Delete("C:"))

	_, ok, err := store.Load("C:", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVolumesGetSeparateFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, store.Save("C:", 1, 1, 0, []Entry{{Ref: 1, Name: "c.txt"}}))
	require.NoError(t, store.Save("D:", 2, 1, 0, []Entry{{Ref: 1, Name: "d.txt"}}))

	cSnap, ok, err := store.Load("C:", 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, cSnap.Entries, 1)
	assert.Equal(t, "c.txt", cSnap.Entries[0].Name)

	dSnap, ok, err := store.Load("D:", 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, dSnap.Entries, 1)
	assert.Equal(t, "d.txt", dSnap.Entries[0].Name)

	assert.NotEqual(t, filepath.Join(dir, "C:.snap"), filepath.Join(dir, "D:.snap"))
}
