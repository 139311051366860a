package journal

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu        sync.Mutex
	identity  Identity
	batches   [][]Record
	batchIdx  int
	unavailableOnce bool
}

func (f *fakeSource) QueryJournal(ctx context.Context) (Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identity, nil
}

func (f *fakeSource) ReadBatch(ctx context.Context, fromUSN int64) ([]Record, int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailableOnce {
		f.unavailableOnce = false
		return nil, fromUSN, true, nil
	}
	if f.batchIdx >= len(f.batches) {
		return nil, fromUSN, false, nil
	}
	batch := f.batches[f.batchIdx]
	f.batchIdx++
	next := fromUSN
	if len(batch) > 0 {
		next = batch[len(batch)-1].USN + 1
	}
	return batch, next, false, nil
}

type fakeSink struct {
	mu        sync.Mutex
	applied   []Mutation
	lastUSN   int64
}

func (f *fakeSink) Apply(ctx context.Context, m Mutation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, m)
	return nil
}

func (f *fakeSink) SetLastAppliedUSN(usn int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUSN = usn
}

func (f *fakeSink) snapshot() ([]Mutation, int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Mutation, len(f.applied))
	copy(out, f.applied)
	return out, f.lastUSN
}

type fakeRebuilder struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeRebuilder) Rebuild(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakeRebuilder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestTranslateRecordReasonMapping(t *testing.T) {
	m, ok := translateRecord(Record{FileRef: 1, Reason: ReasonFileCreate})
	require.True(t, ok)
	assert.Equal(t, MutationUpsert, m.Kind)
	assert.True(t, m.NeedsLookup)

	m, ok = translateRecord(Record{FileRef: 2, Reason: ReasonFileDelete})
	require.True(t, ok)
	assert.Equal(t, MutationRemove, m.Kind)

	m, ok = translateRecord(Record{FileRef: 3, Reason: ReasonRenameOldName | ReasonClose})
	require.True(t, ok)
	assert.Equal(t, MutationRemove, m.Kind)

	_, ok = translateRecord(Record{FileRef: 4, Reason: 0x4000}) // unmapped reason bit
	assert.False(t, ok)
}

func TestConsumerRebuildsWhenNoCursorOnDisk(t *testing.T) {
	dir := t.TempDir()
	sidecar := filepath.Join(dir, "cursor.bin")

	source := &fakeSource{identity: Identity{JournalID: 42, FirstUSN: 0, NextUSN: 100}}
	sink := &fakeSink{}
	rebuild := &fakeRebuilder{}
	c := NewConsumer("C:", sidecar, source, sink, rebuild, nil)
	c.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_ = c.Run(ctx)

	assert.Equal(t, 1, rebuild.count())

	cursor, ok := LoadCursor(sidecar)
	require.True(t, ok)
	assert.EqualValues(t, 42, cursor.JournalID)
}

func TestConsumerIncrementalCatchupWithExistingCursor(t *testing.T) {
	dir := t.TempDir()
	sidecar := filepath.Join(dir, "cursor.bin")
	require.NoError(t, SaveCursor(sidecar, Cursor{JournalID: 7, NextUSN: 50}))

	source := &fakeSource{
		identity: Identity{JournalID: 7, FirstUSN: 0, NextUSN: 100},
		batches: [][]Record{
			{{USN: 50, FileRef: 10, Reason: ReasonFileCreate}},
		},
	}
	sink := &fakeSink{}
	rebuild := &fakeRebuilder{}
	c := NewConsumer("C:", sidecar, source, sink, rebuild, nil)
	c.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_ = c.Run(ctx)

	assert.Equal(t, 0, rebuild.count())
	applied, lastUSN := sink.snapshot()
	require.Len(t, applied, 1)
	assert.EqualValues(t, 10, applied[0].Ref)
	assert.EqualValues(t, 51, lastUSN)
}

func TestConsumerRebuildsOnJournalIdentityChange(t *testing.T) {
	dir := t.TempDir()
	sidecar := filepath.Join(dir, "cursor.bin")
	require.NoError(t, SaveCursor(sidecar, Cursor{JournalID: 1, NextUSN: 50}))

	source := &fakeSource{identity: Identity{JournalID: 999, FirstUSN: 0, NextUSN: 10}}
	sink := &fakeSink{}
	rebuild := &fakeRebuilder{}
	c := NewConsumer("C:", sidecar, source, sink, rebuild, nil)
	c.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_ = c.Run(ctx)

	assert.Equal(t, 1, rebuild.count())
}

func TestConsumerRebuildsWhenJournalReportsUnavailable(t *testing.T) {
	dir := t.TempDir()
	sidecar := filepath.Join(dir, "cursor.bin")
	require.NoError(t, SaveCursor(sidecar, Cursor{JournalID: 7, NextUSN: 50}))

	source := &fakeSource{
		identity:        Identity{JournalID: 7, FirstUSN: 0, NextUSN: 100},
		unavailableOnce: true,
	}
	sink := &fakeSink{}
	rebuild := &fakeRebuilder{}
	c := NewConsumer("C:", sidecar, source, sink, rebuild, nil)
	c.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_ = c.Run(ctx)

	assert.Equal(t, 1, rebuild.count())
}
