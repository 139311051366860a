package ipc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntfsearch/fastfind/internal/index"
	"github.com/ntfsearch/fastfind/internal/query"
)

type fakeStatusProvider struct {
	volumes []VolumeStatus
}

func (f *fakeStatusProvider) VolumeStatuses() []VolumeStatus { return f.volumes }
func (f *fakeStatusProvider) UptimeSeconds() float64         { return 42.5 }
func (f *fakeStatusProvider) MemoryBytes() uint64            { return 1024 }

type fakeResolver struct{}

func (fakeResolver) Resolve(ref uint64) (string, error) {
	return `C:\data\report.txt`, nil
}

func newTestEngine(entries ...index.FileEntry) *query.Engine {
	e := query.New(nil)
	e.Register("C:", newFakeIndex(entries...), fakeResolver{})
	return e
}

// fakeIndex is a minimal query.VolumeIndex for exercising the IPC handlers
// end to end without a real MFT-backed index.
type fakeIndex struct {
	entries []index.FileEntry
}

func newFakeIndex(entries ...index.FileEntry) *fakeIndex {
	return &fakeIndex{entries: entries}
}

func (f *fakeIndex) VolumeName() string { return "C:" }
func (f *fakeIndex) ExtTag(ext string) (uint32, bool) {
	return 0, false
}
func (f *fakeIndex) IterByExtension(tag uint32) []index.FileRef { return nil }
func (f *fakeIndex) TrigramCandidates(substr string) ([]index.FileRef, bool) {
	return nil, false
}
func (f *fakeIndex) AllRefs() []index.FileRef {
	out := make([]index.FileRef, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.Ref
	}
	return out
}
func (f *fakeIndex) Get(ref index.FileRef) (index.FileEntry, bool) {
	for _, e := range f.entries {
		if e.Ref == ref {
			return e, true
		}
	}
	return index.FileEntry{}, false
}
func (f *fakeIndex) Scan(ctx context.Context, pred index.Predicate, budget index.ScanBudget, visit func(index.FileEntry) bool) index.ScanResult {
	for _, e := range f.entries {
		if !pred(e) {
			continue
		}
		if !visit(e) {
			return index.ScanResult{Truncated: true}
		}
	}
	return index.ScanResult{}
}

func TestSearchHandlerReturnsFileInfo(t *testing.T) {
	engine := newTestEngine(index.FileEntry{
		Ref:  index.NewFileRef(10, 1),
		Name: "report.txt",
		Size: 4096,
	})
	registry := NewRegistry()
	RegisterMethods(registry, engine, &fakeStatusProvider{}, time.Now())

	out, err := registry.Dispatch(context.Background(), "search", Params{"pattern": "report.txt"})
	require.NoError(t, err)

	results, ok := out["results"].([]Params)
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, "report.txt", results[0]["name"])
	assert.Equal(t, `C:\data\report.txt`, results[0]["path"])
	assert.Equal(t, "txt", results[0]["extension"])
	assert.Equal(t, false, results[0]["is_directory"])
}

func TestSearchHandlerRejectsMissingPattern(t *testing.T) {
	engine := newTestEngine()
	registry := NewRegistry()
	RegisterMethods(registry, engine, &fakeStatusProvider{}, time.Now())

	_, err := registry.Dispatch(context.Background(), "search", Params{})
	require.Error(t, err)
}

func TestFindLargeFilesExcludesSystemByDefault(t *testing.T) {
	engine := newTestEngine(
		index.FileEntry{Ref: index.NewFileRef(10, 1), Name: "movie.mp4", Size: 200 * 1024 * 1024},
		index.FileEntry{Ref: index.NewFileRef(11, 1), Name: "pagefile.sys", Size: 300 * 1024 * 1024, Flags: index.FlagSystem},
	)
	registry := NewRegistry()
	RegisterMethods(registry, engine, &fakeStatusProvider{}, time.Now())

	out, err := registry.Dispatch(context.Background(), "find_large_files", Params{"min_size_mb": float64(100)})
	require.NoError(t, err)

	results := out["results"].([]Params)
	require.Len(t, results, 1)
	assert.Equal(t, "movie.mp4", results[0]["name"])
}

func TestStatusHandlerReportsVolumesAndUptime(t *testing.T) {
	engine := newTestEngine()
	provider := &fakeStatusProvider{volumes: []VolumeStatus{
		{Volume: "C:", Available: true, Entries: 1000},
	}}
	registry := NewRegistry()
	RegisterMethods(registry, engine, provider, time.Now())

	out, err := registry.Dispatch(context.Background(), "status", Params{})
	require.NoError(t, err)

	volumes := out["volumes"].([]Params)
	require.Len(t, volumes, 1)
	assert.Equal(t, "C:", volumes[0]["volume"])
	assert.Equal(t, 42.5, out["uptime_s"])
}

func TestBenchmarkHandlerRunsEachPattern(t *testing.T) {
	engine := newTestEngine(index.FileEntry{Ref: index.NewFileRef(10, 1), Name: "a.go"})
	registry := NewRegistry()
	RegisterMethods(registry, engine, &fakeStatusProvider{}, time.Now())

	out, err := registry.Dispatch(context.Background(), "benchmark", Params{
		"test_patterns": []interface{}{"*.go"},
		"iterations":    float64(2),
	})
	require.NoError(t, err)

	perPattern := out["per_pattern"].([]Params)
	require.Len(t, perPattern, 1)
	assert.Equal(t, "*.go", perPattern[0]["pattern"])
	assert.Equal(t, 2, perPattern[0]["iterations"])
}
