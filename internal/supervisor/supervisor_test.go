package supervisor

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirupsen/logrus"

	"github.com/ntfsearch/fastfind/internal/apperrors"
	"github.com/ntfsearch/fastfind/internal/index"
	"github.com/ntfsearch/fastfind/internal/metrics"
)

func testLog() *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger())
}

func TestSidecarPathStripsDriveColon(t *testing.T) {
	got := sidecarPath(`C:\data`, "D:")
	assert.Equal(t, `C:\data\journal\D.cursor`, got)
}

func TestErrAccessDeniedVolumeClassifiesWrappedSentinel(t *testing.T) {
	wrapped := fmt.Errorf("volume: open: %w", apperrors.ErrAccessDenied)
	assert.True(t, errAccessDeniedVolume(wrapped))
	assert.False(t, errAccessDeniedVolume(apperrors.ErrVolumeUnavailable))
}

func TestVolumePipelineAvailabilityTransitions(t *testing.T) {
	p := newVolumePipeline("E:", testLog())
	assert.False(t, p.available.Load())

	p.markAvailable()
	assert.True(t, p.available.Load())
	assert.Empty(t, p.unavailableReason())

	p.markUnavailable("disk pulled")
	assert.False(t, p.available.Load())
	assert.Equal(t, "disk pulled", p.unavailableReason())
}

func TestVolumePipelineLiveAccessorsNilBeforeStart(t *testing.T) {
	p := newVolumePipeline("F:", testLog())
	assert.Nil(t, p.liveIndex())
	assert.Nil(t, p.liveParser())
	assert.Nil(t, p.liveResolver())
}

func TestResolveOrphansFlagsAndClearsOrphans(t *testing.T) {
	idx := index.New("G:", index.DefaultBudget(), nil)

	root := index.FileEntry{Ref: index.RootRef, ParentRef: index.RootRef, Name: "G:\\", Flags: index.FlagDirectory}
	require.NoError(t, idx.Insert(root))

	dir := index.FileEntry{Ref: index.FileRef{Record: 10, Sequence: 1}, ParentRef: index.RootRef, Name: "docs", Flags: index.FlagDirectory}
	require.NoError(t, idx.Insert(dir))

	danglingChild := index.FileEntry{Ref: index.FileRef{Record: 11, Sequence: 1}, ParentRef: index.FileRef{Record: 999, Sequence: 1}, Name: "lost.txt"}
	require.NoError(t, idx.Insert(danglingChild))

	okChild := index.FileEntry{Ref: index.FileRef{Record: 12, Sequence: 1}, ParentRef: dir.Ref, Name: "notes.txt"}
	require.NoError(t, idx.Insert(okChild))

	resolveOrphans(idx)

	got, ok := idx.Get(danglingChild.Ref)
	require.True(t, ok)
	assert.True(t, got.Flags.Has(index.FlagOrphan), "child of a missing parent should be flagged orphan")

	got, ok = idx.Get(okChild.Ref)
	require.True(t, ok)
	assert.False(t, got.Flags.Has(index.FlagOrphan))
}

func TestResolveOrphansClearsStaleOrphanFlag(t *testing.T) {
	idx := index.New("H:", index.DefaultBudget(), nil)

	root := index.FileEntry{Ref: index.RootRef, ParentRef: index.RootRef, Name: "H:\\", Flags: index.FlagDirectory}
	require.NoError(t, idx.Insert(root))

	// Inserted as orphan (parent not yet present), then the parent shows up
	// before resolveOrphans runs.
	child := index.FileEntry{Ref: index.FileRef{Record: 20, Sequence: 1}, ParentRef: index.FileRef{Record: 21, Sequence: 1}, Name: "a.txt", Flags: index.FlagOrphan}
	require.NoError(t, idx.Insert(child))

	parent := index.FileEntry{Ref: index.FileRef{Record: 21, Sequence: 1}, ParentRef: index.RootRef, Name: "found", Flags: index.FlagDirectory}
	require.NoError(t, idx.Insert(parent))

	resolveOrphans(idx)

	got, ok := idx.Get(child.Ref)
	require.True(t, ok)
	assert.False(t, got.Flags.Has(index.FlagOrphan))
}

func TestRegistrySinkRecordsMetrics(t *testing.T) {
	reg := metrics.New()
	sink := newMetricsSink(reg)

	sink.incRebuilds("C:")
	sink.observeScan("C:", 100, 2)
	sink.setVolumeHealth("C:", true, 4096, 100)

	assert.Equal(t, float64(1), testutil.ToFloat64(reg.RebuildsTriggered.WithLabelValues("C:")))
	assert.Equal(t, float64(100), testutil.ToFloat64(reg.RecordsScanned.WithLabelValues("C:")))
	assert.Equal(t, float64(2), testutil.ToFloat64(reg.MalformedRecords.WithLabelValues("C:")))
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.VolumeAvailable.WithLabelValues("C:")))
	assert.Equal(t, float64(4096), testutil.ToFloat64(reg.VolumeMemoryBytes.WithLabelValues("C:")))
}
