package volume

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transientErr struct{ msg string }

func (e transientErr) Error() string { return e.msg }

type fakeImpl struct {
	failures   int
	calls      int
	lastErr    error
	boot       BootSectorInfo
	readResult []byte
}

func (f *fakeImpl) readClusters(lcn uint64, count int) ([]byte, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.lastErr
	}
	return f.readResult, nil
}
func (f *fakeImpl) readRaw(offset int64, n int) ([]byte, error) { return f.readResult, nil }
func (f *fakeImpl) setBootSector(b BootSectorInfo)              { f.boot = b }
func (f *fakeImpl) close() error                                { return nil }
func (f *fakeImpl) rawHandle() (uintptr, bool)                  { return 0, false }

func TestReadClustersRetriesTransientErrors(t *testing.T) {
	orig := transientClassifier
	transientClassifier = func(error) bool { return true }
	defer func() { transientClassifier = orig }()

	impl := &fakeImpl{failures: 2, lastErr: transientErr{"busy"}, readResult: []byte{1, 2, 3, 4}}
	h := &Handle{impl: impl, log: logrus.NewEntry(logrus.StandardLogger())}

	buf, err := h.ReadClusters(context.Background(), 10, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf)
	assert.Equal(t, 3, impl.calls)
}

func TestReadClustersGivesUpAfterMaxAttempts(t *testing.T) {
	orig := transientClassifier
	transientClassifier = func(error) bool { return true }
	defer func() { transientClassifier = orig }()

	impl := &fakeImpl{failures: 10, lastErr: transientErr{"busy"}}
	h := &Handle{impl: impl, log: logrus.NewEntry(logrus.StandardLogger())}

	_, err := h.ReadClusters(context.Background(), 10, 1)
	require.Error(t, err)
	assert.Equal(t, maxReadAttempts, impl.calls)
}

func TestReadClustersDoesNotRetryPermanentErrors(t *testing.T) {
	orig := transientClassifier
	transientClassifier = func(error) bool { return false }
	defer func() { transientClassifier = orig }()

	impl := &fakeImpl{failures: 10, lastErr: errors.New("permanent")}
	h := &Handle{impl: impl, log: logrus.NewEntry(logrus.StandardLogger())}

	_, err := h.ReadClusters(context.Background(), 10, 1)
	require.Error(t, err)
	assert.Equal(t, 1, impl.calls)
}
