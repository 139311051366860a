// Package volume opens a raw NTFS volume handle and exposes a
// byte-addressable cluster view, per SPEC_FULL.md §4.1.
package volume

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// BootSectorInfo mirrors mft.BootSectorInfo; duplicated here rather than
// imported so this package has no compile-time dependency on the parser.
// The Supervisor converts between the two at the wiring boundary.
type BootSectorInfo struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ClusterSize       int
	MFTStartLCN       uint64
	MFTRecordSize     int
}

// Handle is a read-only handle to a whole NTFS volume, per SPEC_FULL.md
// §4.1. The concrete implementation lives in reader_windows.go; a
// non-Windows build gets a stub that always fails Open, since raw volume
// access is a Windows-only concept.
type Handle struct {
	driveLetter string
	boot        BootSectorInfo
	log         *logrus.Entry

	impl platformHandle
}

// platformHandle is the OS-specific seam reader_windows.go/reader_other.go
// implement.
type platformHandle interface {
	readClusters(lcn uint64, count int) ([]byte, error)
	readRaw(offset int64, n int) ([]byte, error)
	setBootSector(BootSectorInfo)
	close() error
	rawHandle() (uintptr, bool)
}

const (
	maxReadAttempts = 3
	retryBaseDelay  = 20 * time.Millisecond
)

// transientClassifier decides whether a read error is worth retrying; a
// package variable so tests can substitute a deterministic classifier
// instead of relying on real OS error codes.
var transientClassifier = isTransient

// Open acquires a raw handle to driveLetter (e.g. "C:"), enabling the
// backup-read privilege first. Failure modes map to apperrors.ErrAccessDenied,
// apperrors.ErrNotNTFS, or apperrors.ErrNoSuchVolume per SPEC_FULL.md §4.1.
func Open(driveLetter string, log *logrus.Entry) (*Handle, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	impl, err := openPlatformHandle(driveLetter)
	if err != nil {
		return nil, err
	}

	h := &Handle{driveLetter: driveLetter, impl: impl, log: log.WithField("volume", driveLetter)}

	rawBoot, err := h.readRawWithRetry(context.Background(), 0, 512)
	if err != nil {
		_ = impl.close()
		return nil, fmt.Errorf("volume %s: reading boot sector: %w", driveLetter, err)
	}
	boot, err := parseBootSectorInto(rawBoot)
	if err != nil {
		_ = impl.close()
		return nil, fmt.Errorf("volume %s: %w", driveLetter, err)
	}
	h.boot = boot
	impl.setBootSector(boot)
	return h, nil
}

// BootSector returns the volume's parsed boot-sector geometry.
func (h *Handle) BootSector() BootSectorInfo { return h.boot }

// ReadClusters reads count clusters starting at logical cluster number lcn,
// retrying transient failures with exponential backoff up to
// maxReadAttempts times per SPEC_FULL.md §4.1 "Failure model".
func (h *Handle) ReadClusters(ctx context.Context, lcn uint64, count int) ([]byte, error) {
	var lastErr error
	delay := retryBaseDelay
	for attempt := 0; attempt < maxReadAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		buf, err := h.impl.readClusters(lcn, count)
		if err == nil {
			return buf, nil
		}
		lastErr = err
		if !transientClassifier(err) {
			break
		}
		h.log.WithError(err).WithField("attempt", attempt+1).Warn("cluster read failed, retrying")
	}
	return nil, fmt.Errorf("volume %s: reading %d clusters at LCN %d: %w", h.driveLetter, count, lcn, lastErr)
}

func (h *Handle) readRawWithRetry(ctx context.Context, offset int64, n int) ([]byte, error) {
	var lastErr error
	delay := retryBaseDelay
	for attempt := 0; attempt < maxReadAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		buf, err := h.impl.readRaw(offset, n)
		if err == nil {
			return buf, nil
		}
		lastErr = err
		if !transientClassifier(err) {
			break
		}
	}
	return nil, lastErr
}

// RawHandle exposes the underlying OS handle as a uintptr, ok=false on a
// platform with no such concept. internal/journal's Windows USN source
// needs the same open handle this reader already owns (SPEC_FULL.md §5
// "the raw volume handle is owned by its Volume Reader and not shared
// across volumes" — shared within one volume's pipeline, not reopened).
func (h *Handle) RawHandle() (uintptr, bool) {
	return h.impl.rawHandle()
}

// Close releases the underlying OS handle. Safe to call from any shutdown
// path; idempotent at the platform layer.
func (h *Handle) Close() error {
	if h.impl == nil {
		return nil
	}
	return h.impl.close()
}
