//go:build !windows

package volume

import "github.com/ntfsearch/fastfind/internal/apperrors"

// otherHandle is the non-Windows stand-in: raw volume access is a
// Windows-only concept (SPEC_FULL.md §1 scopes non-NTFS/non-Windows hosts
// to an unspecified degraded fallback), so Open always fails here. This
// keeps the rest of the module buildable and testable on any host.
type otherHandle struct{}

func openPlatformHandle(driveLetter string) (platformHandle, error) {
	return nil, apperrors.ErrVolumeUnavailable
}

func (otherHandle) readClusters(lcn uint64, count int) ([]byte, error) { return nil, apperrors.ErrVolumeUnavailable }
func (otherHandle) readRaw(offset int64, n int) ([]byte, error)        { return nil, apperrors.ErrVolumeUnavailable }
func (otherHandle) setBootSector(BootSectorInfo)                       {}
func (otherHandle) close() error                                       { return nil }
func (otherHandle) rawHandle() (uintptr, bool)                          { return 0, false }

func isTransientPlatform(err error) bool { return false }
