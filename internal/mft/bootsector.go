// Package mft decodes the on-disk NTFS Master File Table: the boot sector,
// fixup-protected record headers, resident and non-resident attributes, and
// the data-run list used to locate $MFT itself on disk.
package mft

import (
	"encoding/binary"
	"fmt"

	"github.com/ntfsearch/fastfind/internal/apperrors"
)

// BootSectorInfo is the subset of the NTFS boot sector the rest of this
// package and the Volume Reader need, per SPEC_FULL.md §4.1.
type BootSectorInfo struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	MFTStartLCN       uint64
	MFTMirrStartLCN   uint64
	MFTRecordSize     int
	ClusterSize       int
}

// ParseBootSector decodes the first 512 bytes of an NTFS volume. buf must be
// at least 512 bytes; only the fields this service needs are validated.
func ParseBootSector(buf []byte) (BootSectorInfo, error) {
	if len(buf) < 512 {
		return BootSectorInfo{}, fmt.Errorf("mft: boot sector buffer too short (%d bytes)", len(buf))
	}
	if string(buf[3:7]) != "NTFS" {
		return BootSectorInfo{}, apperrors.ErrNotNTFS
	}

	var info BootSectorInfo
	info.BytesPerSector = binary.LittleEndian.Uint16(buf[11:13])
	info.SectorsPerCluster = buf[13]
	if info.BytesPerSector == 0 || info.SectorsPerCluster == 0 {
		return BootSectorInfo{}, fmt.Errorf("%w: zero geometry field", apperrors.ErrNotNTFS)
	}
	info.ClusterSize = int(info.BytesPerSector) * int(info.SectorsPerCluster)

	info.MFTStartLCN = binary.LittleEndian.Uint64(buf[48:56])
	info.MFTMirrStartLCN = binary.LittleEndian.Uint64(buf[56:64])

	clustersPerMFTRecord := int8(buf[64])
	switch {
	case clustersPerMFTRecord < 0:
		info.MFTRecordSize = 1 << uint(-clustersPerMFTRecord)
	case clustersPerMFTRecord > 0:
		info.MFTRecordSize = int(clustersPerMFTRecord) * info.ClusterSize
	default:
		return BootSectorInfo{}, fmt.Errorf("%w: zero clusters-per-mft-record", apperrors.ErrNotNTFS)
	}

	return info, nil
}
