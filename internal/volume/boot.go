package volume

import (
	"encoding/binary"
	"fmt"

	"github.com/ntfsearch/fastfind/internal/apperrors"
)

func parseBootSectorInto(buf []byte) (BootSectorInfo, error) {
	if len(buf) < 512 {
		return BootSectorInfo{}, fmt.Errorf("boot sector buffer too short (%d bytes)", len(buf))
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

// isTransient classifies an OS-level read error as retryable. The
// platform-specific files populate the transient sentinel set; on non-
// Windows builds, nothing is ever transient.
func isTransient(err error) bool {
	return isTransientPlatform(err)
}
