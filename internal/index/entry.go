package index

import "time"

// Flags carries the subset of NTFS/DOS attribute bits the index cares
// about. They are read-only facts carried through from the MFT; the index
// never transforms compression, encryption, or sparseness itself.
type Flags uint16

const (
	FlagDirectory Flags = 1 << iota
	FlagHidden
	FlagSystem
	FlagReparse
	FlagCompressed
	FlagEncrypted
	FlagSparse
	FlagDeleted
	FlagOrphan // transient: parent not yet observed during a rebuild scan
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// FileEntry is one live NTFS file or directory record as carried in the
// Index. Timestamps are 100-ns ticks since 1601-01-01 UTC, matching the
// NTFS on-disk representation so no conversion is needed on ingest; the
// IPC layer converts to ISO-8601 only at the wire boundary.
type FileEntry struct {
	Ref       FileRef
	ParentRef FileRef
	Name      string
	Size      uint64
	Flags     Flags
	MTime     uint64
	CTime     uint64
	ATime     uint64
	BTime     uint64
	ExtTag    uint32
}

const ticksPerSecond = 10_000_000

var ntfsEpoch = time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)

// Time converts an NTFS 100-ns tick count to a UTC time.Time.
func Time(ticks uint64) time.Time {
	secs := int64(ticks / ticksPerSecond)
	nsecs := int64(ticks%ticksPerSecond) * 100
	return ntfsEpoch.Add(time.Duration(secs)*time.Second + time.Duration(nsecs))
}

// approxMemory estimates the bytes an entry occupies in the index,
// including overhead of the surrounding map slot. Used only to drive the
// memory budget/eviction policy in §4.4 of SPEC_FULL.md, not for billing.
func (e *FileEntry) approxMemory() uint64 {
	const overhead = 64 // map bucket + struct padding, approximate
	return uint64(len(e.Name)) + overhead
}
