package journal

import "context"

// Reason bits from a USN_RECORD's Reason field, the subset SPEC_FULL.md
// §4.5 assigns meaning to. Names match the Win32 USN_REASON_* constants.
const (
	ReasonDataOverwrite  uint32 = 0x00000001
	ReasonDataExtend     uint32 = 0x00000002
	ReasonFileCreate     uint32 = 0x00000100
	ReasonFileDelete     uint32 = 0x00000200
	ReasonBasicInfoChange uint32 = 0x00008000
	ReasonRenameOldName  uint32 = 0x00001000
	ReasonRenameNewName  uint32 = 0x00002000
	ReasonClose          uint32 = 0x80000000
)

// Record is one decoded USN_RECORD, translated to the fields the
// consumer's reason-flag switch needs.
type Record struct {
	USN         int64
	FileRef     uint64 // packed (record_number, sequence), see index.FileRef.Packed
	ParentRef   uint64
	Name        string
	Reason      uint32
	Timestamp   uint64
	IsDirectory bool
}

// Identity reports a journal's current instance id and oldest retained
// USN, per SPEC_FULL.md §4.5 step 2.
type Identity struct {
	JournalID uint64
	FirstUSN  int64
	NextUSN   int64 // the USN that would be assigned to the next new record
}

// Source is the USN change-journal seam implemented by usn_windows.go
// (FSCTL_QUERY_USN_JOURNAL / FSCTL_READ_USN_JOURNAL) and stubbed by
// usn_other.go. Kept as an interface so consumer.go is testable without a
// real volume.
type Source interface {
	QueryJournal(ctx context.Context) (Identity, error)
	// ReadBatch reads journal records from fromUSN forward, up to an
	// implementation-chosen batch size, returning the USN to resume from
	// next. unavailable=true means the requested USN is no longer present
	// in the journal (SPEC_FULL.md §4.5 step 5: "records no longer
	// available"), which the consumer must treat as a rebuild trigger.
	ReadBatch(ctx context.Context, fromUSN int64) (records []Record, nextUSN int64, unavailable bool, err error)
}
