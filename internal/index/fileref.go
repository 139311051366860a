package index

import "fmt"

// FileRef is the 64-bit stable identity NTFS uses to name a file across
// time: a 48-bit MFT record number plus a 16-bit sequence number that
// changes whenever the record slot is reused for a different file.
type FileRef struct {
	Record   uint64 // low 48 bits significant
	Sequence uint16
}

// NewFileRef packs a record number and sequence number, masking the record
// number to 48 bits the way an MFT reference field itself is laid out.
func NewFileRef(record uint64, sequence uint16) FileRef {
	return FileRef{Record: record & 0x0000FFFFFFFFFFFF, Sequence: sequence}
}

// Packed returns the NTFS on-disk 64-bit encoding: sequence in the high
// 16 bits, record number in the low 48.
func (r FileRef) Packed() uint64 {
	return (uint64(r.Sequence) << 48) | (r.Record & 0x0000FFFFFFFFFFFF)
}

// FromPacked unpacks a raw 64-bit MFT reference field.
func FromPacked(v uint64) FileRef {
	return FileRef{Record: v & 0x0000FFFFFFFFFFFF, Sequence: uint16(v >> 48)}
}

func (r FileRef) String() string {
	return fmt.Sprintf("%d#%d", r.Record, r.Sequence)
}

// RootRef is the well-known reference of the NTFS root directory record.
var RootRef = FileRef{Record: 5, Sequence: 5}
