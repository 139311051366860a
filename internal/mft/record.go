package mft

import (
	"encoding/binary"
	"fmt"

	"github.com/ntfsearch/fastfind/internal/apperrors"
)

const (
	recordMagic = "FILE"

	flagInUse     = 0x0001
	flagDirectory = 0x0002
)

// RawRecord is one fixup-applied, parsed-header MFT record, still holding
// its raw attribute bytes for attributes.go to walk.
type RawRecord struct {
	Index       uint64
	SequenceNum uint16
	InUse       bool
	IsDirectory bool
	AttrsOffset uint16
	Base        uint64 // base record reference for an attribute-list extension record; 0 for a base record

	buf []byte
}

// ParseRecordHeader validates magic, applies the fixup array in place, and
// extracts the fields needed to decide whether to walk this record's
// attributes at all. buf is mutated by fixup application.
//
// A record that fails any structural check here is reported via
// apperrors.ErrMalformedRecord or apperrors.ErrFixupFailed; per
// SPEC_FULL.md §4.2 step 2-3, callers must count and skip such records
// rather than abort the scan.
func ParseRecordHeader(index uint64, buf []byte, bytesPerSector uint16) (RawRecord, error) {
	if len(buf) < 48 {
		return RawRecord{}, fmt.Errorf("%w: record %d shorter than header", apperrors.ErrMalformedRecord, index)
	}
	if string(buf[0:4]) != recordMagic {
		return RawRecord{}, fmt.Errorf("%w: record %d bad magic", apperrors.ErrMalformedRecord, index)
	}

	if err := applyFixup(buf, bytesPerSector); err != nil {
		return RawRecord{}, fmt.Errorf("record %d: %w", index, err)
	}

	seq := binary.LittleEndian.Uint16(buf[16:18])
	flags := binary.LittleEndian.Uint16(buf[22:24])
	attrsOffset := binary.LittleEndian.Uint16(buf[20:22])
	baseRef := binary.LittleEndian.Uint64(buf[32:40]) & 0x0000FFFFFFFFFFFF

	if int(attrsOffset) >= len(buf) {
		return RawRecord{}, fmt.Errorf("%w: record %d attribute offset out of range", apperrors.ErrMalformedRecord, index)
	}

	return RawRecord{
		Index:       index,
		SequenceNum: seq,
		InUse:       flags&flagInUse != 0,
		IsDirectory: flags&flagDirectory != 0,
		AttrsOffset: attrsOffset,
		Base:        baseRef,
		buf:         buf,
	}, nil
}

// applyFixup restores the last two bytes of every bytesPerSector-sized
// block from the update-sequence array, per SPEC_FULL.md §4.2 step 2. A
// sector whose trailing two bytes don't match the recorded USN signature
// indicates a torn read; the record must be rejected.
func applyFixup(buf []byte, bytesPerSector uint16) error {
	if bytesPerSector == 0 {
		bytesPerSector = 512
	}
	usaOffset := binary.LittleEndian.Uint16(buf[4:6])
	usaCount := binary.LittleEndian.Uint16(buf[6:8])
	if usaCount == 0 {
		return nil
	}
	if int(usaOffset)+int(usaCount)*2 > len(buf) {
		return fmt.Errorf("%w: update sequence array out of range", apperrors.ErrFixupFailed)
	}

	signature := buf[usaOffset : usaOffset+2]
	numSectors := int(usaCount - 1)
	for i := 0; i < numSectors; i++ {
		sectorEnd := (i+1)*int(bytesPerSector) - 2
		if sectorEnd+2 > len(buf) {
			break
		}
		if buf[sectorEnd] != signature[0] || buf[sectorEnd+1] != signature[1] {
			return fmt.Errorf("%w: sector %d signature mismatch", apperrors.ErrFixupFailed, i)
		}
		replOffset := int(usaOffset) + 2 + i*2
		buf[sectorEnd] = buf[replOffset]
		buf[sectorEnd+1] = buf[replOffset+1]
	}
	return nil
}
