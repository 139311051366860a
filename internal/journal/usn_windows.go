//go:build windows

package journal

import (
	"context"
	"encoding/binary"
	"fmt"
	"unicode/utf16"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	fsctlQueryUSNJournal = 0x000900f4
	fsctlReadUSNJournal  = 0x000900bb
	batchBufferSize      = 1 << 16
)

// usnJournalData mirrors USN_JOURNAL_DATA_V0.
type usnJournalData struct {
	UsnJournalID    uint64
	FirstUsn        int64
	NextUsn         int64
	LowestValidUsn  int64
	MaxUsn          int64
	MaximumSize     uint64
	AllocationDelta uint64
}

// readUSNJournalData mirrors READ_USN_JOURNAL_DATA_V0.
type readUSNJournalData struct {
	StartUsn          int64
	ReasonMask        uint32
	ReturnOnlyOnClose uint32
	Timeout           uint64
	BytesToWaitFor    uint64
	UsnJournalID      uint64
}

// windowsSource implements Source via DeviceIoControl against an open
// volume handle, per SPEC_FULL.md §4.5.
type windowsSource struct {
	handle windows.Handle
}

// NewWindowsSource wraps an already-open raw volume handle (shared with
// internal/volume's reader, which owns the handle's lifecycle) as a
// journal Source.
func NewWindowsSource(h windows.Handle) Source {
	return &windowsSource{handle: h}
}

func (s *windowsSource) QueryJournal(ctx context.Context) (Identity, error) {
	var data usnJournalData
	var bytesReturned uint32
	err := windows.DeviceIoControl(
		s.handle,
		fsctlQueryUSNJournal,
		nil, 0,
		(*byte)(unsafe.Pointer(&data)), uint32(unsafe.Sizeof(data)),
		&bytesReturned, nil,
	)
	if err != nil {
		return Identity{}, fmt.Errorf("journal: FSCTL_QUERY_USN_JOURNAL: %w", err)
	}
	return Identity{JournalID: data.UsnJournalID, FirstUSN: data.FirstUsn, NextUSN: data.NextUsn}, nil
}

func (s *windowsSource) ReadBatch(ctx context.Context, fromUSN int64) ([]Record, int64, bool, error) {
	identity, err := s.QueryJournal(ctx)
	if err != nil {
		return nil, fromUSN, false, err
	}
	if fromUSN < identity.FirstUSN {
		return nil, fromUSN, true, nil
	}

	req := readUSNJournalData{
		StartUsn:       fromUSN,
		ReasonMask:     0xFFFFFFFF,
		Timeout:        0,
		BytesToWaitFor: 0,
		UsnJournalID:   identity.JournalID,
	}
	out := make([]byte, batchBufferSize)
	var bytesReturned uint32
	err = windows.DeviceIoControl(
		s.handle,
		fsctlReadUSNJournal,
		(*byte)(unsafe.Pointer(&req)), uint32(unsafe.Sizeof(req)),
		&out[0], uint32(len(out)),
		&bytesReturned, nil,
	)
	if err != nil {
		return nil, fromUSN, false, fmt.Errorf("journal: FSCTL_READ_USN_JOURNAL: %w", err)
	}
	if bytesReturned < 8 {
		return nil, fromUSN, false, nil
	}

	nextUSN := int64(binary.LittleEndian.Uint64(out[0:8]))
	records := decodeUSNRecords(out[8:bytesReturned])
	return records, nextUSN, false, nil
}

// decodeUSNRecords walks a buffer of back-to-back USN_RECORD_V2 entries.
func decodeUSNRecords(buf []byte) []Record {
	var records []Record
	off := 0
	for off+60 <= len(buf) {
		recordLen := binary.LittleEndian.Uint32(buf[off:])
		if recordLen == 0 || int(recordLen) > len(buf)-off {
			break
		}
		entry := buf[off : off+int(recordLen)]

		fileRefNumber := binary.LittleEndian.Uint64(entry[8:16]) & 0x0000FFFFFFFFFFFF
		parentRefNumber := binary.LittleEndian.Uint64(entry[16:24]) & 0x0000FFFFFFFFFFFF
		usn := int64(binary.LittleEndian.Uint64(entry[24:32]))
		timestamp := binary.LittleEndian.Uint64(entry[32:40])
		reason := binary.LittleEndian.Uint32(entry[40:44])
		fileAttrs := binary.LittleEndian.Uint32(entry[52:56])
		nameLen := binary.LittleEndian.Uint16(entry[56:58])
		nameOffset := binary.LittleEndian.Uint16(entry[58:60])

		var name string
		if int(nameOffset)+int(nameLen) <= len(entry) {
			name = decodeUTF16(entry[nameOffset : int(nameOffset)+int(nameLen)])
		}

		records = append(records, Record{
			USN:         usn,
			FileRef:     fileRefNumber,
			ParentRef:   parentRefNumber,
			Name:        name,
			Reason:      reason,
			Timestamp:   timestamp,
			IsDirectory: fileAttrs&0x10 != 0, // FILE_ATTRIBUTE_DIRECTORY
		})
		off += int(recordLen)
	}
	return records
}

func decodeUTF16(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	u16 := make([]uint16, len(b)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(u16))
}
