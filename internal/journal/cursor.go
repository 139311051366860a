// Package journal tails the NTFS USN change journal and turns journal
// records into Index mutations, per SPEC_FULL.md §4.5.
package journal

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// Cursor is the persisted position in one volume's USN journal
// (SPEC_FULL.md §3 "JournalCursor"). JournalID identifies the journal
// instance; NextUSN is the next record to read. A JournalID mismatch, or
// a NextUSN older than the journal's current oldest record, forces a full
// rebuild.
type Cursor struct {
	JournalID uint64
	NextUSN   int64
}

// cursorFileMagic and cursorFileVersion match SPEC_FULL.md §6's 24-byte
// sidecar layout exactly: magic u32 = 0x4653464A (stored little-endian, so
// the file starts with the bytes "JFSF"), version u16 = 1,
// reserved u16 = 0, journal_id u64, next_usn i64.
const cursorFileMagic uint32 = 0x4653464A
const cursorFileVersion uint16 = 1
const cursorFileSize = 4 + 2 + 2 + 8 + 8

// LoadCursor reads the sidecar file for a volume, returning ok=false if it
// doesn't exist or is corrupt (zero-length, truncated, bad magic, unknown
// version) — in either case the caller falls back to a full rebuild rather
// than treating this as fatal.
func LoadCursor(sidecarPath string) (Cursor, bool) {
	data, err := os.ReadFile(sidecarPath)
	if err != nil || len(data) != cursorFileSize {
		return Cursor{}, false
	}
	if binary.LittleEndian.Uint32(data[0:4]) != cursorFileMagic {
		return Cursor{}, false
	}
	if binary.LittleEndian.Uint16(data[4:6]) != cursorFileVersion {
		return Cursor{}, false
	}
	return Cursor{
		JournalID: binary.LittleEndian.Uint64(data[8:16]),
		NextUSN:   int64(binary.LittleEndian.Uint64(data[16:24])),
	}, true
}

// SaveCursor persists c atomically: write to a temp file in the same
// directory, then rename over the destination, so a crash mid-write never
// leaves a truncated cursor behind.
func SaveCursor(sidecarPath string, c Cursor) error {
	data := make([]byte, cursorFileSize)
	binary.LittleEndian.PutUint32(data[0:4], cursorFileMagic)
	binary.LittleEndian.PutUint16(data[4:6], cursorFileVersion)
	// data[6:8] reserved, left zero
	binary.LittleEndian.PutUint64(data[8:16], c.JournalID)
	binary.LittleEndian.PutUint64(data[16:24], uint64(c.NextUSN))

	dir := filepath.Dir(sidecarPath)
	tmp, err := os.CreateTemp(dir, ".journal-cursor-*")
	if err != nil {
		return fmt.Errorf("journal: creating cursor temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("journal: writing cursor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("journal: closing cursor temp file: %w", err)
	}
	if err := os.Rename(tmpName, sidecarPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("journal: renaming cursor into place: %w", err)
	}
	return nil
}
