package supervisor

import (
	"github.com/ntfsearch/fastfind/internal/index"
	"github.com/ntfsearch/fastfind/internal/mft"
)

// Win32 FILE_ATTRIBUTE_* bits as carried in STANDARD_INFORMATION's DOS
// flags field (mft.FileRecord.Flags), the subset SPEC_FULL.md §3's
// FileEntry.flags maps from.
const (
	dosHidden    uint32 = 0x2
	dosSystem    uint32 = 0x4
	dosReparse   uint32 = 0x400
	dosCompressed uint32 = 0x800
	dosEncrypted uint32 = 0x4000
	dosSparse    uint32 = 0x200
)

// fileEntryFromRecord converts a Parser/journal-lookup record into the
// Index's FileEntry shape, interning its extension along the way. Shared
// by the rebuild scan and the journal sink's MFT-lookup path so both
// populate entries identically.
func fileEntryFromRecord(rec mft.FileRecord, intern *index.Interner) index.FileEntry {
	var flags index.Flags
	if rec.IsDirectory {
		flags |= index.FlagDirectory
	}
	if rec.Flags&dosHidden != 0 {
		flags |= index.FlagHidden
	}
	if rec.Flags&dosSystem != 0 {
		flags |= index.FlagSystem
	}
	if rec.Flags&dosReparse != 0 {
		flags |= index.FlagReparse
	}
	if rec.Flags&dosCompressed != 0 {
		flags |= index.FlagCompressed
	}
	if rec.Flags&dosEncrypted != 0 {
		flags |= index.FlagEncrypted
	}
	if rec.Flags&dosSparse != 0 {
		flags |= index.FlagSparse
	}

	return index.FileEntry{
		Ref:       index.NewFileRef(rec.Ref, rec.Sequence),
		ParentRef: index.NewFileRef(rec.ParentRef, rec.ParentSeq),
		Name:      rec.Name,
		Size:      rec.Size,
		Flags:     flags,
		MTime:     rec.ModifyTime,
		CTime:     rec.MFTModTime,
		ATime:     rec.AccessTime,
		BTime:     rec.CreateTime,
		ExtTag:    intern.InternExt(rec.Name),
	}
}
