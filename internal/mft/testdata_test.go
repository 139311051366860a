package mft

import (
	"encoding/binary"
	"unicode/utf16"
)

// recordBuilder assembles a synthetic, fixup-correct MFT record for tests,
// avoiding a dependency on a real NTFS image.
type recordBuilder struct {
	buf            []byte
	bytesPerSector uint16
	attrsOffset    uint16
	nextOff        int
}

func newRecordBuilder(recordSize int, bytesPerSector uint16, seq uint16, inUse, isDir bool) *recordBuilder {
	buf := make([]byte, recordSize)
	copy(buf[0:4], "FILE")
	binary.LittleEndian.PutUint16(buf[4:6], 48)  // update sequence array offset
	numSectors := recordSize / int(bytesPerSector)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(numSectors+1))
	binary.LittleEndian.PutUint16(buf[16:18], seq)
	binary.LittleEndian.PutUint16(buf[18:20], 1) // link count
	binary.LittleEndian.PutUint16(buf[20:22], 56) // attrs offset, past the USA region
	var flags uint16
	if inUse {
		flags |= flagInUse
	}
	if isDir {
		flags |= flagDirectory
	}
	binary.LittleEndian.PutUint16(buf[22:24], flags)

	// update sequence signature at offset 48, two bytes, arbitrary nonzero value
	binary.LittleEndian.PutUint16(buf[48:50], 0xABCD)

	return &recordBuilder{buf: buf, bytesPerSector: bytesPerSector, attrsOffset: 56}
}

func (b *recordBuilder) appendResidentAttr(typ uint32, value []byte) {
	off := b.attrsOffsetForAppend()
	headerLen := 24
	total := headerLen + len(value)
	total = (total + 7) &^ 7 // 8-byte align, matching real NTFS attribute padding
	binary.LittleEndian.PutUint32(b.buf[off:], typ)
	binary.LittleEndian.PutUint32(b.buf[off+4:], uint32(total))
	b.buf[off+8] = 0 // resident
	b.buf[off+9] = 0 // name length
	binary.LittleEndian.PutUint16(b.buf[off+10:], uint16(headerLen))
	binary.LittleEndian.PutUint32(b.buf[off+16:], uint32(len(value)))
	binary.LittleEndian.PutUint16(b.buf[off+20:], uint16(headerLen))
	copy(b.buf[off+headerLen:], value)
	b.bumpAttrsEnd(off + total)
}

func (b *recordBuilder) attrsOffsetForAppend() int {
	if b.nextOff == 0 {
		return int(b.attrsOffset)
	}
	return b.nextOff
}

func (b *recordBuilder) bumpAttrsEnd(off int) {
	b.nextOff = off
}

func (b *recordBuilder) appendNonResidentAttr(typ uint32, value []byte) {
	off := b.attrsOffsetForAppend()
	headerLen := 64 // 16-byte common header + 48-byte non-resident fields
	total := headerLen + len(value)
	total = (total + 7) &^ 7
	binary.LittleEndian.PutUint32(b.buf[off:], typ)
	binary.LittleEndian.PutUint32(b.buf[off+4:], uint32(total))
	b.buf[off+8] = 1 // non-resident
	b.buf[off+9] = 0 // name length
	binary.LittleEndian.PutUint16(b.buf[off+10:], uint16(headerLen))
	copy(b.buf[off+16:], value)
	b.bumpAttrsEnd(off + total)
}

func (b *recordBuilder) finish() []byte {
	off := b.attrsOffsetForAppend()
	binary.LittleEndian.PutUint32(b.buf[off:], attrEndMarker)
	applyFixupInPlace(b.buf, b.bytesPerSector)
	return b.buf
}

// applyFixupInPlace writes the USA-protected sector trailers to match the
// signature at the USA offset, the inverse of applyFixup, so the resulting
// buffer passes ParseRecordHeader's fixup validation.
func applyFixupInPlace(buf []byte, bytesPerSector uint16) {
	usaOffset := binary.LittleEndian.Uint16(buf[4:6])
	usaCount := binary.LittleEndian.Uint16(buf[6:8])
	signature := buf[usaOffset : usaOffset+2]
	numSectors := int(usaCount - 1)
	for i := 0; i < numSectors; i++ {
		sectorEnd := (i+1)*int(bytesPerSector) - 2
		if sectorEnd+2 > len(buf) {
			break
		}
		replOffset := int(usaOffset) + 2 + i*2
		copy(buf[replOffset:replOffset+2], buf[sectorEnd:sectorEnd+2])
		buf[sectorEnd] = signature[0]
		buf[sectorEnd+1] = signature[1]
	}
}

func encodeUTF16(s string) []byte {
	u16 := utf16.Encode([]rune(s))
	out := make([]byte, len(u16)*2)
	for i, u := range u16 {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	return out
}

func putUint64(b []byte, off int, v uint64) { binary.LittleEndian.PutUint64(b[off:off+8], v) }
func putUint16(b []byte, off int, v uint16) { binary.LittleEndian.PutUint16(b[off:off+2], v) }

// encodeRun produces a single data-run entry: a signed LCN offset and an
// unsigned cluster length, in the minimal byte width that fits each.
func encodeRun(lcn int64, length uint64) []byte {
	lenBytes := minBytesUnsigned(length)
	offBytes := minBytesSigned(lcn)
	out := make([]byte, 1+lenBytes+offBytes)
	out[0] = byte(lenBytes) | byte(offBytes<<4)
	for i := 0; i < lenBytes; i++ {
		out[1+i] = byte(length >> (8 * i))
	}
	for i := 0; i < offBytes; i++ {
		out[1+lenBytes+i] = byte(lcn >> (8 * i))
	}
	return out
}

func minBytesUnsigned(v uint64) int {
	n := 1
	for v>>(8*uint(n)) != 0 {
		n++
	}
	return n
}

func minBytesSigned(v int64) int {
	n := 1
	for {
		shifted := v >> (8*uint(n) - 1)
		if shifted == 0 || shifted == -1 {
			return n
		}
		n++
	}
}

func stdInfoValue(create, modify, mftmod, access uint64, dosFlags uint32) []byte {
	v := make([]byte, 48)
	binary.LittleEndian.PutUint64(v[0:8], create)
	binary.LittleEndian.PutUint64(v[8:16], modify)
	binary.LittleEndian.PutUint64(v[16:24], mftmod)
	binary.LittleEndian.PutUint64(v[24:32], access)
	binary.LittleEndian.PutUint32(v[32:36], dosFlags)
	return v
}

func fileNameValue(parentRef uint64, parentSeq uint16, name string, ns Namespace, realSize uint64) []byte {
	nameBytes := encodeUTF16(name)
	v := make([]byte, 66+len(nameBytes))
	packed := (parentRef & 0x0000FFFFFFFFFFFF) | (uint64(parentSeq) << 48)
	binary.LittleEndian.PutUint64(v[0:8], packed)
	binary.LittleEndian.PutUint64(v[40:48], realSize)
	binary.LittleEndian.PutUint64(v[48:56], realSize)
	v[64] = byte(len(name))
	v[65] = byte(ns)
	copy(v[66:], nameBytes)
	return v
}
