package mft

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ntfsearch/fastfind/internal/apperrors"
)

// ClusterReader is the narrow seam between this package and the Volume
// Reader (internal/volume): a byte-addressable view of a raw volume's
// clusters. Kept as an interface so record.go/parser.go can be tested
// against an in-memory fake without a real NTFS volume.
type ClusterReader interface {
	ReadClusters(ctx context.Context, lcn uint64, count int) ([]byte, error)
}

const maxAttributeListDepth = 8

// FileRecord is the MFT Parser's output, handed to the Index by the caller
// (the rebuild worker in internal/supervisor) after translation to
// index.FileEntry. Kept distinct from index.FileEntry so this package has
// no dependency on the index package's eviction/budget concerns.
type FileRecord struct {
	Ref         uint64 // record number, 48 bits
	Sequence    uint16
	ParentRef   uint64
	ParentSeq   uint16
	Name        string
	Size        uint64
	IsDirectory bool
	Flags       uint32 // STANDARD_INFORMATION DOS flags
	CreateTime  uint64
	ModifyTime  uint64
	MFTModTime  uint64
	AccessTime  uint64
}

// Parser decodes MFT records from a volume once $MFT's own data runs have
// been located, per SPEC_FULL.md §4.2.
type Parser struct {
	reader   ClusterReader
	boot     BootSectorInfo
	mftRuns  []DataRun
	log      *logrus.Entry
}

// NewParser locates $MFT's data runs by reading and parsing record 0
// (which NTFS always places contiguously at boot.MFTStartLCN) and returns a
// Parser ready to decode any other record by index.
func NewParser(ctx context.Context, reader ClusterReader, boot BootSectorInfo, log *logrus.Entry) (*Parser, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	clustersForRecord0 := (boot.MFTRecordSize + boot.ClusterSize - 1) / boot.ClusterSize
	raw, err := reader.ReadClusters(ctx, boot.MFTStartLCN, clustersForRecord0)
	if err != nil {
		return nil, fmt.Errorf("mft: reading record 0: %w", err)
	}
	if len(raw) < boot.MFTRecordSize {
		return nil, fmt.Errorf("%w: record 0 truncated", apperrors.ErrMalformedRecord)
	}
	raw = raw[:boot.MFTRecordSize]

	rec, err := ParseRecordHeader(0, raw, boot.BytesPerSector)
	if err != nil {
		return nil, fmt.Errorf("mft: parsing $MFT's own record: %w", err)
	}

	var runs []DataRun
	WalkAttributes(rec.buf, rec.AttrsOffset, func(h attrHeader, body []byte) bool {
		if h.Type != AttrData || h.NameLength != 0 {
			return true
		}
		if !h.NonResident || len(body) < 64 {
			return true
		}
		dataRunsOff := leUint16(body, 32)
		if int(dataRunsOff) >= len(body) {
			return true
		}
		runs = ParseDataRuns(body[dataRunsOff:])
		return false
	})
	if runs == nil {
		return nil, fmt.Errorf("%w: $MFT has no non-resident DATA attribute", apperrors.ErrMalformedRecord)
	}

	return &Parser{reader: reader, boot: boot, mftRuns: runs, log: log.WithField("component", "mft")}, nil
}

func leUint16(b []byte, off int) uint16 { return uint16(b[off]) | uint16(b[off+1])<<8 }

// RecordCount estimates the number of MFT record slots by the total
// cluster span of $MFT's data runs.
func (p *Parser) RecordCount() uint64 {
	totalBytes := TotalClusters(p.mftRuns) * uint64(p.boot.ClusterSize)
	return totalBytes / uint64(p.boot.MFTRecordSize)
}

// readRecordBytes maps a record index to its absolute byte offset within
// the $MFT stream and reads it, crossing data-run boundaries as needed.
func (p *Parser) readRecordBytes(ctx context.Context, index uint64) ([]byte, error) {
	byteOffset := index * uint64(p.boot.MFTRecordSize)
	out := make([]byte, 0, p.boot.MFTRecordSize)

	var vcnCursor uint64
	remaining := uint64(p.boot.MFTRecordSize)
	need := byteOffset

	for _, run := range p.mftRuns {
		runBytes := run.Length * uint64(p.boot.ClusterSize)
		if need >= runBytes {
			need -= runBytes
			vcnCursor += run.Length
			continue
		}

		startCluster := need / uint64(p.boot.ClusterSize)
		startOffsetInCluster := need % uint64(p.boot.ClusterSize)
		clustersNeeded := int((startOffsetInCluster+remaining+uint64(p.boot.ClusterSize)-1)/uint64(p.boot.ClusterSize)) + 1
		if startCluster+uint64(clustersNeeded) > run.Length {
			clustersNeeded = int(run.Length - startCluster)
		}

		var chunk []byte
		if run.Sparse {
			chunk = make([]byte, uint64(clustersNeeded)*uint64(p.boot.ClusterSize))
		} else {
			var err error
			chunk, err = p.reader.ReadClusters(ctx, uint64(run.LCN)+startCluster, clustersNeeded)
			if err != nil {
				return nil, err
			}
		}

		avail := uint64(len(chunk)) - startOffsetInCluster
		take := remaining
		if avail < take {
			take = avail
		}
		out = append(out, chunk[startOffsetInCluster:startOffsetInCluster+take]...)
		remaining -= take
		need = 0

		if remaining == 0 {
			break
		}
	}

	if remaining != 0 {
		return nil, fmt.Errorf("%w: record %d spans beyond $MFT's data runs", apperrors.ErrMalformedRecord, index)
	}
	return out, nil
}

// extensionRecord holds the attribute walk needed to merge an
// ATTRIBUTE_LIST's out-of-band attributes into a base record's decode.
type extensionRecord struct {
	attrsOffset uint16
	buf         []byte
}

// ParseRecord decodes a single MFT record, resolving ATTRIBUTE_LIST
// references into extension records as needed (SPEC_FULL.md §4.2 step 5).
// It returns (FileRecord{}, false, nil) for records that should be
// silently skipped (not in use, an extension record of another base
// record, no FILE_NAME found) rather than treated as a parse failure.
func (p *Parser) ParseRecord(ctx context.Context, index uint64) (FileRecord, bool, error) {
	raw, err := p.readRecordBytes(ctx, index)
	if err != nil {
		return FileRecord{}, false, err
	}

	rec, err := ParseRecordHeader(index, raw, p.boot.BytesPerSector)
	if err != nil {
		return FileRecord{}, false, err
	}
	if !rec.InUse {
		return FileRecord{}, false, nil
	}
	if rec.Base != 0 {
		// Extension record of some other base; only walked via ATTRIBUTE_LIST.
		return FileRecord{}, false, nil
	}

	var (
		std        StandardInfo
		haveStd    bool
		names      []FileNameAttr
		size       uint64
		haveSize   bool
		attrLists  [][]byte
	)

	collect := func(buf []byte, attrsOffset uint16) {
		WalkAttributes(buf, attrsOffset, func(h attrHeader, body []byte) bool {
			switch h.Type {
			case AttrStandardInformation:
				if s, ok := ParseStandardInformation(h, body); ok {
					std, haveStd = s, true
				}
			case AttrFileName:
				if n, ok := ParseFileName(h, body); ok {
					names = append(names, n)
				}
			case AttrData:
				if s, ok := ParseDataSize(h, body); ok {
					size, haveSize = s, true
				}
			case AttrAttributeList:
				attrLists = append(attrLists, body)
			}
			return true
		})
	}
	collect(rec.buf, rec.AttrsOffset)

	if len(attrLists) > 0 {
		if err := p.followAttributeLists(ctx, attrLists, collect); err != nil {
			return FileRecord{}, false, err
		}
	}

	if !haveStd {
		return FileRecord{}, false, fmt.Errorf("%w: record %d missing STANDARD_INFORMATION", apperrors.ErrMalformedRecord, index)
	}
	best, ok := BestFileName(names)
	if !ok {
		return FileRecord{}, false, nil
	}
	_ = haveSize // 0 is a valid logical size (directories, empty files)

	return FileRecord{
		Ref:         index,
		Sequence:    rec.SequenceNum,
		ParentRef:   best.ParentRef,
		ParentSeq:   best.ParentSeq,
		Name:        best.Name,
		Size:        size,
		IsDirectory: rec.IsDirectory,
		Flags:       std.DOSFlags,
		CreateTime:  std.CreateTime,
		ModifyTime:  std.ModifyTime,
		MFTModTime:  std.MFTModifyTime,
		AccessTime:  std.AccessTime,
	}, true, nil
}

// followAttributeLists resolves ATTRIBUTE_LIST entries to their referenced
// extension records and feeds each through collect, bounding recursion
// depth and guarding against reference cycles per SPEC_FULL.md §4.2 step 5.
func (p *Parser) followAttributeLists(ctx context.Context, lists [][]byte, collect func([]byte, uint16)) error {
	visited := make(map[uint64]bool)
	for _, list := range lists {
		refs := parseAttributeListRefs(list)
		if len(refs) > maxAttributeListDepth {
			return fmt.Errorf("%w: attribute list has %d entries", apperrors.ErrAttributeListCycle, len(refs))
		}
		for _, ref := range refs {
			recNum := ref & 0x0000FFFFFFFFFFFF
			if visited[recNum] {
				return fmt.Errorf("%w: record revisited via attribute list", apperrors.ErrAttributeListCycle)
			}
			visited[recNum] = true
			if len(visited) > maxAttributeListDepth {
				return fmt.Errorf("%w: depth exceeds %d", apperrors.ErrAttributeListCycle, maxAttributeListDepth)
			}

			extBuf, err := p.readRecordBytes(ctx, recNum)
			if err != nil {
				continue // extension record unreadable: skip it, not fatal to the base record
			}
			extRec, err := ParseRecordHeader(recNum, extBuf, p.boot.BytesPerSector)
			if err != nil {
				continue
			}
			collect(extRec.buf, extRec.AttrsOffset)
		}
	}
	return nil
}

// parseAttributeListRefs extracts the base-record references (48-bit
// record number packed with a 16-bit sequence, matching FileRef.Packed) of
// every entry in an ATTRIBUTE_LIST body.
func parseAttributeListRefs(body []byte) []uint64 {
	var refs []uint64
	off := 0
	for off+26 <= len(body) {
		entryLen := leUint16(body, off+4)
		if entryLen == 0 || off+int(entryLen) > len(body) {
			break
		}
		fileRef := leUint64(body, off+16)
		refs = append(refs, fileRef)
		off += int(entryLen)
	}
	return refs
}

func leUint64(b []byte, off int) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[off+i]) << (8 * i)
	}
	return v
}

// ScanResult is one outcome of a parallel full-volume scan: either a
// decoded record, or a count of a malformed/skipped record at a given
// index, for status reporting per SPEC_FULL.md §4.2 "Failure".
type ScanResult struct {
	Record  FileRecord
	Skipped bool
}

// ScanAll walks every record index in parallel across `workers` goroutines
// (SPEC_FULL.md §4.2 "parallelizable across disjoint record ranges"),
// calling emit for each successfully decoded record. Malformed records are
// logged and counted, never aborting the scan. emit must be safe for
// concurrent use from multiple goroutines; batching into the Index is the
// caller's responsibility.
func (p *Parser) ScanAll(ctx context.Context, workers int, emit func(FileRecord)) (malformed int64, err error) {
	if workers < 1 {
		workers = 1
	}
	count := p.RecordCount()

	g, gctx := errgroup.WithContext(ctx)
	chunks := splitRange(count, workers)
	var skippedCounts = make([]int64, len(chunks))

	for ci, c := range chunks {
		ci, c := ci, c
		g.Go(func() error {
			var local int64
			for i := c.start; i < c.end; i++ {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				rec, ok, perr := p.ParseRecord(gctx, i)
				if perr != nil {
					local++
					p.log.WithError(perr).WithField("record", i).Warn("skipping malformed MFT record")
					continue
				}
				if !ok {
					continue
				}
				emit(rec)
			}
			skippedCounts[ci] = local
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	var total int64
	for _, c := range skippedCounts {
		total += c
	}
	return total, nil
}

type recordRange struct{ start, end uint64 }

func splitRange(count uint64, workers int) []recordRange {
	if count == 0 {
		return nil
	}
	chunkSize := count / uint64(workers)
	if chunkSize == 0 {
		chunkSize = 1
	}
	var ranges []recordRange
	for start := uint64(0); start < count; start += chunkSize {
		end := start + chunkSize
		if end > count {
			end = count
		}
		ranges = append(ranges, recordRange{start, end})
	}
	// Merge a tiny trailing range into the previous one rather than spawn
	// an extra near-empty worker.
	if len(ranges) > workers && len(ranges) >= 2 {
		last := ranges[len(ranges)-1]
		ranges = ranges[:len(ranges)-1]
		ranges[len(ranges)-1].end = last.end
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })
	return ranges
}
