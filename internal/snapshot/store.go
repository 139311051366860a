// Package snapshot persists a best-effort copy of a volume's Index to
// speed up cold start, per SPEC_FULL.md §4.9. It is strictly an
// accelerant: the Query Engine never reads a snapshot directly, and a
// version or journal-identity mismatch simply sends the caller back to a
// full MFT scan.
//
// Grounded on backend/cache/storage_persistent.go's bbolt wrapper idiom:
// one bucket per keyspace, bolt.Open with a wait timeout, JSON-encoded
// values, big-endian encoded integer keys.
package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	formatMagic   = "FFSS" // fastfind snapshot
	formatVersion = uint32(1)

	metaBucket    = "meta"
	entriesBucket = "entries"

	keyMagic      = "magic"
	keyVersion    = "version"
	keyJournalID  = "journal_id"
	keyGeneration = "generation"
	keyLastUSN    = "last_usn"
	keySavedAt    = "saved_at"
)

// Entry is the subset of index.FileEntry persisted to disk. Kept as its
// own type (rather than importing internal/index) so this package stays
// on the "named interfaces only" side of the component boundary; the
// Supervisor's rebuild adapter converts to/from index.FileEntry.
type Entry struct {
	Ref       uint64
	ParentRef uint64
	Name      string
	Size      uint64
	Flags     uint16
	MTime     uint64
	CTime     uint64
	ATime     uint64
	BTime     uint64
}

// Snapshot is what Load returns: the persisted entries plus the bookkeeping
// needed to decide whether they're still valid against the live journal.
type Snapshot struct {
	JournalID  uint64
	Generation uint64
	LastUSN    int64
	SavedAt    time.Time
	Entries    []Entry
}

// Store owns one bbolt database file per volume's snapshot directory.
type Store struct {
	dir         string
	waitTimeout time.Duration
}

// Options configures a Store.
type Options struct {
	// WaitTimeout bounds how long Open waits for bbolt's file lock before
	// giving up, matching the teacher's Features.DbWaitTime.
	WaitTimeout time.Duration
}

// DefaultOptions returns a short, non-blocking wait: a locked snapshot
// file should never stall service startup.
func DefaultOptions() Options {
	return Options{WaitTimeout: 2 * time.Second}
}

// New builds a Store rooted at dir (created if missing). Each volume gets
// its own bbolt file, named after the drive letter, so one corrupt or
// locked snapshot can't affect another volume's warm start.
func New(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create snapshot dir %q: %w", dir, err)
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultOptions().WaitTimeout
	}
	return &Store{dir: dir, waitTimeout: opts.WaitTimeout}, nil
}

func (s *Store) dbPath(volume string) string {
	safe := filepath.Base(volume) // "C:" -> "C:" already has no separator, Base is defense-in-depth
	return filepath.Join(s.dir, safe+".snap")
}

// Save writes a full snapshot for volume, replacing whatever was there.
// Best-effort by contract: callers log and continue on error rather than
// treat it as fatal, since a snapshot is never required for correctness.
func (s *Store) Save(volume string, journalID, generation uint64, lastUSN int64, entries []Entry) error {
	db, err := bolt.Open(s.dbPath(volume), 0o644, &bolt.Options{Timeout: s.waitTimeout})
	if err != nil {
		return fmt.Errorf("snapshot: open %q: %w", volume, err)
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(metaBucket)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		if err := tx.DeleteBucket([]byte(entriesBucket)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		meta, err := tx.CreateBucket([]byte(metaBucket))
		if err != nil {
			return err
		}
		ents, err := tx.CreateBucket([]byte(entriesBucket))
		if err != nil {
			return err
		}

		if err := meta.Put([]byte(keyMagic), []byte(formatMagic)); err != nil {
			return err
		}
		if err := meta.Put([]byte(keyVersion), itob32(formatVersion)); err != nil {
			return err
		}
		if err := meta.Put([]byte(keyJournalID), itob64(journalID)); err != nil {
			return err
		}
		if err := meta.Put([]byte(keyGeneration), itob64(generation)); err != nil {
			return err
		}
		if err := meta.Put([]byte(keyLastUSN), itob64(uint64(lastUSN))); err != nil {
			return err
		}
		if err := meta.Put([]byte(keySavedAt), itob64(uint64(time.Now().UnixNano()))); err != nil {
			return err
		}

		for _, e := range entries {
			encoded, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("snapshot: marshal entry %d: %w", e.Ref, err)
			}
			if err := ents.Put(itob64(e.Ref), encoded); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads a prior snapshot for volume. ok is false (with a nil error)
// whenever the file is absent, the header doesn't match this binary's
// format version, or the caller's expectedJournalID doesn't match the
// one the snapshot was saved under — any of which means the caller must
// fall back to a full MFT scan, per SPEC_FULL.md §4.9.
func (s *Store) Load(volume string, expectedJournalID uint64) (Snapshot, bool, error) {
	path := s.dbPath(volume)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Snapshot{}, false, nil
	}

	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: s.waitTimeout, ReadOnly: true})
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("snapshot: open %q: %w", volume, err)
	}
	defer db.Close()

	var snap Snapshot
	ok := true
	err = db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		ents := tx.Bucket([]byte(entriesBucket))
		if meta == nil || ents == nil {
			ok = false
			return nil
		}
		if string(meta.Get([]byte(keyMagic))) != formatMagic {
			ok = false
			return nil
		}
		if btoi32(meta.Get([]byte(keyVersion))) != formatVersion {
			ok = false
			return nil
		}
		journalID := btoi64(meta.Get([]byte(keyJournalID)))
		if journalID != expectedJournalID {
			ok = false
			return nil
		}
		snap.JournalID = journalID
		snap.Generation = btoi64(meta.Get([]byte(keyGeneration)))
		snap.LastUSN = int64(btoi64(meta.Get([]byte(keyLastUSN))))
		snap.SavedAt = time.Unix(0, int64(btoi64(meta.Get([]byte(keySavedAt)))))

		c := ents.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				ok = false
				return nil
			}
			snap.Entries = append(snap.Entries, e)
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, false, err
	}
	if !ok {
		return Snapshot{}, false, nil
	}
	return snap, true, nil
}

// Delete removes a volume's snapshot file entirely, used when a rebuild
// makes it untrustworthy for future starts (e.g. after repeated corrupt
// loads) rather than merely stale.
func (s *Store) Delete(volume string) error {
	err := os.Remove(s.dbPath(volume))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func itob64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func itob32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func btoi32(b []byte) uint32 {
	if len(b) != 4 {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}
