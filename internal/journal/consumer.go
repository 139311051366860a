package journal

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// MutationKind classifies the Index operation a translated journal record
// requires.
type MutationKind int

const (
	MutationUpsert MutationKind = iota
	MutationRemove
)

// Mutation is one Index operation derived from a USN record, per the
// reason-flag translation table in SPEC_FULL.md §4.5 step 3.
type Mutation struct {
	Kind        MutationKind
	Ref         uint64
	ParentRef   uint64
	Name        string
	Timestamp   uint64
	// NeedsLookup is set on every upsert mutation, since a USN payload
	// doesn't carry size or full timestamps; the Sink that applies the
	// mutation re-reads the MFT record to fill them in. The Consumer itself
	// does no lookup.
	NeedsLookup bool
}

// Sink receives translated mutations and cursor advances. Implemented by
// the Supervisor's per-volume wiring over internal/index; kept as an
// interface so Consumer has no compile-time dependency on the index
// package, matching the "named interfaces only" boundary between
// components in SPEC_FULL.md §2.
type Sink interface {
	Apply(ctx context.Context, m Mutation) error
	SetLastAppliedUSN(usn int64)
}

// Rebuilder performs a full MFT rescan into a fresh index generation, used
// both for the initial scan and whenever the journal can no longer be
// trusted incrementally (SPEC_FULL.md §4.5 step 2 and step 5).
type Rebuilder interface {
	Rebuild(ctx context.Context) error
}

// Consumer tails one volume's USN journal per SPEC_FULL.md §4.5.
type Consumer struct {
	Volume      string
	SidecarPath string
	Source      Source
	Sink        Sink
	Rebuild     Rebuilder
	PollInterval time.Duration // default 250ms, SPEC_FULL.md §5 "bounded blocking read with timeout"
	log         *logrus.Entry
}

// NewConsumer constructs a Consumer with the spec's default poll interval.
func NewConsumer(volume, sidecarPath string, source Source, sink Sink, rebuild Rebuilder, log *logrus.Entry) *Consumer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Consumer{
		Volume:       volume,
		SidecarPath:  sidecarPath,
		Source:       source,
		Sink:         sink,
		Rebuild:      rebuild,
		PollInterval: 250 * time.Millisecond,
		log:          log.WithField("volume", volume).WithField("component", "journal"),
	}
}

// Run executes the consumer's startup reconciliation and then its
// steady-state batch loop, blocking until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	cursor, needRebuild, err := c.reconcileStartup(ctx)
	if err != nil {
		return err
	}
	if needRebuild {
		if err := c.doRebuild(ctx, "startup reconciliation"); err != nil {
			return err
		}
		identity, err := c.Source.QueryJournal(ctx)
		if err != nil {
			return err
		}
		cursor = Cursor{JournalID: identity.JournalID, NextUSN: identity.NextUSN}
		if err := SaveCursor(c.SidecarPath, cursor); err != nil {
			c.log.WithError(err).Warn("failed to persist cursor after rebuild")
		}
	}

	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			next, rebuildNeeded, err := c.consumeOneBatch(ctx, cursor)
			if err != nil {
				return err
			}
			if rebuildNeeded {
				if err := c.doRebuild(ctx, "journal records no longer available"); err != nil {
					return err
				}
				identity, err := c.Source.QueryJournal(ctx)
				if err != nil {
					return err
				}
				cursor = Cursor{JournalID: identity.JournalID, NextUSN: identity.NextUSN}
			} else {
				cursor = next
			}
			if err := SaveCursor(c.SidecarPath, cursor); err != nil {
				c.log.WithError(err).Warn("failed to persist journal cursor")
			}
		}
	}
}

// reconcileStartup implements SPEC_FULL.md §4.5 steps 1-2: load the
// persisted cursor, compare it against the live journal's identity and
// oldest USN, and decide whether incremental catch-up is possible.
func (c *Consumer) reconcileStartup(ctx context.Context) (Cursor, bool, error) {
	cursor, ok := LoadCursor(c.SidecarPath)
	if !ok {
		c.log.Info("no journal cursor on disk, full rebuild required")
		return Cursor{}, true, nil
	}

	identity, err := c.Source.QueryJournal(ctx)
	if err != nil {
		return Cursor{}, false, err
	}
	if identity.JournalID != cursor.JournalID {
		c.log.Info("journal identity changed since last run, full rebuild required")
		return Cursor{}, true, nil
	}
	if cursor.NextUSN < identity.FirstUSN {
		c.log.Info("persisted cursor older than journal's oldest record, full rebuild required")
		return Cursor{}, true, nil
	}
	return cursor, false, nil
}

// consumeOneBatch reads and applies one bounded batch of journal records,
// per SPEC_FULL.md §4.5 step 3-4.
func (c *Consumer) consumeOneBatch(ctx context.Context, cursor Cursor) (Cursor, bool, error) {
	records, nextUSN, unavailable, err := c.Source.ReadBatch(ctx, cursor.NextUSN)
	if err != nil {
		return cursor, false, err
	}
	if unavailable {
		return cursor, true, nil
	}
	if len(records) == 0 {
		return cursor, false, nil
	}

	for _, r := range records {
		m, ok := translateRecord(r)
		if !ok {
			continue
		}
		if err := c.Sink.Apply(ctx, m); err != nil {
			c.log.WithError(err).WithField("ref", r.FileRef).Warn("failed to apply journal mutation")
		}
	}

	result := Cursor{JournalID: cursor.JournalID, NextUSN: nextUSN}
	c.Sink.SetLastAppliedUSN(nextUSN)
	return result, false, nil
}

// Translate implements the reason-flag table from SPEC_FULL.md §4.5 step 3,
// exported so the rebuild worker can apply the same mapping when draining
// journal activity accumulated during a full scan (SPEC_FULL.md §4.5
// "Rebuild").
func Translate(r Record) (Mutation, bool) {
	return translateRecord(r)
}

// translateRecord implements the reason-flag table from SPEC_FULL.md §4.5
// step 3. A record whose reason bits don't match any case is ignored.
func translateRecord(r Record) (Mutation, bool) {
	switch {
	case r.Reason&(ReasonFileCreate|ReasonRenameNewName) != 0:
		return Mutation{Kind: MutationUpsert, Ref: r.FileRef, ParentRef: r.ParentRef, Name: r.Name, Timestamp: r.Timestamp, NeedsLookup: true}, true
	case r.Reason&ReasonFileDelete != 0:
		return Mutation{Kind: MutationRemove, Ref: r.FileRef}, true
	case r.Reason&ReasonRenameOldName != 0 && r.Reason&ReasonClose != 0:
		return Mutation{Kind: MutationRemove, Ref: r.FileRef}, true
	case r.Reason&(ReasonDataExtend|ReasonBasicInfoChange) != 0:
		return Mutation{Kind: MutationUpsert, Ref: r.FileRef, ParentRef: r.ParentRef, Name: r.Name, Timestamp: r.Timestamp, NeedsLookup: true}, true
	case r.Reason&ReasonDataOverwrite != 0 && r.Reason&ReasonClose != 0:
		return Mutation{Kind: MutationUpsert, Ref: r.FileRef, ParentRef: r.ParentRef, Name: r.Name, Timestamp: r.Timestamp, NeedsLookup: true}, true
	default:
		return Mutation{}, false
	}
}

func (c *Consumer) doRebuild(ctx context.Context, reason string) error {
	if c.Rebuild == nil {
		return errors.New("journal: rebuild requested but no Rebuilder configured")
	}
	c.log.WithField("reason", reason).Info("starting full rebuild")
	return c.Rebuild.Rebuild(ctx)
}
