package supervisor

import (
	"context"
	"fmt"

	"github.com/ntfsearch/fastfind/internal/index"
	"github.com/ntfsearch/fastfind/internal/journal"
)

// indexSink implements journal.Sink against whichever Index/Parser a
// volumePipeline currently has live, per SPEC_FULL.md §4.5 step 3-4. It
// holds a reference to the pipeline rather than the Index directly so a
// rebuild swap (which replaces the pipeline's live Index and resolver) is
// picked up by the very next call, with no separate re-wiring step.
type indexSink struct {
	pipeline *volumePipeline
}

var _ journal.Sink = (*indexSink)(nil)

// Apply implements journal.Sink.
func (s *indexSink) Apply(ctx context.Context, m journal.Mutation) error {
	idx := s.pipeline.liveIndex()
	ref := index.FromPacked(m.Ref)

	switch m.Kind {
	case journal.MutationRemove:
		idx.Remove(ref)
		return nil
	case journal.MutationUpsert:
		parser := s.pipeline.liveParser()
		rec, ok, err := parser.ParseRecord(ctx, ref.Record)
		if err != nil {
			return fmt.Errorf("supervisor: mft lookup for journal mutation on %s: %w", ref, err)
		}
		if !ok {
			// The record no longer resolves to a live, in-use file: the
			// create/rename this mutation described has already been
			// superseded by a later delete.
			idx.Remove(ref)
			return nil
		}
		if err := idx.Update(fileEntryFromRecord(rec, idx.Intern)); err != nil {
			return fmt.Errorf("supervisor: apply journal mutation on %s: %w", ref, err)
		}
		return nil
	default:
		return nil
	}
}

// SetLastAppliedUSN implements journal.Sink.
func (s *indexSink) SetLastAppliedUSN(usn int64) {
	s.pipeline.liveIndex().SetLastAppliedUSN(usn)
}
