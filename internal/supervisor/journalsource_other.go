//go:build !windows

package supervisor

import (
	"github.com/ntfsearch/fastfind/internal/journal"
	"github.com/ntfsearch/fastfind/internal/volume"
)

// newJournalSource has no non-Windows implementation: the USN change
// journal is a Windows-only concept (SPEC_FULL.md §1).
func newJournalSource(h *volume.Handle) journal.Source {
	return journal.NewUnsupportedSource()
}
