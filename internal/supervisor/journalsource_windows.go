//go:build windows

package supervisor

import (
	"golang.org/x/sys/windows"

	"github.com/ntfsearch/fastfind/internal/journal"
	"github.com/ntfsearch/fastfind/internal/volume"
)

// newJournalSource wraps the raw volume handle the pipeline's Volume
// Reader already opened as a USN journal Source, per SPEC_FULL.md §5
// ("the raw volume handle is owned by its Volume Reader and not shared
// across volumes" — it is reused within one volume's own pipeline, not
// reopened a second time).
func newJournalSource(h *volume.Handle) journal.Source {
	raw, ok := h.RawHandle()
	if !ok {
		return journal.NewUnsupportedSource()
	}
	return journal.NewWindowsSource(windows.Handle(raw))
}
