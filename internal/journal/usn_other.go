//go:build !windows

package journal

import (
	"context"
	"errors"
)

var errNoJournalOnPlatform = errors.New("journal: USN change journal is a Windows-only concept")

type unsupportedSource struct{}

// NewUnsupportedSource returns a Source that always fails, for non-Windows
// builds where raw NTFS journal access isn't meaningful.
func NewUnsupportedSource() Source { return unsupportedSource{} }

func (unsupportedSource) QueryJournal(ctx context.Context) (Identity, error) {
	return Identity{}, errNoJournalOnPlatform
}

func (unsupportedSource) ReadBatch(ctx context.Context, fromUSN int64) ([]Record, int64, bool, error) {
	return nil, fromUSN, false, errNoJournalOnPlatform
}
