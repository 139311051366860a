package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeForMapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{ErrAccessDenied, CodeAccessDenied},
		{ErrVolumeUnavailable, CodeVolumeUnavailable},
		{ErrNotNTFS, CodeVolumeUnavailable},
		{ErrNoSuchVolume, CodeVolumeUnavailable},
		{ErrPathNotFound, CodePathNotFound},
		{ErrInvalidSize, CodeInvalidSize},
		{ErrTooManyResults, CodeTooManyResults},
		{ErrBusy, CodeBusy},
		{ErrCancelled, CodeCancelled},
		{ErrTimeout, CodeTimeout},
		{ErrInvalidPattern, CodeInvalidPattern},
		{ErrFrameTooLarge, CodeFrameTooLarge},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CodeFor(c.err), c.err.Error())
	}
}

func TestCodeForWrappedSentinel(t *testing.T) {
	wrapped := fmt.Errorf("supervisor: open volume: %w", ErrAccessDenied)
	assert.Equal(t, CodeAccessDenied, CodeFor(wrapped))
}

func TestCodeForUnknownErrorFallsBackToInvalidPattern(t *testing.T) {
	assert.Equal(t, CodeInvalidPattern, CodeFor(errors.New("some unrelated failure")))
}
