package ipc

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ntfsearch/fastfind/internal/apperrors"
)

// maxFrameSize bounds a single request body, per SPEC_FULL.md §4.7 ("Request
// body size capped at 64 KiB").
const maxFrameSize = 64 * 1024

// writeFrame writes a 4-byte big-endian length prefix followed by body.
func writeFrame(w io.Writer, body []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("ipc: write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("ipc: write frame body: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame, rejecting anything over
// maxFrameSize before allocating a buffer for it.
func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		// Drain the oversized body so the length-prefixed stream stays in
		// sync for whatever frame the client sends next; the connection
		// is kept alive, only this message is rejected.
		if _, discardErr := io.CopyN(io.Discard, r, int64(size)); discardErr != nil {
			return nil, fmt.Errorf("ipc: discard oversized frame body: %w", discardErr)
		}
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds %d", apperrors.ErrFrameTooLarge, size, maxFrameSize)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("ipc: read frame body: %w", err)
	}
	return body, nil
}
