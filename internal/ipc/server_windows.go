//go:build windows

package ipc

import (
	"fmt"
	"net"
	"strings"

	"github.com/Microsoft/go-winio"
)

// PipeName builds the well-known pipe path for a service identity, per
// SPEC_FULL.md §6 ("a Windows named pipe at a fixed, well-known name
// derived from the service identity").
func PipeName(serviceIdentity string) string {
	return `\\.\pipe\` + serviceIdentity
}

// winioListener adapts a go-winio PipeListener to the Listener seam.
type winioListener struct {
	l net.Listener
}

// ListenPipe opens a named pipe restricted to the interactive user
// session (or the configured allowedPrincipals SIDs), matching the
// reference codebase's own use of go-winio for its Docker-compatible
// Windows named pipe transport.
func ListenPipe(pipeName string, allowedPrincipals []string) (Listener, error) {
	sd, err := securityDescriptor(allowedPrincipals)
	if err != nil {
		return nil, fmt.Errorf("ipc: build pipe security descriptor: %w", err)
	}
	cfg := &winio.PipeConfig{
		SecurityDescriptor: sd,
		MessageMode:        false,
		InputBufferSize:    int32(maxFrameSize),
		OutputBufferSize:   int32(maxFrameSize),
	}
	l, err := winio.ListenPipe(pipeName, cfg)
	if err != nil {
		return nil, fmt.Errorf("ipc: listen on %q: %w", pipeName, err)
	}
	return &winioListener{l: l}, nil
}

func (w *winioListener) Accept() (net.Conn, error) { return w.l.Accept() }
func (w *winioListener) Close() error              { return w.l.Close() }

// securityDescriptor grants pipe access to the interactive user (SID
// "S-1-5-4" — NT AUTHORITY\INTERACTIVE) plus any additionally configured
// principal SIDs, and nothing else: no Everyone, no anonymous, no network
// logon. This descriptor is the only access check: Accept performs no
// further per-connection peer token check.
func securityDescriptor(allowedPrincipals []string) (string, error) {
	var sids []string
	sids = append(sids, "S-1-5-4") // INTERACTIVE
	sids = append(sids, allowedPrincipals...)

	var aces []string
	for _, sid := range sids {
		aces = append(aces, fmt.Sprintf("(A;;GA;;;%s)", sid))
	}
	// Owner/group: SYSTEM; DACL: only the listed SIDs get all pipe access.
	return "O:SYG:SYD:" + strings.Join(aces, ""), nil
}
