//go:build windows

package ipcclient

import (
	"context"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// dialPipe connects to a named pipe server, matching internal/ipc's
// go-winio-based listener on the other end.
func dialPipe(ctx context.Context, pipeName string, timeout time.Duration) (net.Conn, error) {
	dialCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return winio.DialPipeContext(dialCtx, pipeName)
}
