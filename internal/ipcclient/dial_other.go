//go:build !windows

package ipcclient

import (
	"context"
	"fmt"
	"net"
	"time"
)

// dialPipe is unavailable outside Windows; named pipes are a Windows-only
// transport in this service, same as internal/ipc's own ListenPipe.
func dialPipe(ctx context.Context, pipeName string, timeout time.Duration) (net.Conn, error) {
	return nil, fmt.Errorf("ipcclient: named pipes are only available on windows")
}
