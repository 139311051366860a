//go:build !windows

package svcctl

import (
	"context"
	"fmt"
)

// Runner mirrors the windows build's Runner so callers can share code
// across platforms; non-Windows builds only ever run a Runner directly
// (via Run), never through the Service Control Manager.
type Runner interface {
	Run(ctx context.Context) error
	Pause()
	Continue()
}

// IsWindowsService always reports false outside Windows.
func IsWindowsService() (bool, error) { return false, nil }

// RunService is unavailable outside Windows; the service binary falls
// back to calling runner.Run directly when IsWindowsService reports false.
func RunService(ctx context.Context, serviceName string, runner Runner) error {
	return fmt.Errorf("svcctl: the Service Control Manager is only available on windows")
}

// Install is unavailable outside Windows.
func Install(serviceName, displayName, exePath string, args ...string) error {
	return fmt.Errorf("svcctl: service installation is only available on windows")
}

// Uninstall is unavailable outside Windows.
func Uninstall(serviceName string) error {
	return fmt.Errorf("svcctl: service installation is only available on windows")
}
