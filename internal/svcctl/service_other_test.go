//go:build !windows

package svcctl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsWindowsServiceFalseOffWindows(t *testing.T) {
	isSvc, err := IsWindowsService()
	assert.NoError(t, err)
	assert.False(t, isSvc)
}

func TestRunServiceUnavailableOffWindows(t *testing.T) {
	err := RunService(context.Background(), "fastfindsvc", nil)
	assert.Error(t, err)
}

func TestInstallUninstallUnavailableOffWindows(t *testing.T) {
	assert.Error(t, Install("fastfindsvc", "FastFind", `C:\fastfind.exe`))
	assert.Error(t, Uninstall("fastfindsvc"))
}
