//go:build windows

package config

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// physicalRAMBytes queries total physical RAM via GlobalMemoryStatusEx,
// the same family of Win32 calls the volume and journal packages reach
// for (GetLogicalDrives, GetVolumeInformation, DeviceIoControl) rather
// than a portable stdlib substitute.
func physicalRAMBytes() (uint64, error) {
	var status windows.MemoryStatusEx
	status.Length = uint32(unsafe.Sizeof(status))
	if err := windows.GlobalMemoryStatusEx(&status); err != nil {
		return 0, fmt.Errorf("config: GlobalMemoryStatusEx: %w", err)
	}
	return status.TotalPhys, nil
}
