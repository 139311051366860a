//go:build !windows

package config

import "errors"

// physicalRAMBytes is unavailable outside Windows; a physical RAM query
// is a Win32 concept (GlobalMemoryStatusEx) this service has no other-OS
// equivalent for. defaultMemoryBudget falls back to its 1 GiB ceiling
// when this returns an error.
func physicalRAMBytes() (uint64, error) {
	return 0, errors.New("config: physical RAM query unavailable on this platform")
}
