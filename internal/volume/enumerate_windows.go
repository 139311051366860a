//go:build windows

package volume

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// EnumerateFixedNTFS lists drive letters (e.g. "C:") for every fixed,
// NTFS-formatted volume, honoring the include/exclude allow-lists from
// SPEC_FULL.md §6's volumes.include/volumes.exclude.
func EnumerateFixedNTFS(include, exclude []string) ([]string, error) {
	mask, err := windows.GetLogicalDrives()
	if err != nil {
		return nil, fmt.Errorf("volume: GetLogicalDrives: %w", err)
	}

	includeSet := toSet(include)
	excludeSet := toSet(exclude)

	var out []string
	for i := 0; i < 26; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		letter := string(rune('A'+i)) + ":"
		if len(includeSet) > 0 && !includeSet[letter] {
			continue
		}
		if excludeSet[letter] {
			continue
		}

		root := letter + `\`
		rootPtr, err := windows.UTF16PtrFromString(root)
		if err != nil {
			continue
		}
		if windows.GetDriveType(rootPtr) != windows.DRIVE_FIXED {
			continue
		}

		var fsNameBuf [32]uint16
		if err := windows.GetVolumeInformation(rootPtr, nil, 0, nil, nil, nil, &fsNameBuf[0], uint32(len(fsNameBuf))); err != nil {
			continue
		}
		if windows.UTF16ToString(fsNameBuf[:]) != "NTFS" {
			continue
		}

		out = append(out, letter)
	}
	return out, nil
}

func toSet(xs []string) map[string]bool {
	if len(xs) == 0 {
		return nil
	}
	m := make(map[string]bool, len(xs))
	for _, x := range xs {
		m[x] = true
	}
	return m
}
