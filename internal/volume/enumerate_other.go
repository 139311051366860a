//go:build !windows

package volume

// EnumerateFixedNTFS is unavailable outside Windows; fixed-volume
// enumeration is a Win32 concept (GetLogicalDrives/GetDriveType) this
// service has no other-OS equivalent for.
func EnumerateFixedNTFS(include, exclude []string) ([]string, error) {
	return nil, nil
}
