//go:build windows

package volume

import (
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/ntfsearch/fastfind/internal/apperrors"
)

// windowsHandle backs Handle on Windows with a raw volume file handle
// opened for sequential, unbuffered reads.
type windowsHandle struct {
	mu     sync.Mutex // serializes reads on the shared OS handle
	h      windows.Handle
	boot   BootSectorInfo
}

func openPlatformHandle(driveLetter string) (platformHandle, error) {
	if err := enableBackupPrivilege(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrAccessDenied, err)
	}

	path := fmt.Sprintf(`\\.\%s`, driveLetter)
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrNoSuchVolume, err)
	}

	h, err := windows.CreateFile(
		pathPtr,
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_NO_BUFFERING|windows.FILE_FLAG_SEQUENTIAL_SCAN,
		0,
	)
	if err != nil {
		switch err {
		case windows.ERROR_ACCESS_DENIED:
			return nil, fmt.Errorf("%w: %v", apperrors.ErrAccessDenied, err)
		case windows.ERROR_FILE_NOT_FOUND, windows.ERROR_PATH_NOT_FOUND:
			return nil, fmt.Errorf("%w: %v", apperrors.ErrNoSuchVolume, err)
		default:
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
	}

	return &windowsHandle{h: h}, nil
}

// readRaw reads n bytes at a byte offset, aligned to the volume's physical
// sector size as FILE_FLAG_NO_BUFFERING requires. Callers (boot-sector
// read) pass sector-aligned offsets and lengths.
func (w *windowsHandle) readRaw(offset int64, n int) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	buf := make([]byte, n)
	var newPos int64
	if err := windows.SetFilePointerEx(w.h, offset, &newPos, windows.FILE_BEGIN); err != nil {
		return nil, err
	}
	var read uint32
	if err := windows.ReadFile(w.h, buf, &read, nil); err != nil {
		return nil, err
	}
	return buf[:read], nil
}

func (w *windowsHandle) setBootSector(boot BootSectorInfo) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.boot = boot
}

func (w *windowsHandle) readClusters(lcn uint64, count int) ([]byte, error) {
	clusterSize := w.boot.ClusterSize
	if clusterSize == 0 {
		clusterSize = 4096 // conservative default before BootSector() has been populated
	}
	offset := int64(lcn) * int64(clusterSize)
	return w.readRaw(offset, count*clusterSize)
}

func (w *windowsHandle) rawHandle() (uintptr, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.h == 0 {
		return 0, false
	}
	return uintptr(w.h), true
}

func (w *windowsHandle) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.h == 0 {
		return nil
	}
	err := windows.CloseHandle(w.h)
	w.h = 0
	return err
}

func isTransientPlatform(err error) bool {
	var errno syscall.Errno
	if e, ok := err.(syscall.Errno); ok {
		errno = e
	} else {
		return false
	}
	switch errno {
	case windows.ERROR_IO_PENDING, windows.ERROR_BUSY, windows.ERROR_SHARING_VIOLATION:
		return true
	default:
		return false
	}
}

// enableBackupPrivilege acquires SeBackupPrivilege for the current process
// token, required to open a raw volume handle without per-file ACL checks
// (SPEC_FULL.md §4.1).
func enableBackupPrivilege() error {
	var token windows.Token
	proc, err := windows.GetCurrentProcess()
	if err != nil {
		return err
	}
	if err := windows.OpenProcessToken(proc, windows.TOKEN_ADJUST_PRIVILEGES|windows.TOKEN_QUERY, &token); err != nil {
		return err
	}
	defer token.Close()

	var luid windows.LUID
	if err := windows.LookupPrivilegeValue(nil, windows.StringToUTF16Ptr("SeBackupPrivilege"), &luid); err != nil {
		return err
	}

	privileges := windows.Tokenprivileges{
		PrivilegeCount: 1,
		Privileges: [1]windows.LUIDAndAttributes{
			{Luid: luid, Attributes: windows.SE_PRIVILEGE_ENABLED},
		},
	}
	return windows.AdjustTokenPrivileges(token, false, &privileges, uint32(unsafe.Sizeof(privileges)), nil, nil)
}
