//go:build windows

package secdesc

import (
	"fmt"
	"unsafe"

	"github.com/hillu/go-ntdll"
	"golang.org/x/sys/windows"

	"github.com/hobomirror/hobomirror/pkg/winfs"
)

// Native reads and writes descriptors through the NT native API, which
// honors the backup/restore privileges the process enables at startup.
type Native struct{}

// Local is the shared instance; Native carries no state.
var Local = &Native{}

// All four descriptor sections. SACL access requires ACCESS_SYSTEM_SECURITY
// on the handle, which in turn requires SeSecurityPrivilege.
const allSections = windows.OWNER_SECURITY_INFORMATION |
	windows.GROUP_SECURITY_INFORMATION |
	windows.DACL_SECURITY_INFORMATION |
	windows.SACL_SECURITY_INFORMATION

// GetSecurityDescriptor returns the full self-relative descriptor of the
// entry at path. isDir is not used; the open uses backup semantics for
// files and directories alike.
func (*Native) GetSecurityDescriptor(path string, isDir bool) ([]byte, error) {
	h, err := winfs.OpenHandle(path, windows.READ_CONTROL|windows.ACCESS_SYSTEM_SECURITY)
	if err != nil {
		return nil, fmt.Errorf("open for security read %s: %w", path, err)
	}
	defer windows.CloseHandle(h)

	buf := make([]byte, 4096)
	bufLen := uint32(len(buf))
	status := ntdll.CallWithExpandingBuffer(func() ntdll.NtStatus {
		return ntdll.NtQuerySecurityObject(
			ntdll.Handle(h),
			allSections,
			(*ntdll.SecurityDescriptor)(unsafe.Pointer(&buf[0])),
			uint32(len(buf)),
			&bufLen)
	}, &buf, &bufLen)
	if status != ntdll.STATUS_SUCCESS {
		return nil, fmt.Errorf("query security descriptor %s: ntstatus 0x%08X", path, uint32(status))
	}
	out := make([]byte, bufLen)
	copy(out, buf[:bufLen])
	return out, nil
}

// SetSecurityDescriptor applies all four sections of sd to the entry at
// path in one call. Writing to a directory may expand inheritable ACEs into
// existing children.
func (*Native) SetSecurityDescriptor(path string, isDir bool, sd []byte) error {
	if len(sd) == 0 {
		return fmt.Errorf("set security descriptor %s: empty descriptor", path)
	}
	h, err := winfs.OpenHandle(path,
		windows.WRITE_OWNER|windows.WRITE_DAC|windows.ACCESS_SYSTEM_SECURITY)
	if err != nil {
		return fmt.Errorf("open for security write %s: %w", path, err)
	}
	defer windows.CloseHandle(h)

	status := ntdll.NtSetSecurityObject(
		ntdll.Handle(h),
		allSections,
		(*ntdll.SecurityDescriptor)(unsafe.Pointer(&sd[0])))
	if status != ntdll.STATUS_SUCCESS {
		return fmt.Errorf("set security descriptor %s: ntstatus 0x%08X", path, uint32(status))
	}
	return nil
}
