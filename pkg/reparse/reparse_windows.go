//go:build windows

package reparse

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/windows"

	"github.com/hobomirror/hobomirror/pkg/winfs"
)

// Native reads and writes reparse data through DeviceIoControl on handles
// opened with backup semantics.
type Native struct{}

// Local is the shared instance; Native carries no state.
var Local = &Native{}

// The documented ceiling for a reparse data buffer.
const maxReparseDataSize = 16 * 1024

// GetReparseData returns the decoded reparse data of the entry, or nil if
// the entry exists but is not a reparse point.
func (*Native) GetReparseData(path string) (*PointData, error) {
	h, err := winfs.OpenHandle(path, windows.FILE_READ_ATTRIBUTES|windows.FILE_READ_EA)
	if err != nil {
		return nil, fmt.Errorf("open for reparse read %s: %w", path, err)
	}
	defer windows.CloseHandle(h)

	buf := make([]byte, maxReparseDataSize)
	var returned uint32
	err = windows.DeviceIoControl(h, windows.FSCTL_GET_REPARSE_POINT,
		nil, 0, &buf[0], uint32(len(buf)), &returned, nil)
	if err != nil {
		if err == windows.ERROR_NOT_A_REPARSE_POINT {
			return nil, nil
		}
		return nil, fmt.Errorf("read reparse data %s: %w", path, err)
	}
	data, err := Decode(buf[:returned])
	if err != nil {
		return nil, fmt.Errorf("decode reparse data %s: %w", path, err)
	}
	return data, nil
}

func setReparseData(path string, d *PointData) error {
	buf, err := Encode(d)
	if err != nil {
		return err
	}
	h, err := winfs.OpenHandle(path, windows.GENERIC_WRITE)
	if err != nil {
		return fmt.Errorf("open for reparse write %s: %w", path, err)
	}
	defer windows.CloseHandle(h)
	var returned uint32
	err = windows.DeviceIoControl(h, windows.FSCTL_SET_REPARSE_POINT,
		&buf[0], uint32(len(buf)), nil, 0, &returned, nil)
	if err != nil {
		return fmt.Errorf("set reparse data %s: %w", path, err)
	}
	return nil
}

func deleteReparseData(path string, tag uint32) error {
	// FSCTL_DELETE_REPARSE_POINT takes just the 8-byte header with a
	// zero data length.
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:], tag)
	h, err := winfs.OpenHandle(path, windows.GENERIC_WRITE)
	if err != nil {
		return fmt.Errorf("open for reparse delete %s: %w", path, err)
	}
	defer windows.CloseHandle(h)
	var returned uint32
	err = windows.DeviceIoControl(h, windows.FSCTL_DELETE_REPARSE_POINT,
		&buf[0], uint32(len(buf)), nil, 0, &returned, nil)
	if err != nil {
		return fmt.Errorf("delete reparse data %s: %w", path, err)
	}
	return nil
}

// requireTagAbsentOrEqual refuses to stamp new reparse data over an existing
// point of a different flavor. Overwriting same-flavor data is allowed.
func (n *Native) requireTagAbsentOrEqual(path string, tag uint32) error {
	existing, err := n.GetReparseData(path)
	if err != nil {
		return err
	}
	if existing != nil && existing.Tag != tag {
		return fmt.Errorf("%s already carries reparse tag 0x%08X", path, existing.Tag)
	}
	return nil
}

// SetJunctionData stamps MOUNT_POINT data onto an existing directory. An
// existing junction is overwritten; an existing symlink makes this fail.
func (n *Native) SetJunctionData(path, substituteName, printName string) error {
	if err := n.requireTagAbsentOrEqual(path, TagMountPoint); err != nil {
		return err
	}
	return setReparseData(path, &PointData{
		Tag:            TagMountPoint,
		SubstituteName: substituteName,
		PrintName:      printName,
	})
}

// SetSymlinkData stamps SYMLINK data onto an existing zero-length file or
// empty directory. An existing symlink is overwritten; an existing junction
// makes this fail.
func (n *Native) SetSymlinkData(path, substituteName, printName string, relative bool) error {
	if err := n.requireTagAbsentOrEqual(path, TagSymlink); err != nil {
		return err
	}
	return setReparseData(path, &PointData{
		Tag:            TagSymlink,
		SubstituteName: substituteName,
		PrintName:      printName,
		IsRelative:     relative,
	})
}

// DeleteJunctionData removes the MOUNT_POINT metadata; the underlying
// directory remains.
func (*Native) DeleteJunctionData(path string) error {
	return deleteReparseData(path, TagMountPoint)
}

// DeleteSymlinkData removes the SYMLINK metadata; the underlying file or
// directory remains.
func (*Native) DeleteSymlinkData(path string) error {
	return deleteReparseData(path, TagSymlink)
}
