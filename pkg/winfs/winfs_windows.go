//go:build windows

package winfs

import (
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/hobomirror/hobomirror/pkg/winpath"
)

// Native is the real Windows filesystem. Handles on existing entries are
// opened with FILE_FLAG_BACKUP_SEMANTICS and FILE_FLAG_OPEN_REPARSE_POINT, so
// privileged processes bypass per-file ACL checks and reparse points are
// never followed. Delete, CreateDirectory and ListDirectory call the Win32
// path APIs directly without opening a handle first. Paths are always transited through the long-form wrapper before
// reaching the OS.
type Native struct{}

// Local is the shared instance; Native carries no state.
var Local = &Native{}

const openFlags = windows.FILE_FLAG_BACKUP_SEMANTICS | windows.FILE_FLAG_OPEN_REPARSE_POINT

const shareAll = windows.FILE_SHARE_READ | windows.FILE_SHARE_WRITE | windows.FILE_SHARE_DELETE

// openHandle opens path with the given access mask under backup semantics.
// The handle is valid for files, directories and reparse points alike; the
// caller must close it.
func openHandle(path string, access uint32) (windows.Handle, error) {
	p, err := windows.UTF16PtrFromString(winpath.LongForm(path))
	if err != nil {
		return windows.InvalidHandle, err
	}
	h, err := windows.CreateFile(p, access, shareAll, nil,
		windows.OPEN_EXISTING, openFlags, 0)
	if err != nil {
		return windows.InvalidHandle, err
	}
	return h, nil
}

// OpenHandle is the exported form used by the sibling reparse and secdesc
// packages, which share the backup-semantics open behavior.
func OpenHandle(path string, access uint32) (windows.Handle, error) {
	return openHandle(path, access)
}

func filetimeToTime(ft windows.Filetime) time.Time {
	if ft.LowDateTime == 0 && ft.HighDateTime == 0 {
		return time.Time{}
	}
	return time.Unix(0, ft.Nanoseconds())
}

func timeToFiletime(t time.Time) windows.Filetime {
	if t.IsZero() {
		// A zero FILETIME tells the kernel to leave the field unchanged.
		return windows.Filetime{}
	}
	return windows.NsecToFiletime(t.UnixNano())
}

func queryBasicInfo(h windows.Handle) (Attributes, error) {
	var info windows.FILE_BASIC_INFO
	err := windows.GetFileInformationByHandleEx(h, windows.FileBasicInfo,
		(*byte)(unsafe.Pointer(&info)), uint32(unsafe.Sizeof(info)))
	if err != nil {
		return Attributes{}, err
	}
	return Attributes{
		Creation:   filetimeToTime(info.CreationTime),
		LastAccess: filetimeToTime(info.LastAccessTime),
		LastWrite:  filetimeToTime(info.LastWriteTime),
		Change:     filetimeToTime(info.ChangedTime),
		FileAttrs:  info.FileAttributes,
	}, nil
}

// GetAttributes returns the four timestamps and attribute bits of the entry
// itself. Reparse points are never followed.
func (*Native) GetAttributes(path string) (Attributes, error) {
	h, err := openHandle(path, windows.FILE_READ_ATTRIBUTES)
	if err != nil {
		return Attributes{}, opErr("get attributes", path, err)
	}
	defer windows.CloseHandle(h)
	attrs, err := queryBasicInfo(h)
	return attrs, opErr("get attributes", path, err)
}

// SetAttributes applies timestamps and attribute bits to the entry itself.
// Zero timestamps leave the corresponding field untouched.
func (*Native) SetAttributes(path string, attrs Attributes) error {
	h, err := openHandle(path, windows.FILE_WRITE_ATTRIBUTES)
	if err != nil {
		return opErr("set attributes", path, err)
	}
	defer windows.CloseHandle(h)
	info := windows.FILE_BASIC_INFO{
		CreationTime:   timeToFiletime(attrs.Creation),
		LastAccessTime: timeToFiletime(attrs.LastAccess),
		LastWriteTime:  timeToFiletime(attrs.LastWrite),
		ChangedTime:    timeToFiletime(attrs.Change),
		FileAttributes: attrs.FileAttrs,
	}
	err = windows.SetFileInformationByHandle(h, windows.FileBasicInfo,
		(*byte)(unsafe.Pointer(&info)), uint32(unsafe.Sizeof(info)))
	return opErr("set attributes", path, err)
}

// GetFileLength returns the size of the file in bytes.
func (*Native) GetFileLength(path string) (int64, error) {
	h, err := openHandle(path, windows.FILE_READ_ATTRIBUTES)
	if err != nil {
		return 0, opErr("get length", path, err)
	}
	defer windows.CloseHandle(h)
	var size int64
	if err := windows.GetFileSizeEx(h, &size); err != nil {
		return 0, opErr("get length", path, err)
	}
	return size, nil
}

// Stat returns attributes and length in a single handle acquisition. The
// classifier uses this for its attribute and length read; reparse data of a
// reparse point is read through a separate open by the codec.
func (*Native) Stat(path string) (Attributes, int64, error) {
	h, err := openHandle(path, windows.FILE_READ_ATTRIBUTES)
	if err != nil {
		return Attributes{}, 0, opErr("stat", path, err)
	}
	defer windows.CloseHandle(h)
	attrs, err := queryBasicInfo(h)
	if err != nil {
		return Attributes{}, 0, opErr("stat", path, err)
	}
	var size int64
	if !attrs.IsDirectory() {
		if err := windows.GetFileSizeEx(h, &size); err != nil {
			return Attributes{}, 0, opErr("stat", path, err)
		}
	}
	return attrs, size, nil
}

// Delete removes a file, an empty directory, or a reparse point. For
// reparse points only the point itself is removed, never the target.
// Read-only entries are deleted by first clearing the read-only bit.
// Deleting a non-empty directory fails; recursion is the engine's job.
func (*Native) Delete(path string) error {
	p, err := windows.UTF16PtrFromString(winpath.LongForm(path))
	if err != nil {
		return opErr("delete", path, err)
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return opErr("delete", path, err)
	}
	if attrs&windows.FILE_ATTRIBUTE_READONLY != 0 {
		if err := windows.SetFileAttributes(p, attrs&^windows.FILE_ATTRIBUTE_READONLY); err != nil {
			return opErr("delete", path, err)
		}
	}
	if attrs&windows.FILE_ATTRIBUTE_DIRECTORY != 0 {
		// Junctions and directory symlinks carry the directory bit;
		// RemoveDirectory unlinks the reparse point itself.
		err = windows.RemoveDirectory(p)
	} else {
		err = windows.DeleteFile(p)
	}
	return opErr("delete", path, err)
}

// Rename moves oldPath to newPath atomically within a volume. With
// overwrite, an existing file at newPath is replaced even if read-only;
// an existing directory at newPath makes the rename fail.
func (*Native) Rename(oldPath, newPath string, overwrite bool) error {
	op, err := windows.UTF16PtrFromString(winpath.LongForm(oldPath))
	if err != nil {
		return opErr("rename", oldPath, err)
	}
	np, err := windows.UTF16PtrFromString(winpath.LongForm(newPath))
	if err != nil {
		return opErr("rename", newPath, err)
	}
	var flags uint32 = windows.MOVEFILE_WRITE_THROUGH
	if overwrite {
		flags |= windows.MOVEFILE_REPLACE_EXISTING
	}
	err = windows.MoveFileEx(op, np, flags)
	if err == windows.ERROR_ACCESS_DENIED && overwrite {
		// A read-only entry at the destination blocks the replace; the
		// overwrite contract ignores the read-only flag, so clear it
		// and retry once.
		if attrs, aerr := windows.GetFileAttributes(np); aerr == nil &&
			attrs&windows.FILE_ATTRIBUTE_READONLY != 0 {
			if windows.SetFileAttributes(np, attrs&^windows.FILE_ATTRIBUTE_READONLY) == nil {
				err = windows.MoveFileEx(op, np, flags)
			}
		}
	}
	return opErr("rename", oldPath, err)
}

// CopyFileContent copies the byte content of src into a newly created dst.
// dst must not exist. Only content is copied: timestamps, attributes, ACLs,
// alternate streams and sparse/compressed bits are the caller's concern.
func (*Native) CopyFileContent(src, dst string, progress CopyProgress) error {
	in, err := openHandle(src, windows.GENERIC_READ)
	if err != nil {
		return opErr("copy content", src, err)
	}
	defer windows.CloseHandle(in)

	var total int64
	if err := windows.GetFileSizeEx(in, &total); err != nil {
		return opErr("copy content", src, err)
	}

	dp, err := windows.UTF16PtrFromString(winpath.LongForm(dst))
	if err != nil {
		return opErr("copy content", dst, err)
	}
	out, err := windows.CreateFile(dp, windows.GENERIC_WRITE, windows.FILE_SHARE_READ, nil,
		windows.CREATE_NEW, windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_SEQUENTIAL_SCAN, 0)
	if err != nil {
		return opErr("copy content", dst, err)
	}
	defer windows.CloseHandle(out)

	if progress != nil {
		progress(total, 0)
	}
	buf := make([]byte, CopyChunkSize)
	var copied int64
	for {
		var read uint32
		err := windows.ReadFile(in, buf, &read, nil)
		if err != nil && err != windows.ERROR_HANDLE_EOF {
			return opErr("copy content", src, err)
		}
		if read == 0 {
			break
		}
		off := 0
		for off < int(read) {
			var written uint32
			if err := windows.WriteFile(out, buf[off:read], &written, nil); err != nil {
				return opErr("copy content", dst, err)
			}
			off += int(written)
		}
		copied += int64(read)
		if progress != nil {
			progress(total, copied)
		}
	}
	if progress != nil {
		progress(total, copied)
	}
	return nil
}

// CreateEmptyFile creates a zero-length file. Fails if the path exists.
func (*Native) CreateEmptyFile(path string) error {
	p, err := windows.UTF16PtrFromString(winpath.LongForm(path))
	if err != nil {
		return opErr("create file", path, err)
	}
	h, err := windows.CreateFile(p, windows.GENERIC_WRITE, 0, nil,
		windows.CREATE_NEW, windows.FILE_FLAG_BACKUP_SEMANTICS, 0)
	if err != nil {
		return opErr("create file", path, err)
	}
	windows.CloseHandle(h)
	return nil
}

// CreateDirectory creates an empty directory. Fails if the path exists.
func (*Native) CreateDirectory(path string) error {
	p, err := windows.UTF16PtrFromString(winpath.LongForm(path))
	if err != nil {
		return opErr("create directory", path, err)
	}
	return opErr("create directory", path, windows.CreateDirectory(p, nil))
}

// ListDirectory returns every child of path with its basic attributes and
// length in one enumeration pass. It never recurses and never follows
// reparse points. An unreadable directory fails as a whole; there are no
// partial listings.
func (*Native) ListDirectory(path string) ([]DirEntry, error) {
	pattern := winpath.Join(winpath.LongForm(path), "*")
	p, err := windows.UTF16PtrFromString(pattern)
	if err != nil {
		return nil, opErr("list", path, err)
	}
	var fd windows.Win32finddata
	h, err := windows.FindFirstFile(p, &fd)
	if err != nil {
		return nil, opErr("list", path, err)
	}
	defer windows.FindClose(h)

	var entries []DirEntry
	for {
		name := windows.UTF16ToString(fd.FileName[:])
		if name != "." && name != ".." {
			entry := DirEntry{
				Name: name,
				Attrs: Attributes{
					Creation:   filetimeToTime(fd.CreationTime),
					LastAccess: filetimeToTime(fd.LastAccessTime),
					LastWrite:  filetimeToTime(fd.LastWriteTime),
					FileAttrs:  fd.FileAttributes,
				},
				Length: int64(fd.FileSizeHigh)<<32 | int64(fd.FileSizeLow),
			}
			if entry.Attrs.IsReparsePoint() {
				// For reparse points the find data smuggles the tag
				// in Reserved0.
				entry.ReparseTag = fd.Reserved0
				entry.Length = 0
			}
			entries = append(entries, entry)
		}
		if err := windows.FindNextFile(h, &fd); err != nil {
			if err == windows.ERROR_NO_MORE_FILES {
				break
			}
			return nil, opErr("list", path, err)
		}
	}
	return entries, nil
}

// ReadTextFile reads a small text file under backup semantics. Used by the
// preflight guard-file check, which must work even when the target tree
// denies access to ordinary opens.
func (*Native) ReadTextFile(path string) (string, error) {
	h, err := openHandle(path, windows.GENERIC_READ)
	if err != nil {
		return "", opErr("read", path, err)
	}
	f := os.NewFile(uintptr(h), path)
	if f == nil {
		windows.CloseHandle(h)
		return "", opErr("read", path, fmt.Errorf("invalid handle"))
	}
	defer f.Close()
	var size int64
	if err := windows.GetFileSizeEx(windows.Handle(f.Fd()), &size); err != nil {
		return "", opErr("read", path, err)
	}
	const maxGuardSize = 1 << 20
	if size > maxGuardSize {
		return "", opErr("read", path, fmt.Errorf("file too large (%d bytes)", size))
	}
	buf := make([]byte, size)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return "", opErr("read", path, err)
	}
	return string(buf[:n]), nil
}
