// Package reparse reads and writes the reparse data of junctions and
// symbolic links. The wire encoding of the reparse buffer is implemented
// here as pure byte manipulation so it can be tested without a Windows
// volume; the DeviceIoControl plumbing lives behind a windows build tag.
package reparse

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"
)

// Reparse tags the engine recognizes. Any other tag classifies the entry as
// an error and the entry is skipped.
const (
	TagMountPoint uint32 = 0xA0000003
	TagSymlink    uint32 = 0xA000000C
)

// symlinkFlagRelative marks a symlink whose substitute name is interpreted
// relative to the link's own directory.
const symlinkFlagRelative uint32 = 0x1

// PointData is the decoded reparse data of a junction or symlink.
type PointData struct {
	Tag uint32
	// SubstituteName is the raw NT-namespace target (`\??\...`).
	SubstituteName string
	// PrintName is the user-visible target.
	PrintName string
	// IsRelative is meaningful for symlinks only; junctions are always
	// absolute.
	IsRelative bool
}

// IsJunction reports whether the data carries the MOUNT_POINT tag.
func (d *PointData) IsJunction() bool { return d.Tag == TagMountPoint }

// IsSymlink reports whether the data carries the SYMLINK tag.
func (d *PointData) IsSymlink() bool { return d.Tag == TagSymlink }

// RawToNice converts the NT-namespace form of a reparse target into the
// user-facing form: `\??\` becomes `\\?\`. Anything else passes through.
// The two textual forms are deliberately kept distinct everywhere; this is
// a display conversion, not a normalization.
func RawToNice(name string) string {
	if strings.HasPrefix(name, `\??\`) {
		return `\\?\` + name[4:]
	}
	return name
}

// NiceToRaw is the inverse of RawToNice: `\\?\` becomes `\??\`.
func NiceToRaw(name string) string {
	if strings.HasPrefix(name, `\\?\`) {
		return `\??\` + name[4:]
	}
	return name
}

// --- Reparse buffer encoding ---
//
// REPARSE_DATA_BUFFER layout:
//   0  ReparseTag        uint32
//   4  ReparseDataLength uint16
//   6  Reserved          uint16
//   8  per-tag data:
//     MOUNT_POINT: SubstituteNameOffset, SubstituteNameLength,
//                  PrintNameOffset, PrintNameLength (uint16 each),
//                  then the UTF-16 path buffer.
//     SYMLINK:     same four offsets, then Flags uint32, then the path
//                  buffer.
// Offsets are byte offsets into the path buffer; lengths exclude the NUL
// terminators this encoder appends after each name.

const headerSize = 8

func utf16Bytes(s string) []byte {
	u := utf16.Encode([]rune(s))
	b := make([]byte, len(u)*2)
	for i, cu := range u {
		binary.LittleEndian.PutUint16(b[i*2:], cu)
	}
	return b
}

func utf16String(b []byte) string {
	u := make([]uint16, len(b)/2)
	for i := range u {
		u[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(u))
}

// Encode serializes d into a REPARSE_DATA_BUFFER suitable for
// FSCTL_SET_REPARSE_POINT.
func Encode(d *PointData) ([]byte, error) {
	sub := utf16Bytes(d.SubstituteName)
	prn := utf16Bytes(d.PrintName)

	var fixed int
	switch d.Tag {
	case TagMountPoint:
		fixed = 8
	case TagSymlink:
		fixed = 12
	default:
		return nil, fmt.Errorf("cannot encode reparse tag 0x%08X", d.Tag)
	}

	// Path buffer: substitute name, NUL, print name, NUL.
	pathBuf := make([]byte, 0, len(sub)+len(prn)+4)
	pathBuf = append(pathBuf, sub...)
	pathBuf = append(pathBuf, 0, 0)
	pathBuf = append(pathBuf, prn...)
	pathBuf = append(pathBuf, 0, 0)

	dataLen := fixed + len(pathBuf)
	buf := make([]byte, headerSize+dataLen)
	binary.LittleEndian.PutUint32(buf[0:], d.Tag)
	binary.LittleEndian.PutUint16(buf[4:], uint16(dataLen))
	// Reserved stays zero.

	p := buf[headerSize:]
	binary.LittleEndian.PutUint16(p[0:], 0)                        // SubstituteNameOffset
	binary.LittleEndian.PutUint16(p[2:], uint16(len(sub)))         // SubstituteNameLength
	binary.LittleEndian.PutUint16(p[4:], uint16(len(sub)+2))       // PrintNameOffset
	binary.LittleEndian.PutUint16(p[6:], uint16(len(prn)))         // PrintNameLength
	if d.Tag == TagSymlink {
		var flags uint32
		if d.IsRelative {
			flags = symlinkFlagRelative
		}
		binary.LittleEndian.PutUint32(p[8:], flags)
	}
	copy(p[fixed:], pathBuf)
	return buf, nil
}

// Decode parses a REPARSE_DATA_BUFFER as returned by
// FSCTL_GET_REPARSE_POINT. Buffers carrying a tag other than MOUNT_POINT or
// SYMLINK decode into a PointData with only Tag set; the caller decides how
// to treat unrecognized tags.
func Decode(buf []byte) (*PointData, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("reparse buffer too short (%d bytes)", len(buf))
	}
	d := &PointData{Tag: binary.LittleEndian.Uint32(buf[0:])}
	dataLen := int(binary.LittleEndian.Uint16(buf[4:]))
	if headerSize+dataLen > len(buf) {
		return nil, fmt.Errorf("reparse buffer truncated: header says %d data bytes, have %d", dataLen, len(buf)-headerSize)
	}
	data := buf[headerSize : headerSize+dataLen]

	var fixed int
	switch d.Tag {
	case TagMountPoint:
		fixed = 8
	case TagSymlink:
		fixed = 12
	default:
		return d, nil
	}
	if len(data) < fixed {
		return nil, fmt.Errorf("reparse data too short for tag 0x%08X", d.Tag)
	}

	subOff := int(binary.LittleEndian.Uint16(data[0:]))
	subLen := int(binary.LittleEndian.Uint16(data[2:]))
	printOff := int(binary.LittleEndian.Uint16(data[4:]))
	printLen := int(binary.LittleEndian.Uint16(data[6:]))
	if d.Tag == TagSymlink {
		d.IsRelative = binary.LittleEndian.Uint32(data[8:])&symlinkFlagRelative != 0
	}

	pathBuf := data[fixed:]
	if subOff+subLen > len(pathBuf) || printOff+printLen > len(pathBuf) {
		return nil, fmt.Errorf("reparse name offsets out of range")
	}
	d.SubstituteName = utf16String(pathBuf[subOff : subOff+subLen])
	d.PrintName = utf16String(pathBuf[printOff : printOff+printLen])
	return d, nil
}
