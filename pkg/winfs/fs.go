// Package winfs provides the low-level filesystem primitives the mirror
// engine is built on. Every operation uses backup semantics: directory
// handles may be opened, ACL checks are bypassed given the process
// privileges, and reparse points are always operated on as the reparse point
// itself, never the target.
//
// The concrete implementation lives behind a windows build tag; the types in
// this file are portable so that the reconciliation engine and its tests
// compile everywhere.
package winfs

import (
	"time"
)

// File attribute bits as reported by the OS. The values mirror the
// FILE_ATTRIBUTE_* constants so Attributes round-trips through get/set
// without translation.
const (
	AttrReadOnly          uint32 = 0x00000001
	AttrHidden            uint32 = 0x00000002
	AttrSystem            uint32 = 0x00000004
	AttrDirectory         uint32 = 0x00000010
	AttrArchive           uint32 = 0x00000020
	AttrNormal            uint32 = 0x00000080
	AttrTemporary         uint32 = 0x00000100
	AttrSparseFile        uint32 = 0x00000200
	AttrReparsePoint      uint32 = 0x00000400
	AttrCompressed        uint32 = 0x00000800
	AttrNotContentIndexed uint32 = 0x00002000
	AttrEncrypted         uint32 = 0x00004000
)

// Attributes holds the four filesystem timestamps and the attribute bits of
// an entry. It round-trips through GetAttributes/SetAttributes unchanged.
type Attributes struct {
	Creation   time.Time
	LastAccess time.Time
	LastWrite  time.Time
	Change     time.Time
	FileAttrs  uint32
}

// IsDirectory reports whether the directory attribute bit is set.
func (a Attributes) IsDirectory() bool { return a.FileAttrs&AttrDirectory != 0 }

// IsReparsePoint reports whether the reparse-point attribute bit is set.
func (a Attributes) IsReparsePoint() bool { return a.FileAttrs&AttrReparsePoint != 0 }

// IsReadOnly reports whether the read-only attribute bit is set.
func (a Attributes) IsReadOnly() bool { return a.FileAttrs&AttrReadOnly != 0 }

// DirEntry is one child of a directory listing. The listing returns the
// attributes and file length in the same pass as the name, so callers never
// need a per-entry handle just to drive comparison.
type DirEntry struct {
	Name   string
	Attrs  Attributes
	Length int64
	// ReparseTag is the reparse tag when Attrs.IsReparsePoint(), else 0.
	// The listing surfaces it for free; the full reparse data still
	// requires a codec read.
	ReparseTag uint32
}

// CopyProgress is invoked by CopyFileContent at the start of a copy, after
// every completed chunk, and once more at the end.
type CopyProgress func(total, copied int64)

// CopyChunkSize is the unit of file-content copies and of progress
// callbacks.
const CopyChunkSize = 128 * 1024
