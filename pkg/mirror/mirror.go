// Package mirror is the reconciliation engine. Given a source directory
// (usually a volume-snapshot path) and an approved target directory, it
// walks both sides, classifies every entry, detects differences and applies
// the minimal sequence of mutations that makes the target a byte-identical
// mirror of the source, including reparse points, timestamps, attribute
// bits and security descriptors.
//
// The engine is deliberately single-threaded and synchronous: the ordering
// requirements between a directory's ACL, its children, and its own
// attributes rely on strict sequencing, and reparse-safe deletion depends
// on depth-first traversal. All mutations flow through a guarded executor
// so one bad entry never aborts the run.
package mirror

import (
	"github.com/hobomirror/hobomirror/pkg/reparse"
	"github.com/hobomirror/hobomirror/pkg/winfs"
)

// Filesystem is the set of primitives the engine mutates the world through.
// Implementations must use backup semantics and must never follow reparse
// points. winfs.Native is the production implementation.
type Filesystem interface {
	// Stat returns the entry's attributes and, for files, its length, in
	// a single handle acquisition.
	Stat(path string) (winfs.Attributes, int64, error)
	// SetAttributes applies timestamps and attribute bits to the entry
	// itself.
	SetAttributes(path string, attrs winfs.Attributes) error
	// Delete removes a file, an EMPTY directory, or a reparse point
	// (the point itself, never its target). Read-only entries are
	// deleted regardless of the read-only bit.
	Delete(path string) error
	// Rename moves oldPath to newPath atomically within a volume. With
	// overwrite, an existing FILE at newPath is replaced even if
	// read-only; an existing directory makes it fail.
	Rename(oldPath, newPath string, overwrite bool) error
	// CopyFileContent copies bytes only into a newly created dst, which
	// must not exist. Attributes and ACLs are the caller's concern.
	CopyFileContent(src, dst string, progress winfs.CopyProgress) error
	// CreateEmptyFile creates a zero-length file; fails if path exists.
	CreateEmptyFile(path string) error
	// CreateDirectory creates an empty directory; fails if path exists.
	CreateDirectory(path string) error
	// ListDirectory returns every child with basic attributes and length
	// in one pass. Fails as a whole on unreadable directories.
	ListDirectory(path string) ([]winfs.DirEntry, error)
}

// ReparseCodec reads and writes junction and symlink reparse data.
// reparse.Native is the production implementation.
type ReparseCodec interface {
	// GetReparseData returns the decoded data, or nil if the entry
	// exists but is not a reparse point.
	GetReparseData(path string) (*reparse.PointData, error)
	// SetJunctionData stamps MOUNT_POINT data onto an existing directory.
	SetJunctionData(path, substituteName, printName string) error
	// SetSymlinkData stamps SYMLINK data onto an existing zero-length
	// file or empty directory.
	SetSymlinkData(path, substituteName, printName string, relative bool) error
	// DeleteJunctionData removes only the reparse metadata.
	DeleteJunctionData(path string) error
	// DeleteSymlinkData removes only the reparse metadata.
	DeleteSymlinkData(path string) error
}

// SecurityCopier reads and writes the full binary security descriptor of an
// entry. secdesc.Native is the production implementation.
type SecurityCopier interface {
	GetSecurityDescriptor(path string, isDir bool) ([]byte, error)
	SetSecurityDescriptor(path string, isDir bool, sd []byte) error
}

// Options are the per-run switches of the engine.
type Options struct {
	// IgnorePaths lists absolute original-volume paths to exclude from
	// the mirror. Matching is case-insensitive and separator-normalized.
	// An entry matched here is treated as absent from the source, so an
	// existing target copy is deleted.
	IgnorePaths []string

	// IgnoreDirNames lists directory leaf names to exclude wherever
	// they appear.
	IgnoreDirNames []string

	// RefreshAccessControl enables the copying of security descriptors.
	RefreshAccessControl bool

	// UpdateMetadata enables the copying of timestamps and attribute
	// bits.
	UpdateMetadata bool
}
