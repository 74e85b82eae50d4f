package mirror

import (
	"fmt"

	"github.com/hobomirror/hobomirror/pkg/reparse"
	"github.com/hobomirror/hobomirror/pkg/winfs"
)

// Kind is the five-way classification of a filesystem entry. Exactly one
// kind applies to every entry the engine handles; anything else (an
// unrecognized reparse tag) fails classification and is skipped.
type Kind int

const (
	// KindFile is a regular file.
	KindFile Kind = iota
	// KindDir is a plain directory.
	KindDir
	// KindFileSymlink is a symbolic link whose target is a file.
	KindFileSymlink
	// KindDirSymlink is a symbolic link whose target is a directory.
	KindDirSymlink
	// KindJunction is a mount-point reparse point.
	KindJunction
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "directory"
	case KindFileSymlink:
		return "file symlink"
	case KindDirSymlink:
		return "directory symlink"
	case KindJunction:
		return "junction"
	default:
		return fmt.Sprintf("unknown_kind(%d)", int(k))
	}
}

// Item is one classified filesystem entry. Reparse is present exactly for
// the three link kinds; Length is meaningful for KindFile only.
type Item struct {
	// FullPath is the absolute path as presented to the OS. On the
	// source side this is a snapshot-space path.
	FullPath string
	// Name is the leaf name as returned by the directory listing, case
	// preserved.
	Name string
	Kind Kind
	// Attrs holds the four timestamps and the attribute bits.
	Attrs winfs.Attributes
	// Length is the file size in bytes; 0 for every non-file kind.
	Length int64
	// Reparse is the decoded reparse data for the three link kinds,
	// nil otherwise.
	Reparse *reparse.PointData
}

// classifyKind derives the Kind from attribute bits and reparse data,
// keeping the invariant that reparse data is present iff the kind is one of
// the three link kinds.
func classifyKind(attrs winfs.Attributes, rp *reparse.PointData) (Kind, error) {
	if rp == nil {
		if attrs.IsDirectory() {
			return KindDir, nil
		}
		return KindFile, nil
	}
	switch rp.Tag {
	case reparse.TagMountPoint:
		return KindJunction, nil
	case reparse.TagSymlink:
		if attrs.IsDirectory() {
			return KindDirSymlink, nil
		}
		return KindFileSymlink, nil
	default:
		return 0, fmt.Errorf("%w: 0x%08X", winfs.ErrUnrecognizedReparseTag, rp.Tag)
	}
}

// classifyPath produces the Item for path with one stat plus, for reparse
// points, one reparse read. Used for the roots of a task and for entries the
// engine has just created; other children are classified from their
// parent's listing instead.
func classifyPath(fs Filesystem, codec ReparseCodec, path, name string) (Item, error) {
	attrs, length, err := fs.Stat(path)
	if err != nil {
		return Item{}, err
	}
	var rp *reparse.PointData
	if attrs.IsReparsePoint() {
		rp, err = codec.GetReparseData(path)
		if err != nil {
			return Item{}, err
		}
	}
	kind, err := classifyKind(attrs, rp)
	if err != nil {
		return Item{}, err
	}
	if kind != KindFile {
		length = 0
	}
	return Item{FullPath: path, Name: name, Kind: kind, Attrs: attrs, Length: length, Reparse: rp}, nil
}

// classifyEntry produces the Item for one child of a listed directory. The
// listing already supplied attributes and length; only reparse points need
// an extra read for their substitute and print names.
func classifyEntry(codec ReparseCodec, fullPath string, de winfs.DirEntry) (Item, error) {
	var rp *reparse.PointData
	if de.Attrs.IsReparsePoint() {
		var err error
		rp, err = codec.GetReparseData(fullPath)
		if err != nil {
			return Item{}, err
		}
	}
	kind, err := classifyKind(de.Attrs, rp)
	if err != nil {
		return Item{}, err
	}
	length := de.Length
	if kind != KindFile {
		length = 0
	}
	return Item{FullPath: fullPath, Name: de.Name, Kind: kind, Attrs: de.Attrs, Length: length, Reparse: rp}, nil
}
