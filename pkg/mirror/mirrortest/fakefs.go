// Package mirrortest provides an in-memory Windows-ish filesystem
// implementing the mirror engine's Filesystem, ReparseCodec and
// SecurityCopier interfaces, for tests of the engine and of the run driver.
//
// The fake deliberately refuses to enumerate through reparse points, so any
// engine bug that traverses a link blows up a test instead of passing
// silently, and it counts every state-changing call so zero-mutation
// contracts (like the guard-file refusal) are directly assertable.
package mirrortest

import (
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/hobomirror/hobomirror/pkg/reparse"
	"github.com/hobomirror/hobomirror/pkg/winfs"
)

// FakeFS is the in-memory filesystem. Create with New, build trees with
// AddRoot and the Node helpers, inject faults with FailOn.
type FakeFS struct {
	// Mutations counts every state-changing call.
	Mutations int

	// SDLog records the folded path of every security-descriptor write,
	// in order, for ACL-before-children assertions.
	SDLog []string

	roots map[string]*Node
	fail  map[string]error
}

// Node is one entry of the fake tree. Children is keyed by Fold(name) and
// is nil for files and link carriers.
type Node struct {
	Name     string
	Attrs    winfs.Attributes
	Content  []byte
	RP       *reparse.PointData
	SD       []byte
	Children map[string]*Node
}

// New returns an empty fake filesystem.
func New() *FakeFS {
	return &FakeFS{roots: make(map[string]*Node), fail: make(map[string]error)}
}

// Fold is the case folding the fake applies to names and map keys.
func Fold(s string) string { return strings.ToLower(s) }

// FailOn injects an error for one operation on one path. Operations:
// stat, setattrs, delete, rename, copy, createfile, createdir, list,
// getreparse, setjunction, setsymlink, getsd, setsd.
func (f *FakeFS) FailOn(op, path string, err error) {
	f.fail[op+" "+Fold(path)] = err
}

// ClearFail removes a previously injected fault.
func (f *FakeFS) ClearFail(op, path string) {
	delete(f.fail, op+" "+Fold(path))
}

func (f *FakeFS) injected(op, path string) error {
	return f.fail[op+" "+Fold(path)]
}

func splitPath(path string) []string {
	// Accept both separators: the guard-file check joins with the host
	// OS's separator, which differs from the fake's Windows-style paths
	// when the tests run elsewhere.
	normalized := strings.ReplaceAll(path, "/", `\`)
	trimmed := strings.Trim(normalized, `\`)
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, `\`)
}

// Resolve walks to the node at path. Never follows reparse data.
func (f *FakeFS) Resolve(path string) (*Node, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, fs.ErrNotExist
	}
	node, ok := f.roots[Fold(parts[0])]
	if !ok {
		return nil, fs.ErrNotExist
	}
	for _, part := range parts[1:] {
		if node.Children == nil {
			return nil, fs.ErrNotExist
		}
		child, ok := node.Children[Fold(part)]
		if !ok {
			return nil, fs.ErrNotExist
		}
		node = child
	}
	return node, nil
}

// resolveParent returns the parent node and leaf name of path.
func (f *FakeFS) resolveParent(path string) (*Node, string, error) {
	parts := splitPath(path)
	if len(parts) < 2 {
		return nil, "", fs.ErrNotExist
	}
	parentPath := strings.Join(parts[:len(parts)-1], `\`)
	parent, err := f.Resolve(parentPath)
	if err != nil {
		return nil, "", err
	}
	if parent.Children == nil {
		return nil, "", fs.ErrNotExist
	}
	return parent, parts[len(parts)-1], nil
}

// --- tree building helpers ---

// AddRoot creates a volume root like "C:".
func (f *FakeFS) AddRoot(name string) *Node {
	n := &Node{
		Name:     name,
		Attrs:    winfs.Attributes{FileAttrs: winfs.AttrDirectory, LastWrite: time.Unix(1000, 0)},
		Children: make(map[string]*Node),
	}
	f.roots[Fold(name)] = n
	return n
}

// AddDir creates a plain directory under n.
func (n *Node) AddDir(name string, mtime time.Time) *Node {
	child := &Node{
		Name:     name,
		Attrs:    winfs.Attributes{FileAttrs: winfs.AttrDirectory, LastWrite: mtime},
		Children: make(map[string]*Node),
	}
	n.Children[Fold(name)] = child
	return child
}

// AddFile creates a regular file under n.
func (n *Node) AddFile(name, content string, mtime time.Time) *Node {
	child := &Node{
		Name:    name,
		Attrs:   winfs.Attributes{FileAttrs: winfs.AttrArchive, LastWrite: mtime},
		Content: []byte(content),
	}
	n.Children[Fold(name)] = child
	return child
}

// AddJunction creates a mount-point reparse entry under n. The substitute
// name gets the NT-namespace prefix, as real junctions store it.
func (n *Node) AddJunction(name, target string, mtime time.Time) *Node {
	child := &Node{
		Name:  name,
		Attrs: winfs.Attributes{FileAttrs: winfs.AttrDirectory | winfs.AttrReparsePoint, LastWrite: mtime},
		RP: &reparse.PointData{
			Tag:            reparse.TagMountPoint,
			SubstituteName: `\??\` + target,
			PrintName:      target,
		},
	}
	n.Children[Fold(name)] = child
	return child
}

// AddSymlink creates a symbolic-link reparse entry under n.
func (n *Node) AddSymlink(name, target string, dir, relative bool, mtime time.Time) *Node {
	attrs := uint32(winfs.AttrReparsePoint)
	if dir {
		attrs |= winfs.AttrDirectory
	}
	substitute := target
	if !relative {
		substitute = `\??\` + target
	}
	child := &Node{
		Name:  name,
		Attrs: winfs.Attributes{FileAttrs: attrs, LastWrite: mtime},
		RP: &reparse.PointData{
			Tag:            reparse.TagSymlink,
			SubstituteName: substitute,
			PrintName:      target,
			IsRelative:     relative,
		},
	}
	n.Children[Fold(name)] = child
	return child
}

// --- Filesystem ---

func (f *FakeFS) Stat(path string) (winfs.Attributes, int64, error) {
	if err := f.injected("stat", path); err != nil {
		return winfs.Attributes{}, 0, err
	}
	node, err := f.Resolve(path)
	if err != nil {
		return winfs.Attributes{}, 0, err
	}
	return node.Attrs, int64(len(node.Content)), nil
}

func (f *FakeFS) SetAttributes(path string, attrs winfs.Attributes) error {
	if err := f.injected("setattrs", path); err != nil {
		return err
	}
	node, err := f.Resolve(path)
	if err != nil {
		return err
	}
	f.Mutations++
	node.Attrs = attrs
	return nil
}

func (f *FakeFS) Delete(path string) error {
	if err := f.injected("delete", path); err != nil {
		return err
	}
	parent, leaf, err := f.resolveParent(path)
	if err != nil {
		return err
	}
	node, ok := parent.Children[Fold(leaf)]
	if !ok {
		return fs.ErrNotExist
	}
	// A directory must be empty; a reparse carrier deletes as a single
	// entry regardless (the link target is elsewhere and stays).
	if node.RP == nil && node.Children != nil && len(node.Children) > 0 {
		return fmt.Errorf("directory not empty: %s", path)
	}
	f.Mutations++
	delete(parent.Children, Fold(leaf))
	return nil
}

func (f *FakeFS) Rename(oldPath, newPath string, overwrite bool) error {
	if err := f.injected("rename", newPath); err != nil {
		return err
	}
	oldParent, oldLeaf, err := f.resolveParent(oldPath)
	if err != nil {
		return err
	}
	node, ok := oldParent.Children[Fold(oldLeaf)]
	if !ok {
		return fs.ErrNotExist
	}
	newParent, newLeaf, err := f.resolveParent(newPath)
	if err != nil {
		return err
	}
	if existing, ok := newParent.Children[Fold(newLeaf)]; ok {
		if !overwrite {
			return fs.ErrExist
		}
		if existing.Children != nil {
			return fmt.Errorf("cannot overwrite directory: %s", newPath)
		}
	}
	f.Mutations++
	delete(oldParent.Children, Fold(oldLeaf))
	node.Name = newLeaf
	newParent.Children[Fold(newLeaf)] = node
	return nil
}

func (f *FakeFS) CopyFileContent(src, dst string, progress winfs.CopyProgress) error {
	if err := f.injected("copy", src); err != nil {
		return err
	}
	srcNode, err := f.Resolve(src)
	if err != nil {
		return err
	}
	dstParent, dstLeaf, err := f.resolveParent(dst)
	if err != nil {
		return err
	}
	if _, exists := dstParent.Children[Fold(dstLeaf)]; exists {
		return fs.ErrExist
	}
	total := int64(len(srcNode.Content))
	if progress != nil {
		progress(total, 0)
		for copied := int64(winfs.CopyChunkSize); copied < total; copied += winfs.CopyChunkSize {
			progress(total, copied)
		}
	}
	f.Mutations++
	dstParent.Children[Fold(dstLeaf)] = &Node{
		Name:    dstLeaf,
		Attrs:   winfs.Attributes{FileAttrs: winfs.AttrArchive, LastWrite: time.Now()},
		Content: append([]byte(nil), srcNode.Content...),
	}
	if progress != nil {
		progress(total, total)
	}
	return nil
}

func (f *FakeFS) CreateEmptyFile(path string) error {
	if err := f.injected("createfile", path); err != nil {
		return err
	}
	parent, leaf, err := f.resolveParent(path)
	if err != nil {
		return err
	}
	if _, exists := parent.Children[Fold(leaf)]; exists {
		return fs.ErrExist
	}
	f.Mutations++
	parent.Children[Fold(leaf)] = &Node{
		Name:  leaf,
		Attrs: winfs.Attributes{FileAttrs: winfs.AttrArchive},
	}
	return nil
}

func (f *FakeFS) CreateDirectory(path string) error {
	if err := f.injected("createdir", path); err != nil {
		return err
	}
	parent, leaf, err := f.resolveParent(path)
	if err != nil {
		return err
	}
	if _, exists := parent.Children[Fold(leaf)]; exists {
		return fs.ErrExist
	}
	f.Mutations++
	parent.Children[Fold(leaf)] = &Node{
		Name:     leaf,
		Attrs:    winfs.Attributes{FileAttrs: winfs.AttrDirectory},
		Children: make(map[string]*Node),
	}
	return nil
}

func (f *FakeFS) ListDirectory(path string) ([]winfs.DirEntry, error) {
	if err := f.injected("list", path); err != nil {
		return nil, err
	}
	node, err := f.Resolve(path)
	if err != nil {
		return nil, err
	}
	if node.Children == nil {
		// The engine must never enumerate a link; a real junction would
		// silently list its target's content here.
		return nil, fmt.Errorf("refusing to enumerate through %s: not a plain directory", path)
	}
	entries := make([]winfs.DirEntry, 0, len(node.Children))
	for _, child := range node.Children {
		de := winfs.DirEntry{Name: child.Name, Attrs: child.Attrs, Length: int64(len(child.Content))}
		if child.RP != nil {
			de.ReparseTag = child.RP.Tag
			de.Length = 0
		}
		entries = append(entries, de)
	}
	return entries, nil
}

// ReadGuard reads a fake file's content, for the guard-file check.
func (f *FakeFS) ReadGuard(path string) (string, error) {
	node, err := f.Resolve(path)
	if err != nil {
		return "", err
	}
	if node.Children != nil {
		return "", fmt.Errorf("not a file: %s", path)
	}
	return string(node.Content), nil
}

// --- ReparseCodec ---

func (f *FakeFS) GetReparseData(path string) (*reparse.PointData, error) {
	if err := f.injected("getreparse", path); err != nil {
		return nil, err
	}
	node, err := f.Resolve(path)
	if err != nil {
		return nil, err
	}
	if node.RP == nil {
		return nil, nil
	}
	cp := *node.RP
	return &cp, nil
}

func (f *FakeFS) SetJunctionData(path, substituteName, printName string) error {
	if err := f.injected("setjunction", path); err != nil {
		return err
	}
	node, err := f.Resolve(path)
	if err != nil {
		return err
	}
	if node.RP != nil && node.RP.Tag != reparse.TagMountPoint {
		return fmt.Errorf("existing reparse point of another flavor at %s", path)
	}
	if node.Children == nil && !node.Attrs.IsDirectory() {
		return fmt.Errorf("junction carrier must be a directory: %s", path)
	}
	f.Mutations++
	node.RP = &reparse.PointData{Tag: reparse.TagMountPoint, SubstituteName: substituteName, PrintName: printName}
	node.Attrs.FileAttrs |= winfs.AttrReparsePoint
	node.Children = nil
	return nil
}

func (f *FakeFS) SetSymlinkData(path, substituteName, printName string, relative bool) error {
	if err := f.injected("setsymlink", path); err != nil {
		return err
	}
	node, err := f.Resolve(path)
	if err != nil {
		return err
	}
	if node.RP != nil && node.RP.Tag != reparse.TagSymlink {
		return fmt.Errorf("existing reparse point of another flavor at %s", path)
	}
	f.Mutations++
	node.RP = &reparse.PointData{Tag: reparse.TagSymlink, SubstituteName: substituteName, PrintName: printName, IsRelative: relative}
	node.Attrs.FileAttrs |= winfs.AttrReparsePoint
	node.Children = nil
	return nil
}

func (f *FakeFS) DeleteJunctionData(path string) error {
	return f.deleteReparse(path)
}

func (f *FakeFS) DeleteSymlinkData(path string) error {
	return f.deleteReparse(path)
}

func (f *FakeFS) deleteReparse(path string) error {
	node, err := f.Resolve(path)
	if err != nil {
		return err
	}
	f.Mutations++
	node.RP = nil
	node.Attrs.FileAttrs &^= winfs.AttrReparsePoint
	if node.Attrs.IsDirectory() {
		node.Children = make(map[string]*Node)
	}
	return nil
}

// --- SecurityCopier ---

func (f *FakeFS) GetSecurityDescriptor(path string, isDir bool) ([]byte, error) {
	if err := f.injected("getsd", path); err != nil {
		return nil, err
	}
	node, err := f.Resolve(path)
	if err != nil {
		return nil, err
	}
	if node.SD == nil {
		return []byte("default-sd"), nil
	}
	return append([]byte(nil), node.SD...), nil
}

func (f *FakeFS) SetSecurityDescriptor(path string, isDir bool, sd []byte) error {
	if err := f.injected("setsd", path); err != nil {
		return err
	}
	node, err := f.Resolve(path)
	if err != nil {
		return err
	}
	f.Mutations++
	f.SDLog = append(f.SDLog, Fold(path))
	node.SD = append([]byte(nil), sd...)
	return nil
}
