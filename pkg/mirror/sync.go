package mirror

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/hobomirror/hobomirror/pkg/preflight"
	"github.com/hobomirror/hobomirror/pkg/report"
	"github.com/hobomirror/hobomirror/pkg/winfs"
	"github.com/hobomirror/hobomirror/pkg/winpath"
)

// syncer holds the state of one running task. It is created by Task.Run and
// discarded when the task completes; the engine never runs two syncers
// concurrently.
type syncer struct {
	fs    Filesystem
	codec ReparseCodec
	sec   SecurityCopier
	rep   *report.Reporter
	opts  Options

	// translate maps a snapshot-space source path to the original-volume
	// path for display and for ignore-path matching.
	translate func(string) string

	// targetRoot anchors the target-relative paths recorded into the
	// changed-directory set.
	targetRoot string

	prog  *progressThrottle
	stats *Stats
}

// display maps a path into its operator-facing form.
func (s *syncer) display(path string) string {
	if s.translate == nil {
		return path
	}
	return s.translate(path)
}

// relTarget returns path relative to the target root, for the
// changed-directory set. Paths outside the target (source-side paths) and
// the root itself map to "".
func (s *syncer) relTarget(path string) string {
	if !winpath.HasPrefixFold(path, s.targetRoot) {
		return ""
	}
	rest := path[len(winpath.WithoutTrailingSeparator(s.targetRoot)):]
	return strings.Trim(rest, winpath.Separator)
}

// foldName is the case-insensitive key two sides of a directory are matched
// on, per the usual filesystem name folding.
func foldName(name string) string {
	return strings.ToLower(name)
}

// sortItems orders a directory's children the way every phase iterates
// them: non-directories first, then directories, each group by
// case-insensitive name. Leaves are finished before containers are
// descended into, so errors in leaf handling don't cascade.
func sortItems(items []Item) {
	slices.SortFunc(items, func(a, b Item) int {
		aDir, bDir := a.Kind == KindDir, b.Kind == KindDir
		if aDir != bDir {
			if aDir {
				return 1
			}
			return -1
		}
		return strings.Compare(foldName(a.Name), foldName(b.Name))
	})
}

// syncTree reconciles one (sourceRoot, targetRoot) pair. Both roots must
// classify successfully or the task is aborted. The roots are forced to
// KindDir: a snapshot-volume root presents as a reparse point, but it must
// be walked as a directory regardless.
func (s *syncer) syncTree(sourceRoot, targetRoot string) {
	src, ok := tryGet(s, "classify source root", sourceRoot, func() (Item, error) {
		return classifyPath(s.fs, s.codec, sourceRoot, sourceRoot)
	})
	if !ok {
		s.rep.Error("task aborted: source root unusable", "path", s.display(sourceRoot))
		return
	}
	tgt, ok := tryGet(s, "classify target root", targetRoot, func() (Item, error) {
		return classifyPath(s.fs, s.codec, targetRoot, targetRoot)
	})
	if !ok {
		s.rep.Error("task aborted: target root unusable", "path", targetRoot)
		return
	}

	src.Kind, tgt.Kind = KindDir, KindDir
	src.Reparse, tgt.Reparse = nil, nil
	s.syncDir(src, tgt, true)
}

// listChildren lists and classifies every child of dir. A child that fails
// classification is reported and skipped; a failed listing fails the whole
// call and the caller skips the subtree.
func (s *syncer) listChildren(dir Item) ([]Item, bool) {
	entries, ok := tryGet(s, "list directory", dir.FullPath, func() ([]winfs.DirEntry, error) {
		return s.fs.ListDirectory(dir.FullPath)
	})
	if !ok {
		return nil, false
	}
	items := make([]Item, 0, len(entries))
	for _, de := range entries {
		path := winpath.Join(dir.FullPath, de.Name)
		item, ok := tryGet(s, "classify entry", path, func() (Item, error) {
			return classifyEntry(s.codec, path, de)
		})
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items, true
}

// dropGuardFile removes the guard sentinel from a listing; it is never
// compared, copied or deleted.
func dropGuardFile(items []Item) []Item {
	return slices.DeleteFunc(items, func(it Item) bool {
		return strings.EqualFold(it.Name, preflight.GuardFileName)
	})
}

// filterIgnored drops source children matching the ignore configuration, as
// if the source did not have them. The target side then deletes any
// existing copy, which is exactly how ignore-driven removal works.
func (s *syncer) filterIgnored(items []Item) []Item {
	return slices.DeleteFunc(items, func(it Item) bool {
		original := s.display(it.FullPath)
		for _, ig := range s.opts.IgnorePaths {
			if winpath.PathsEqual(original, ig) {
				s.rep.Debug("ignoring source path", "path", original)
				return true
			}
		}
		if it.Kind == KindDir {
			for _, name := range s.opts.IgnoreDirNames {
				if strings.EqualFold(it.Name, name) {
					s.rep.Debug("ignoring source directory by name", "path", original)
					return true
				}
			}
		}
		return false
	})
}

// copySecurity copies the source entry's security descriptor onto the
// target entry.
func (s *syncer) copySecurity(src, tgt Item) bool {
	sd, ok := tryGet(s, "read security descriptor", src.FullPath, func() ([]byte, error) {
		return s.sec.GetSecurityDescriptor(src.FullPath, src.Attrs.IsDirectory())
	})
	if !ok {
		return false
	}
	return s.try("write security descriptor", tgt.FullPath, func() error {
		return s.sec.SetSecurityDescriptor(tgt.FullPath, tgt.Attrs.IsDirectory(), sd)
	})
}

// syncDir reconciles one directory pair in four phases: removals and
// kind-changes, same-kind syncs, additions, then attribute and ACL refresh
// of the children. The directory's own ACL is applied before the children
// (inheritable ACEs cascade into children on write, and the children's own
// descriptors must win), and its attributes after them (every child
// mutation would dirty the directory's write time again).
//
// topLevel suppresses the attribute copy for the root pair only: the root
// of a snapshot volume presents as a reparse point, and applying reparse
// attributes onto the target root could not be done without touching the
// link target.
func (s *syncer) syncDir(src, tgt Item, topLevel bool) {
	defer func() {
		if p := recover(); p != nil {
			s.rep.Error("subtree sync failed unexpectedly", "path", s.display(src.FullPath), "panic", fmt.Sprint(p))
			s.unreachable("unexpected failure escaped the sync phases", "path", s.display(src.FullPath))
		}
	}()

	srcChildren, ok := s.listChildren(src)
	if !ok {
		return
	}
	tgtChildren, ok := s.listChildren(tgt)
	if !ok {
		return
	}

	srcChildren = dropGuardFile(srcChildren)
	tgtChildren = dropGuardFile(tgtChildren)
	srcChildren = s.filterIgnored(srcChildren)
	sortItems(srcChildren)
	sortItems(tgtChildren)

	srcByName := make(map[string]Item, len(srcChildren))
	for _, it := range srcChildren {
		srcByName[foldName(it.Name)] = it
	}
	// tgtByName is the working target map: phase 1 removes from it,
	// phase 3 inserts the newly created entries, phase 4 consumes it.
	tgtByName := make(map[string]Item, len(tgtChildren))
	for _, it := range tgtChildren {
		tgtByName[foldName(it.Name)] = it
	}

	// The directory's own ACL, before any child is touched.
	if s.opts.RefreshAccessControl {
		s.copySecurity(src, tgt)
	}

	// --- Phase 1: removals and kind-changes ---
	// replacing marks entries whose kind-change was already reported;
	// phase 3 recreates them without reporting a second change.
	replacing := make(map[string]bool)
	for _, tc := range tgtChildren {
		sc, exists := srcByName[foldName(tc.Name)]
		switch {
		case !exists:
			s.rep.Change(s.relTarget(tc.FullPath),
				fmt.Sprintf("found deleted %s", tc.Kind),
				"path", tc.FullPath)
			if s.actDelete(tc) {
				delete(tgtByName, foldName(tc.Name))
			}
		case sc.Kind != tc.Kind:
			s.rep.Change(s.relTarget(tc.FullPath),
				fmt.Sprintf("kind changed from %s to %s", tc.Kind, sc.Kind),
				"path", tc.FullPath)
			if s.actDelete(tc) {
				delete(tgtByName, foldName(tc.Name))
				replacing[foldName(tc.Name)] = true
			}
		}
	}

	// --- Phase 2: same-name same-kind reconciliation ---
	for _, sc := range srcChildren {
		tc, exists := tgtByName[foldName(sc.Name)]
		if !exists || tc.Kind != sc.Kind {
			continue
		}
		switch sc.Kind {
		case KindDir:
			s.syncDir(sc, tc, false)
		case KindFile:
			// The freshness test is size plus write time; an
			// identical-size, identical-mtime content change is
			// intentionally not detected.
			if sc.Length == tc.Length && sc.Attrs.LastWrite.Equal(tc.Attrs.LastWrite) {
				continue
			}
			s.rep.Change(s.relTarget(tc.FullPath), "modified file",
				"path", tc.FullPath,
				"sourceLength", sc.Length, "targetLength", tc.Length,
				"sourceWriteTime", sc.Attrs.LastWrite, "targetWriteTime", tc.Attrs.LastWrite)
			s.actCopyOrReplaceFile(sc.FullPath, tc.FullPath)
		case KindFileSymlink, KindDirSymlink, KindJunction:
			if sameLinkTarget(sc, tc) {
				continue
			}
			s.rep.Change(s.relTarget(tc.FullPath),
				fmt.Sprintf("%s target changed", sc.Kind),
				"path", tc.FullPath)
			if !s.actDelete(tc) {
				// The stale link is still in place; leave it in the
				// working map so phase 4 does not treat it as gone.
				continue
			}
			if !s.createLink(sc, tc.FullPath) {
				delete(tgtByName, foldName(sc.Name))
			}
		default:
			s.unreachable("unhandled kind in same-kind sync", "kind", sc.Kind.String())
		}
	}

	// --- Phase 3: additions ---
	for _, sc := range srcChildren {
		if _, exists := tgtByName[foldName(sc.Name)]; exists {
			continue
		}
		tgtPath := winpath.Join(tgt.FullPath, sc.Name)
		if !replacing[foldName(sc.Name)] {
			s.rep.Change(s.relTarget(tgtPath),
				fmt.Sprintf("found new %s", sc.Kind),
				"path", s.display(sc.FullPath))
		}
		var created bool
		switch sc.Kind {
		case KindDir:
			created = s.actCopyDirectory(sc, tgtPath)
		case KindFile:
			created = s.actCopyOrReplaceFile(sc.FullPath, tgtPath)
		case KindFileSymlink, KindDirSymlink, KindJunction:
			created = s.createLink(sc, tgtPath)
		default:
			s.unreachable("unhandled kind in additions", "kind", sc.Kind.String())
		}
		if created {
			// Classify the new target entry so phase 4 sees it.
			if item, ok := tryGet(s, "classify created entry", tgtPath, func() (Item, error) {
				return classifyPath(s.fs, s.codec, tgtPath, sc.Name)
			}); ok {
				tgtByName[foldName(sc.Name)] = item
			}
		}
	}

	// --- Phase 4: attribute and ACL refresh of children ---
	// Plain directories are excluded: the syncDir recursion each one
	// triggered has already handled its ACL and will handle its
	// attributes.
	for _, sc := range srcChildren {
		if sc.Kind == KindDir {
			continue
		}
		tc, exists := tgtByName[foldName(sc.Name)]
		if !exists || tc.Kind != sc.Kind {
			continue
		}
		if s.opts.RefreshAccessControl {
			s.copySecurity(sc, tc)
		}
		if s.opts.UpdateMetadata {
			s.try("set attributes", tc.FullPath, func() error {
				return s.fs.SetAttributes(tc.FullPath, sc.Attrs)
			})
		}
	}

	// Finally, this directory's own attributes.
	if !topLevel && s.opts.UpdateMetadata {
		s.try("set directory attributes", tgt.FullPath, func() error {
			return s.fs.SetAttributes(tgt.FullPath, src.Attrs)
		})
	}
}

// sameLinkTarget compares the identifying reparse fields of two link items
// of the same kind. Junctions have no relative flag; symlinks compare it.
func sameLinkTarget(a, b Item) bool {
	if a.Reparse == nil || b.Reparse == nil {
		return false
	}
	if a.Reparse.SubstituteName != b.Reparse.SubstituteName ||
		a.Reparse.PrintName != b.Reparse.PrintName {
		return false
	}
	if a.Kind == KindJunction {
		return true
	}
	return a.Reparse.IsRelative == b.Reparse.IsRelative
}

// createLink materializes a link item at tgtPath: the carrier (empty file
// or empty directory) first, then the reparse data.
func (s *syncer) createLink(sc Item, tgtPath string) bool {
	if sc.Reparse == nil {
		s.unreachable("link item without reparse data", "path", s.display(sc.FullPath))
		return false
	}
	switch sc.Kind {
	case KindFileSymlink:
		if !s.act("Create symlink file", tgtPath, func() error { return s.fs.CreateEmptyFile(tgtPath) }) {
			return false
		}
		return s.try("set symlink data", tgtPath, func() error {
			return s.codec.SetSymlinkData(tgtPath, sc.Reparse.SubstituteName, sc.Reparse.PrintName, sc.Reparse.IsRelative)
		})
	case KindDirSymlink:
		if !s.act("Create symlink directory", tgtPath, func() error { return s.fs.CreateDirectory(tgtPath) }) {
			return false
		}
		return s.try("set symlink data", tgtPath, func() error {
			return s.codec.SetSymlinkData(tgtPath, sc.Reparse.SubstituteName, sc.Reparse.PrintName, sc.Reparse.IsRelative)
		})
	case KindJunction:
		if !s.act("Create junction directory", tgtPath, func() error { return s.fs.CreateDirectory(tgtPath) }) {
			return false
		}
		return s.try("set junction data", tgtPath, func() error {
			return s.codec.SetJunctionData(tgtPath, sc.Reparse.SubstituteName, sc.Reparse.PrintName)
		})
	default:
		s.unreachable("createLink called for non-link kind", "kind", sc.Kind.String())
		return false
	}
}

// actCopyDirectory creates the target directory and recurses into it.
func (s *syncer) actCopyDirectory(src Item, tgtPath string) bool {
	if !s.act("Create directory", tgtPath, func() error { return s.fs.CreateDirectory(tgtPath) }) {
		return false
	}
	tgt := Item{FullPath: tgtPath, Name: src.Name, Kind: KindDir, Attrs: winfs.Attributes{FileAttrs: winfs.AttrDirectory}}
	s.syncDir(src, tgt, false)
	return true
}

// actDelete removes an entry, recursing into plain directories only.
// Junctions and directory symlinks are removed as single opaque entries, so
// the engine never descends through a reparse point and link targets are
// never touched.
func (s *syncer) actDelete(item Item) bool {
	if item.Kind != KindDir {
		deleted := s.act(fmt.Sprintf("Delete %s", item.Kind), item.FullPath, func() error {
			return s.fs.Delete(item.FullPath)
		})
		if deleted {
			s.stats.EntriesDeleted++
		}
		return deleted
	}

	children, ok := s.listChildren(item)
	if !ok {
		return false
	}
	sortItems(children)
	allDeleted := true
	for _, child := range children {
		if !s.actDelete(child) {
			allDeleted = false
		}
	}
	if !allDeleted {
		s.rep.Error("directory not deleted: some children remain", "path", item.FullPath)
		return false
	}
	deleted := s.act("Delete directory", item.FullPath, func() error {
		return s.fs.Delete(item.FullPath)
	})
	if deleted {
		s.stats.EntriesDeleted++
	}
	return deleted
}

// tempFileName generates the name of the in-progress copy target. The file
// is created in the destination directory so the final rename stays within
// one volume.
func tempFileName() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "~HoboMirror-" + random[:16] + ".tmp"
}

// actCopyOrReplaceFile copies srcPath into the directory of tgtFinal under
// a temporary name, then atomically renames it over tgtFinal. Any observer
// of tgtFinal sees either the complete old bytes or the complete new bytes,
// never a half-written file. On failure the orphaned temporary is left in
// place; cleaning those up is deliberately out of scope.
//
// Attributes and ACLs are not copied here; phase 4 handles them.
func (s *syncer) actCopyOrReplaceFile(srcPath, tgtFinal string) bool {
	tgtTemp := winpath.Join(winpath.Parent(tgtFinal), tempFileName())
	progress := s.prog.callback(s.display(srcPath))
	var copiedBytes int64
	ok := s.act("Copy file", tgtFinal, func() error {
		return s.fs.CopyFileContent(srcPath, tgtTemp, func(total, copied int64) {
			copiedBytes = copied
			progress(total, copied)
		})
	}, "from", s.display(srcPath))
	if !ok {
		return false
	}
	if !s.try("replace file", tgtFinal, func() error {
		return s.fs.Rename(tgtTemp, tgtFinal, true)
	}) {
		return false
	}
	s.stats.FilesCopied++
	s.stats.BytesCopied += copiedBytes
	return true
}
