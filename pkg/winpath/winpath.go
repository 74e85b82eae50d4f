// Package winpath provides path helpers for the Windows namespace forms the
// mirror engine deals with: drive-letter paths, \\?\ extended-length paths,
// UNC shares, and shadow-copy device roots. All helpers are pure string
// manipulation; none of them touch the filesystem.
package winpath

import (
	"strings"
)

// Separator is the canonical Windows path separator. The engine never uses
// forward slashes when talking to the OS.
const Separator = `\`

// ExtendedPrefix is the marker that disables Win32 path processing: long
// paths are allowed and literal trailing dots/spaces are preserved.
const ExtendedPrefix = `\\?\`

// uncExtendedPrefix is the extended-length form of a UNC path.
const uncExtendedPrefix = `\\?\UNC\`

// WithTrailingSeparator ensures p ends in a path separator, appending one
// only if p does not already end in one (several trailing separators are
// left as they are).
func WithTrailingSeparator(p string) string {
	if strings.HasSuffix(p, Separator) {
		return p
	}
	return p + Separator
}

// WithoutTrailingSeparator strips any trailing separators from p, but never
// strips the separator that terminates a bare drive root ("C:\").
func WithoutTrailingSeparator(p string) string {
	trimmed := strings.TrimRight(p, Separator)
	if len(trimmed) == 2 && trimmed[1] == ':' {
		return trimmed + Separator
	}
	return trimmed
}

// LongForm prefixes p with the extended-length marker so that OS-level path
// processing is bypassed. Paths already carrying the marker pass through
// unchanged; UNC paths get the \\?\UNC\ form.
func LongForm(p string) string {
	switch {
	case strings.HasPrefix(p, ExtendedPrefix):
		return p
	case strings.HasPrefix(p, `\\`):
		return uncExtendedPrefix + p[2:]
	default:
		return ExtendedPrefix + p
	}
}

// ShortForm undoes LongForm for display purposes.
func ShortForm(p string) string {
	switch {
	case strings.HasPrefix(p, uncExtendedPrefix):
		return `\\` + p[len(uncExtendedPrefix):]
	case strings.HasPrefix(p, ExtendedPrefix):
		return p[len(ExtendedPrefix):]
	default:
		return p
	}
}

// Join appends a leaf name to a directory path, adding a separator between
// them only if dir does not already end in one.
func Join(dir, name string) string {
	return WithTrailingSeparator(dir) + name
}

// Parent returns the parent directory of p, or "" if p has no parent
// (volume roots, bare names). Trailing separators are ignored.
func Parent(p string) string {
	trimmed := strings.TrimRight(p, Separator)
	idx := strings.LastIndex(trimmed, Separator)
	if idx <= 0 {
		return ""
	}
	parent := trimmed[:idx]
	// Never return a bare "C:"; the root form is "C:\".
	if len(parent) == 2 && parent[1] == ':' {
		return parent + Separator
	}
	return parent
}

// VolumeRoot returns the volume root of an absolute Windows path with a
// trailing separator: `C:\x\y` → `C:\`, `\\server\share\x` →
// `\\server\share\`. Returns "" for paths without a volume. Implemented on
// strings rather than path/filepath so it behaves identically on every
// build platform.
func VolumeRoot(p string) string {
	p = strings.ReplaceAll(p, "/", Separator)
	if len(p) >= 2 && p[1] == ':' {
		c := p[0]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			return p[:2] + Separator
		}
		return ""
	}
	if strings.HasPrefix(p, `\\`) && !strings.HasPrefix(p, ExtendedPrefix) {
		// \\server\share
		rest := p[2:]
		first := strings.Index(rest, Separator)
		if first <= 0 {
			return ""
		}
		second := strings.Index(rest[first+1:], Separator)
		if second == 0 {
			return ""
		}
		if second < 0 {
			if len(rest[first+1:]) == 0 {
				return ""
			}
			return p + Separator
		}
		return p[:2+first+1+second] + Separator
	}
	return ""
}

// normalizeForCompare folds a path into the canonical comparison key:
// forward slashes become backslashes, trailing separators are dropped and
// the whole string is lowercased.
func normalizeForCompare(p string) string {
	p = strings.ReplaceAll(p, "/", Separator)
	p = strings.TrimRight(p, Separator)
	return strings.ToLower(p)
}

// PathsEqual compares two paths case-insensitively, ignoring separator style
// and trailing separators. It does NOT canonicalize aliases of the same
// object: a drive-letter path and the equivalent volume-GUID path compare
// unequal. Intended only for the ignore-path filter.
func PathsEqual(a, b string) bool {
	return normalizeForCompare(a) == normalizeForCompare(b)
}

// HasPrefixFold reports whether path starts with prefix under the same
// folding rules as PathsEqual, and the match ends on a component boundary.
func HasPrefixFold(path, prefix string) bool {
	np, npre := normalizeForCompare(path), normalizeForCompare(prefix)
	if !strings.HasPrefix(np, npre) {
		return false
	}
	return len(np) == len(npre) || np[len(npre)] == Separator[0]
}

// RewriteRoot maps a path under fromRoot to the corresponding path under
// toRoot. If path does not lie under fromRoot it is returned unchanged.
// The mirror engine uses this to translate snapshot-space paths back to the
// original volume for display, and original paths into snapshot space for
// reading.
func RewriteRoot(path, fromRoot, toRoot string) string {
	if PathsEqual(path, fromRoot) {
		return toRoot
	}
	if !HasPrefixFold(path, fromRoot) {
		return path
	}
	rest := path[len(WithoutTrailingSeparator(fromRoot)):]
	rest = strings.TrimLeft(rest, Separator)
	return Join(WithoutTrailingSeparator(toRoot), rest)
}
