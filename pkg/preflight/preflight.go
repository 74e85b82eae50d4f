// Package preflight provides validation checks that run before a mirror
// task begins. These checks are stateless and idempotent; they ensure the
// system is in a suitable state for a destructive mirror without changing
// the system's state themselves.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hobomirror/hobomirror/pkg/winpath"
)

// GuardFileName is the sentinel file a mirror target must contain. Mirroring
// deletes anything in the target that the source does not have, so the
// target owner has to opt in explicitly by creating this file.
const GuardFileName = "__HoboMirrorTarget__.txt"

// guardToken is the substring (matched case-insensitively) the guard file
// must contain for the target to count as approved.
const guardToken = "allow"

// CheckMirrorTarget validates that targetPath exists, is a directory, and
// sits on a volume that is actually present.
func CheckMirrorTarget(targetPath string) error {
	if isUnsafeTarget(targetPath) {
		return fmt.Errorf("target path %q is ambiguous or unsafe; mirror onto a directory below a volume root", targetPath)
	}
	if err := checkVolumeExists(targetPath); err != nil {
		return err
	}
	info, err := os.Stat(targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("target directory %s does not exist; mirror targets are never created implicitly", targetPath)
		}
		return fmt.Errorf("cannot access target path %s: %w", targetPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("target path exists but is not a directory: %s", targetPath)
	}
	return nil
}

// checkVolumeExists verifies that the volume root of a path is present
// ("Z:\mirror" requires "Z:\"), so a disconnected drive fails fast instead
// of producing a storm of per-entry errors mid-run. The volume is derived
// through winpath, which parses Windows path forms identically on every
// build platform; paths without a volume (relative, or host-native in
// tests) have nothing to check.
func checkVolumeExists(path string) error {
	root := winpath.VolumeRoot(path)
	if root == "" {
		return nil
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return fmt.Errorf("volume root does not exist: %s. Ensure the drive is connected", root)
	}
	return nil
}

// isUnsafeTarget refuses the targets a destructive mirror must never point
// at: the current directory, a bare filesystem root, and any path that IS
// its own volume root ("D:\", "\\server\share\", or the bare-drive
// spellings "D:" and "D:." that name the drive's current directory).
// Mirroring straight onto a volume root would put the guard file and the
// deletion pass at the top of an entire drive; the target has to be a
// directory below the root.
func isUnsafeTarget(path string) bool {
	if path == "." || path == `\` || path == "/" {
		return true
	}
	root := winpath.VolumeRoot(path)
	if root == "" {
		return false
	}
	// filepath.Clean turns "D:" into "D:."; strip trailing dots so both
	// spellings compare equal to the root.
	return winpath.PathsEqual(strings.TrimRight(path, "."), root)
}

// CheckMirrorSource validates that srcPath exists and is a directory.
func CheckMirrorSource(srcPath string) error {
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("source directory %s does not exist", srcPath)
		}
		return fmt.Errorf("cannot stat source directory %s: %w", srcPath, err)
	}
	if !srcInfo.IsDir() {
		return fmt.Errorf("source path %s is not a directory", srcPath)
	}
	return nil
}

// GuardApproved decides whether the given guard-file content approves the
// target for destructive mirroring.
func GuardApproved(content string) bool {
	return strings.Contains(strings.ToLower(content), guardToken)
}

// CheckGuardFile refuses a target unless its guard file exists and contains
// the approval token. readFile abstracts the read so callers running under
// backup semantics (or tests) can supply their own; pass nil for os.ReadFile.
func CheckGuardFile(targetRoot string, readFile func(path string) (string, error)) error {
	if readFile == nil {
		readFile = func(path string) (string, error) {
			data, err := os.ReadFile(path)
			return string(data), err
		}
	}
	guardPath := filepath.Join(strings.TrimRight(targetRoot, `\/`), GuardFileName)
	content, err := readFile(guardPath)
	if err != nil {
		return fmt.Errorf("target %s has no readable %s: %w (create it with the content \"allow\" to approve destructive mirroring)",
			targetRoot, GuardFileName, err)
	}
	if !GuardApproved(content) {
		return fmt.Errorf("guard file %s does not contain %q; target is not approved for mirroring", guardPath, guardToken)
	}
	return nil
}
