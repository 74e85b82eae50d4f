//go:build !windows

package engine

import (
	"fmt"
	"runtime"
)

// platformCollaborators refuses to run: the mirror's contract (backup
// semantics, reparse points, security descriptors) only exists on Windows.
// Non-Windows builds are for development and testing.
func platformCollaborators(noSnapshot bool) (*collaborators, error) {
	return nil, fmt.Errorf("mirroring is only supported on windows (running on %s)", runtime.GOOS)
}

func enablePrivileges() error { return nil }
