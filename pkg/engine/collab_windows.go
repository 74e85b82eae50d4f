//go:build windows

package engine

import (
	"github.com/hobomirror/hobomirror/pkg/privilege"
	"github.com/hobomirror/hobomirror/pkg/reparse"
	"github.com/hobomirror/hobomirror/pkg/secdesc"
	"github.com/hobomirror/hobomirror/pkg/shadow"
	"github.com/hobomirror/hobomirror/pkg/winfs"
)

// platformCollaborators wires the production Windows services: the
// backup-semantics filesystem, the reparse codec, the security-descriptor
// copier, and VSS snapshots (unless disabled).
func platformCollaborators(noSnapshot bool) (*collaborators, error) {
	var snapper shadow.Snapshotter
	if noSnapshot {
		snapper = shadow.NoSnapshot{}
	} else {
		snapper = shadow.NewVSS()
	}
	return &collaborators{
		fs:        winfs.Local,
		codec:     reparse.Local,
		sec:       secdesc.Local,
		readGuard: winfs.Local.ReadTextFile,
		snapper:   snapper,
	}, nil
}

func enablePrivileges() error {
	return privilege.EnableMirrorPrivileges()
}
